package sceneruntime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/notify"
)

// robotTelemetryInterval is how often started robots publish their end
// effector pose and joint values while a scene is running.
const robotTelemetryInterval = 100 * time.Millisecond

// streamSet owns the periodic per-robot telemetry publishers, started when
// the scene transitions to Started and stopped (with a bounded drain) on
// Stop.
type streamSet struct {
	rt     *Runtime
	bus    notify.Bus
	logger *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newStreamSet(rt *Runtime, bus notify.Bus, log *logger.Logger) *streamSet {
	return &streamSet{rt: rt, bus: bus, logger: log}
}

func (s *streamSet) start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	s.rt.mu.Lock()
	ids := make([]string, 0, len(s.rt.instances))
	for id, inst := range s.rt.instances {
		if len(inst.GetEndEffectors()) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	s.rt.mu.Unlock()

	for _, id := range ids {
		s.wg.Add(1)
		go s.streamOne(ctx, id)
	}
}

func (s *streamSet) streamOne(ctx context.Context, id string) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.rt.telemetryPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			inst, err := s.rt.Instance(id)
			if err != nil {
				return
			}
			s.publishJoints(ctx, inst)
			s.publishEef(ctx, inst)
		}
	}
}

func (s *streamSet) publishJoints(ctx context.Context, inst Instance) {
	joints, err := inst.RobotJoints()
	if err != nil {
		return
	}
	s.bus.Broadcast(ctx, notify.Event{
		Name: "RobotJoints",
		Data: notify.RobotJoints{RobotID: inst.ID(), Joints: joints},
	})
}

func (s *streamSet) publishEef(ctx context.Context, inst Instance) {
	for _, eef := range inst.GetEndEffectors() {
		pose, err := inst.GetEndEffectorPose(eef)
		if err != nil {
			continue
		}
		s.bus.Broadcast(ctx, notify.Event{
			Name: "RobotEef",
			Data: notify.RobotEef{RobotID: inst.ID(), EEF: eef, Pose: pose},
		})
	}
}

// stop cancels every in-flight publisher and waits up to one second for
// them to exit before giving up, so Stop never blocks the scene runtime
// indefinitely on a slow or stuck telemetry goroutine.
func (s *streamSet) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		s.logger.Warn("scene runtime telemetry publishers did not exit within 1s of stop")
	}
}
