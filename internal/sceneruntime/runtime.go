// Package sceneruntime implements the scene-runtime engine: the
// stopped/starting/started/stopping state machine, live object
// instantiation behind a small capability interface, and the periodic
// robot telemetry streams.
package sceneruntime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/lock"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
	"github.com/robofit/arcor2-sub002/internal/state"
)

// State is the scene runtime's lifecycle state.
type State string

const (
	Stopped  State = "Stopped"
	Starting State = "Starting"
	Started  State = "Started"
	Stopping State = "Stopping"
)

// Instance is the capability surface a live scene object exposes once the
// scene is started, so runtime RPCs never need to know which concrete
// ObjectType backs an id.
type Instance interface {
	ID() string
	GetEndEffectors() []string
	GetEndEffectorPose(eef string) (model.Pose, error)
	RobotJoints() (map[string]float64, error)
	MoveToPose(ctx context.Context, eef string, pose model.Pose, speed float64) error
	MoveToJoints(ctx context.Context, joints map[string]float64, speed float64) error
	Stop(ctx context.Context) error
	IK(ctx context.Context, pose model.Pose) (map[string]float64, error)
	FK(ctx context.Context, joints map[string]float64) (model.Pose, error)
	HandTeaching(ctx context.Context, enabled bool) error
	Cleanup(ctx context.Context) error
}

// Simulator is the scene-simulation collaborator: start/stop per scene.
type Simulator interface {
	Start(ctx context.Context, sceneID string) error
	Stop(ctx context.Context, sceneID string) error
	ClearCollisions(ctx context.Context, sceneID string) error
}

// Constructor builds a live Instance for a scene object, dispatched by
// BaseFamily (internal/sceneruntime/construct.go).
type Constructor func(obj *model.SceneObject, ot *objecttype.ObjectType) (Instance, error)

// Runtime owns the scene lifecycle state machine and the map of live
// instances.
type Runtime struct {
	mu    sync.Mutex
	state State
	msg   string

	instances map[string]Instance

	cached *state.Cached
	types  *objecttype.Registry
	locks  *lock.Manager
	sim    Simulator
	bus    notify.Bus
	logger *logger.Logger

	constructors map[objecttype.BaseFamily]Constructor

	streaming *streamSet
	aiming    *aimingState

	streamPeriod time.Duration
}

// New creates a stopped runtime.
func New(cached *state.Cached, types *objecttype.Registry, locks *lock.Manager, sim Simulator, bus notify.Bus, log *logger.Logger) *Runtime {
	r := &Runtime{
		state:        Stopped,
		instances:    make(map[string]Instance),
		cached:       cached,
		types:        types,
		locks:        locks,
		sim:          sim,
		bus:          bus,
		logger:       log,
		constructors: defaultConstructors(),
		aiming:       newAimingState(),
	}
	r.streaming = newStreamSet(r, bus, log)
	return r
}

// SetTelemetryPeriod overrides the default interval between RobotEef and
// RobotJoints samples, taking effect on the next scene start.
func (r *Runtime) SetTelemetryPeriod(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.streamPeriod = d
	}
}

func (r *Runtime) telemetryPeriod() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streamPeriod > 0 {
		return r.streamPeriod
	}
	return robotTelemetryInterval
}

// StartAiming begins an object aiming session for objectID using robotID's
// eef end effector. A scene must be started, since aiming reads the robot's
// live end effector pose for each sample.
func (r *Runtime) StartAiming(objectID, robotID, eef string) (*AimingSession, error) {
	if _, err := r.Instance(robotID); err != nil {
		return nil, fmt.Errorf("start aiming: %w", err)
	}
	return r.aiming.Start(objectID, robotID, eef)
}

// CancelAiming discards the in-progress aiming session, if any, and reports
// the target object id it was aiming so the caller can release its lock.
func (r *Runtime) CancelAiming() string {
	session, err := r.aiming.Current()
	if err != nil {
		return ""
	}
	r.aiming.Cancel()
	return session.objectID
}

// AddAimingPoint samples the aiming robot's current end effector pose as
// calibration point pointIdx.
func (r *Runtime) AddAimingPoint(pointIdx int) ([]int, error) {
	session, err := r.aiming.Current()
	if err != nil {
		return nil, err
	}
	robot, err := r.Instance(session.robotID)
	if err != nil {
		return nil, err
	}
	pose, err := robot.GetEndEffectorPose(session.eef)
	if err != nil {
		return nil, err
	}
	return session.AddPoint(pointIdx, pose), nil
}

// FinishAiming completes the in-progress aiming session and returns the
// target object id with the resulting pose, computed as the centroid of the
// sampled points. It does not write the pose onto the object itself.
func (r *Runtime) FinishAiming() (string, model.Pose, error) {
	session, err := r.aiming.Current()
	if err != nil {
		return "", model.Pose{}, err
	}
	points, err := session.Done()
	if err != nil {
		return "", model.Pose{}, err
	}

	var sum model.Position
	for _, p := range points {
		sum.X += p.X
		sum.Y += p.Y
		sum.Z += p.Z
	}
	n := float64(len(points))
	centroid := model.Position{X: sum.X / n, Y: sum.Y / n, Z: sum.Z / n}

	r.aiming.Cancel()
	return session.objectID, model.Pose{Position: centroid, Orientation: model.IdentityOrientation()}, nil
}

// State returns the current state and any failure message left by the
// last failed transition.
func (r *Runtime) State() (State, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.msg
}

func (r *Runtime) setState(s State, msg string) {
	r.mu.Lock()
	r.state = s
	r.msg = msg
	r.mu.Unlock()

	r.logger.Info("scene runtime state transition", zap.String("state", string(s)), zap.String("message", msg))
	r.bus.Broadcast(context.Background(), notify.Event{
		Name: "SceneState",
		Data: notify.SceneState{State: notify.SceneRunState(s), Message: msg},
	})
}

// Start runs the stopped->starting->started transition. It requires the
// caller to already hold @scene (and @project,
// if any) write-locked under lock.ReservedOwner; that acquisition happens
// in the dispatcher's StartScene handler, not here, since only the
// dispatcher knows the project id.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Stopped {
		cur := r.state
		r.mu.Unlock()
		return fmt.Errorf("cannot start scene runtime from state %s", cur)
	}
	r.mu.Unlock()
	r.setState(Starting, "")

	scene := r.cached.Scene()
	if scene == nil {
		r.setState(Stopped, "no scene open")
		return fmt.Errorf("no scene open")
	}

	if err := r.sim.ClearCollisions(ctx, scene.ID); err != nil {
		r.setState(Stopped, err.Error())
		return fmt.Errorf("clear collisions: %w", err)
	}

	built, err := r.instantiateAll(scene)
	if err != nil {
		r.cleanupBestEffort(ctx, built)
		r.setState(Stopped, err.Error())
		return err
	}

	if err := r.sim.Start(ctx, scene.ID); err != nil {
		r.cleanupBestEffort(ctx, built)
		r.setState(Stopped, err.Error())
		return fmt.Errorf("start simulation: %w", err)
	}

	r.mu.Lock()
	r.instances = built
	r.mu.Unlock()

	r.setState(Started, "")
	r.streaming.start(ctx)
	return nil
}

// instantiateAll builds every scene object's Instance in parallel.
func (r *Runtime) instantiateAll(scene *model.Scene) (map[string]Instance, error) {
	type result struct {
		id  string
		inst Instance
		err error
	}

	results := make(chan result, len(scene.Objects))
	var wg sync.WaitGroup
	for _, obj := range scene.Objects {
		wg.Add(1)
		go func(obj *model.SceneObject) {
			defer wg.Done()
			ot, err := r.types.Get(obj.Type)
			if err != nil {
				results <- result{id: obj.ID, err: fmt.Errorf("object %s: %w", obj.ID, err)}
				return
			}
			if ot.Family == objecttype.FamilyRobot {
				resolved := *ot
				resolved.Capabilities = r.types.ResolveCapabilities(ot.Name)
				ot = &resolved
			}
			ctor, ok := r.constructors[ot.Family]
			if !ok {
				results <- result{id: obj.ID, err: fmt.Errorf("object %s: no constructor for family %s", obj.ID, ot.Family)}
				return
			}
			inst, err := ctor(obj, ot)
			if err != nil {
				results <- result{id: obj.ID, err: fmt.Errorf("object %s: %w", obj.ID, err)}
				return
			}
			results <- result{id: obj.ID, inst: inst}
		}(obj)
	}
	wg.Wait()
	close(results)

	built := make(map[string]Instance, len(scene.Objects))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		built[res.id] = res.inst
	}
	return built, firstErr
}

func (r *Runtime) cleanupBestEffort(ctx context.Context, built map[string]Instance) {
	for id, inst := range built {
		if err := inst.Cleanup(ctx); err != nil {
			r.logger.Warn("cleanup failed for partially started object", zap.String("id", id), zap.Error(err))
		}
	}
}

// Stop runs the started->stopping->stopped transition.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Started {
		cur := r.state
		r.mu.Unlock()
		return fmt.Errorf("cannot stop scene runtime from state %s", cur)
	}
	r.mu.Unlock()
	r.setState(Stopping, "")
	r.streaming.stop()

	scene := r.cached.Scene()
	if scene != nil {
		if err := r.sim.Stop(ctx, scene.ID); err != nil {
			r.logger.Warn("simulation stop failed", zap.Error(err))
		}
	}

	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]Instance)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, inst := range instances {
		wg.Add(1)
		go func(id string, inst Instance) {
			defer wg.Done()
			if err := inst.Cleanup(ctx); err != nil {
				r.logger.Warn("cleanup failed", zap.String("id", id), zap.Error(err))
			}
		}(id, inst)
	}
	wg.Wait()

	r.setState(Stopped, "")
	return nil
}

// Instance returns the live instance for id, if the scene is started.
func (r *Runtime) Instance(id string) (Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Started {
		return nil, fmt.Errorf("scene is not started")
	}
	inst, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("no live instance for object %q", id)
	}
	return inst, nil
}
