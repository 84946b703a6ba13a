package sceneruntime

import (
	"context"
	"testing"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/lock"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
	"github.com/robofit/arcor2-sub002/internal/state"
)

type fakeSimulator struct {
	startCalls, stopCalls, clearCalls int
	failStart                        bool
}

func (f *fakeSimulator) Start(context.Context, string) error {
	f.startCalls++
	if f.failStart {
		return errFakeSim
	}
	return nil
}
func (f *fakeSimulator) Stop(context.Context, string) error {
	f.stopCalls++
	return nil
}
func (f *fakeSimulator) ClearCollisions(context.Context, string) error {
	f.clearCalls++
	return nil
}

var errFakeSim = fakeSimErr("simulator refused to start")

type fakeSimErr string

func (e fakeSimErr) Error() string { return string(e) }

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newTestRuntime(t *testing.T) (*Runtime, *state.Cached, *fakeSimulator) {
	t.Helper()
	log := newTestLogger(t)
	cached := state.New()

	types := objecttype.NewRegistry(log)
	types.LoadBuiltins()
	if err := types.Register(&objecttype.ObjectType{
		Name: "Box", Base: string(objecttype.FamilyCollisionObject), Family: objecttype.FamilyCollisionObject,
	}); err != nil {
		t.Fatalf("register Box: %v", err)
	}
	if err := types.Register(&objecttype.ObjectType{
		Name: "Dobot", Base: string(objecttype.FamilyRobot), Family: objecttype.FamilyRobot,
		Capabilities: objecttype.CapMoveToPose | objecttype.CapStop,
		EEF:          []string{"default"},
	}); err != nil {
		t.Fatalf("register Dobot: %v", err)
	}

	bus := notify.NewMemoryBus(notify.ClientRegistry{
		Enqueue: func(string, []byte) {},
		All:     func() []string { return nil },
	}, log)
	locks := lock.New(bus, log)
	sim := &fakeSimulator{}

	cached.OpenScene(&model.Scene{
		ID: "s1",
		Objects: []*model.SceneObject{
			{ID: "box1", Type: "Box"},
			{ID: "robot1", Type: "Dobot"},
		},
	})

	return New(cached, types, locks, sim, bus, log), cached, sim
}

func TestStartTransitionsToStarted(t *testing.T) {
	rt, _, sim := newTestRuntime(t)

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s, _ := rt.State()
	if s != Started {
		t.Fatalf("state = %s, want Started", s)
	}
	if sim.startCalls != 1 || sim.clearCalls != 1 {
		t.Errorf("simulator calls = start:%d clear:%d, want 1 each", sim.startCalls, sim.clearCalls)
	}

	inst, err := rt.Instance("robot1")
	if err != nil {
		t.Fatalf("Instance(robot1) failed: %v", err)
	}
	if len(inst.GetEndEffectors()) != 1 {
		t.Errorf("expected 1 end effector, got %v", inst.GetEndEffectors())
	}

	rt.streaming.stop()
}

func TestStartTwiceFails(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := rt.Start(ctx); err == nil {
		t.Error("expected second Start to fail from Started state")
	}
	rt.streaming.stop()
}

func TestStopReturnsToStopped(t *testing.T) {
	rt, _, sim := newTestRuntime(t)
	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := rt.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	s, _ := rt.State()
	if s != Stopped {
		t.Fatalf("state = %s, want Stopped", s)
	}
	if sim.stopCalls != 1 {
		t.Errorf("expected 1 simulator stop call, got %d", sim.stopCalls)
	}
	if _, err := rt.Instance("robot1"); err == nil {
		t.Error("expected Instance lookup to fail once stopped")
	}
}

func TestRobotCapabilityGating(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rt.streaming.stop()

	inst, err := rt.Instance("robot1")
	if err != nil {
		t.Fatalf("Instance failed: %v", err)
	}
	if err := inst.MoveToPose(ctx, "default", model.Pose{}, 1.0); err != nil {
		t.Errorf("MoveToPose should be supported: %v", err)
	}
	if err := inst.MoveToJoints(ctx, nil, 1.0); err == nil {
		t.Error("MoveToJoints should not be supported, Dobot lacks the capability")
	}
}

func TestGenericObjectRejectsMotion(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rt.streaming.stop()

	inst, err := rt.Instance("box1")
	if err != nil {
		t.Fatalf("Instance failed: %v", err)
	}
	if err := inst.Stop(ctx); err == nil {
		t.Error("expected a non-robot object to reject Stop")
	}
}

func TestAimingSessionLifecycle(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rt.streaming.stop()

	if _, err := rt.StartAiming("box1", "robot1", "default"); err != nil {
		t.Fatalf("StartAiming failed: %v", err)
	}
	if _, err := rt.StartAiming("box1", "robot1", "default"); err == nil {
		t.Error("expected second concurrent StartAiming to fail")
	}

	if _, err := rt.FinishAiming(); err == nil {
		t.Error("expected FinishAiming to fail before enough points are collected")
	}

	for i := 0; i < 3; i++ {
		if _, err := rt.AddAimingPoint(i); err != nil {
			t.Fatalf("AddAimingPoint(%d) failed: %v", i, err)
		}
	}

	objID, _, err := rt.FinishAiming()
	if err != nil {
		t.Fatalf("FinishAiming failed: %v", err)
	}
	if objID != "box1" {
		t.Errorf("FinishAiming object = %q, want box1", objID)
	}

	if _, err := rt.FinishAiming(); err == nil {
		t.Error("expected no aiming session after it was finished")
	}
}
