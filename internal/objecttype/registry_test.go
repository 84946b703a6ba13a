package objecttype

import (
	"testing"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestRegistryLoadBuiltins(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))
	reg.LoadBuiltins()

	for _, name := range []string{"Generic", "GenericWithPose", "CollisionObject", "Robot", "Logic", "Flow", "Time", "Random"} {
		if _, err := reg.Get(name); err != nil {
			t.Errorf("Get(%q) failed: %v", name, err)
		}
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))
	reg.LoadBuiltins()

	dobot := &ObjectType{Name: "Dobot", Base: string(FamilyRobot), Family: FamilyRobot, Capabilities: CapMoveToPose | CapMoveToJoints}
	if err := reg.Register(dobot); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := reg.Get("Dobot")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Base != string(FamilyRobot) {
		t.Errorf("Base = %q, want Robot", got.Base)
	}
}

func TestRegistryUnregisterBuiltinRefused(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))
	reg.LoadBuiltins()

	if err := reg.Unregister("Robot"); err == nil {
		t.Error("expected error unregistering a builtin family ancestor")
	}
}

func TestRegistryDescendants(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))
	reg.LoadBuiltins()
	reg.Register(&ObjectType{Name: "Dobot", Base: string(FamilyRobot), Family: FamilyRobot})
	reg.Register(&ObjectType{Name: "DobotM1", Base: "Dobot", Family: FamilyRobot})

	descendants := reg.Descendants("Dobot")
	want := map[string]bool{"Dobot": true, "DobotM1": true}
	if len(descendants) != len(want) {
		t.Fatalf("Descendants = %v", descendants)
	}
	for _, d := range descendants {
		if !want[d] {
			t.Errorf("unexpected descendant %q", d)
		}
	}
}

func TestRegistryResolveCapabilities(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))
	reg.LoadBuiltins()
	reg.Register(&ObjectType{Name: "Dobot", Base: string(FamilyRobot), Family: FamilyRobot, Capabilities: CapMoveToPose})
	reg.Register(&ObjectType{Name: "DobotM1", Base: "Dobot", Family: FamilyRobot, Capabilities: CapIK})

	caps := reg.ResolveCapabilities("DobotM1")
	if !caps.Has(CapMoveToPose) || !caps.Has(CapIK) {
		t.Errorf("ResolveCapabilities = %v, want both CapMoveToPose and CapIK set", caps)
	}
	if caps.Has(CapFK) {
		t.Error("unexpected CapFK set")
	}
}
