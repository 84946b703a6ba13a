package state

import (
	"testing"

	"github.com/robofit/arcor2-sub002/internal/model"
)

func newOpenScene() (*Cached, *model.SceneObject) {
	c := New()
	obj := &model.SceneObject{ID: "o1", Name: "box", Type: "Box", Pose: &model.Pose{Position: model.Position{X: 1, Y: 0, Z: 0}}}
	c.OpenScene(&model.Scene{ID: "s1", Name: "scene", Objects: []*model.SceneObject{obj}})
	return c, obj
}

func TestUpsertAndDeleteObject(t *testing.T) {
	c, _ := newOpenScene()

	c.UpsertObject(&model.SceneObject{ID: "o2", Name: "other", Type: "Box"})
	if len(c.Scene().Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(c.Scene().Objects))
	}

	if err := c.DeleteObject("o2"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	if len(c.Scene().Objects) != 1 {
		t.Fatalf("expected 1 object after delete, got %d", len(c.Scene().Objects))
	}
	if err := c.DeleteObject("missing"); err == nil {
		t.Error("expected error deleting a missing object")
	}
}

func TestActionPointAbsolutization(t *testing.T) {
	c, _ := newOpenScene()

	root := &model.ActionPoint{ID: "ap1", Name: "root", ParentID: "o1", Position: model.Position{X: 1, Y: 1, Z: 0}}
	child := &model.ActionPoint{ID: "ap2", Name: "child", ParentID: "ap1", Position: model.Position{X: 0, Y: 0, Z: 2}}

	err := c.OpenProject(&model.Project{ID: "p1", SceneID: "s1", ActionPoints: []*model.ActionPoint{root, child}})
	if err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	// root is parented to o1 (absolute position {1,0,0}) plus its own
	// relative offset {1,1,0} => absolute {2,1,0}.
	got := c.actionPoints["ap1"].Position
	if got != (model.Position{X: 2, Y: 1, Z: 0}) {
		t.Errorf("root absolute position = %+v, want {2 1 0}", got)
	}

	// child is parented to ap1 (absolute {2,1,0}) plus its own relative
	// offset {0,0,2} => absolute {2,1,2}.
	got = c.actionPoints["ap2"].Position
	if got != (model.Position{X: 2, Y: 1, Z: 2}) {
		t.Errorf("child absolute position = %+v, want {2 1 2}", got)
	}
}

func TestAbsolutizationIsDeclarationOrderIndependent(t *testing.T) {
	c, _ := newOpenScene()

	// The child appears before its parent; conversion must not depend on
	// declaration order or double-count an already-converted ancestor.
	child := &model.ActionPoint{ID: "ap2", Name: "child", ParentID: "ap1", Position: model.Position{X: 0, Y: 0, Z: 2}}
	root := &model.ActionPoint{ID: "ap1", Name: "root", ParentID: "o1", Position: model.Position{X: 1, Y: 1, Z: 0}}

	err := c.OpenProject(&model.Project{ID: "p1", SceneID: "s1", ActionPoints: []*model.ActionPoint{child, root}})
	if err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	if got := c.actionPoints["ap2"].Position; got != (model.Position{X: 2, Y: 1, Z: 2}) {
		t.Errorf("child absolute position = %+v, want {2 1 2}", got)
	}
}

func TestRelativizeForSaveRoundTrips(t *testing.T) {
	c, _ := newOpenScene()

	root := &model.ActionPoint{ID: "ap1", Name: "root", ParentID: "o1", Position: model.Position{X: 1, Y: 1, Z: 0}}
	if err := c.OpenProject(&model.Project{ID: "p1", SceneID: "s1", ActionPoints: []*model.ActionPoint{root}}); err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	relativized, err := c.RelativizeForSave()
	if err != nil {
		t.Fatalf("RelativizeForSave failed: %v", err)
	}
	if len(relativized) != 1 {
		t.Fatalf("expected 1 action point, got %d", len(relativized))
	}
	if relativized[0].Position != (model.Position{X: 1, Y: 1, Z: 0}) {
		t.Errorf("relativized position = %+v, want the original relative offset {1 1 0}", relativized[0].Position)
	}
}

func TestRemoveActionPointCascades(t *testing.T) {
	c, _ := newOpenScene()

	ap := &model.ActionPoint{
		ID: "ap1", Name: "ap",
		Actions:      []*model.Action{{ID: "act1", Name: "a"}},
		Orientations: []*model.NamedOrientation{{ID: "or1", Name: "o"}},
		Joints:       []*model.JointsSnapshot{{ID: "j1", Name: "j"}},
	}
	if err := c.OpenProject(&model.Project{ID: "p1", ActionPoints: []*model.ActionPoint{ap}}); err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	if err := c.RemoveActionPoint("ap1"); err != nil {
		t.Fatalf("RemoveActionPoint failed: %v", err)
	}
	if _, ok := c.actions["act1"]; ok {
		t.Error("expected action to be cascaded away")
	}
	if _, ok := c.orientations["or1"]; ok {
		t.Error("expected orientation to be cascaded away")
	}
	if _, ok := c.joints["j1"]; ok {
		t.Error("expected joints snapshot to be cascaded away")
	}
}

func TestClosureExpandsSubtree(t *testing.T) {
	c, _ := newOpenScene()

	root := &model.ActionPoint{ID: "ap1", Name: "root", ParentID: "o1", Actions: []*model.Action{{ID: "act1", Name: "a"}}}
	child := &model.ActionPoint{ID: "ap2", Name: "child", ParentID: "ap1"}
	if err := c.OpenProject(&model.Project{ID: "p1", ActionPoints: []*model.ActionPoint{root, child}}); err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	closure := c.Closure([]string{"o1"})
	want := map[string]bool{"o1": true, "ap1": true, "ap2": true, "act1": true}
	if len(closure) != len(want) {
		t.Fatalf("Closure = %v, want keys of %v", closure, want)
	}
	for _, id := range closure {
		if !want[id] {
			t.Errorf("unexpected id %q in closure", id)
		}
	}
}

func TestFlushUpdatedPosesInvalidatesJoints(t *testing.T) {
	c, _ := newOpenScene()

	ap := &model.ActionPoint{
		ID: "ap1", Name: "ap", ParentID: "o1",
		Joints: []*model.JointsSnapshot{{ID: "j1", Name: "j", Valid: true}},
	}
	if err := c.OpenProject(&model.Project{ID: "p1", ActionPoints: []*model.ActionPoint{ap}}); err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	c.MarkPoseUpdated("o1")
	c.FlushUpdatedPoses()

	if c.joints["j1"].data.Valid {
		t.Error("expected joints snapshot to be invalidated after pose update flush")
	}
}
