package sceneruntime

import (
	"context"
	"fmt"

	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
)

// defaultConstructors returns the BaseFamily-keyed constructor table used to
// dispatch instantiation without any type-specific switch in Runtime itself.
func defaultConstructors() map[objecttype.BaseFamily]Constructor {
	return map[objecttype.BaseFamily]Constructor{
		objecttype.FamilyGeneric:         newGenericInstance,
		objecttype.FamilyGenericWithPose: newGenericInstance,
		objecttype.FamilyCollisionObject: newGenericInstance,
		objecttype.FamilyRobot:            newRobotInstance,
	}
}

// genericInstance backs Generic/GenericWithPose/CollisionObject types,
// which expose no motion capabilities; every capability method reports
// "not supported" rather than panicking so dispatcher code can treat every
// live object uniformly.
type genericInstance struct {
	id  string
	obj *model.SceneObject
}

func newGenericInstance(obj *model.SceneObject, _ *objecttype.ObjectType) (Instance, error) {
	return &genericInstance{id: obj.ID, obj: obj}, nil
}

func (g *genericInstance) ID() string                { return g.id }
func (g *genericInstance) GetEndEffectors() []string { return nil }

func (g *genericInstance) GetEndEffectorPose(string) (model.Pose, error) {
	return model.Pose{}, fmt.Errorf("object %s has no end effectors", g.id)
}

func (g *genericInstance) RobotJoints() (map[string]float64, error) {
	return nil, fmt.Errorf("object %s is not a robot", g.id)
}

func (g *genericInstance) MoveToPose(context.Context, string, model.Pose, float64) error {
	return fmt.Errorf("object %s does not support MoveToPose", g.id)
}

func (g *genericInstance) MoveToJoints(context.Context, map[string]float64, float64) error {
	return fmt.Errorf("object %s does not support MoveToJoints", g.id)
}

func (g *genericInstance) Stop(context.Context) error {
	return fmt.Errorf("object %s does not support Stop", g.id)
}

func (g *genericInstance) IK(context.Context, model.Pose) (map[string]float64, error) {
	return nil, fmt.Errorf("object %s does not support IK", g.id)
}

func (g *genericInstance) FK(context.Context, map[string]float64) (model.Pose, error) {
	return model.Pose{}, fmt.Errorf("object %s does not support FK", g.id)
}

func (g *genericInstance) HandTeaching(context.Context, bool) error {
	return fmt.Errorf("object %s does not support hand teaching", g.id)
}

func (g *genericInstance) Cleanup(context.Context) error { return nil }

// robotInstance backs FamilyRobot types. It gates each capability method on
// the ObjectType's resolved RobotCapabilities bit, set in
// internal/objecttype via ResolveCapabilities up the Base chain.
type robotInstance struct {
	genericInstance
	caps objecttype.RobotCapabilities
	eef  []string
}

func newRobotInstance(obj *model.SceneObject, ot *objecttype.ObjectType) (Instance, error) {
	return &robotInstance{
		genericInstance: genericInstance{id: obj.ID, obj: obj},
		caps:            ot.Capabilities,
		eef:             ot.EEF,
	}, nil
}

func (r *robotInstance) GetEndEffectors() []string { return r.eef }

func (r *robotInstance) GetEndEffectorPose(eef string) (model.Pose, error) {
	for _, e := range r.eef {
		if e == eef {
			return model.Pose{}, nil
		}
	}
	return model.Pose{}, fmt.Errorf("robot %s has no end effector %q", r.id, eef)
}

func (r *robotInstance) RobotJoints() (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (r *robotInstance) MoveToPose(ctx context.Context, eef string, pose model.Pose, speed float64) error {
	if !r.caps.Has(objecttype.CapMoveToPose) {
		return fmt.Errorf("robot %s does not support MoveToPose", r.id)
	}
	if _, err := r.GetEndEffectorPose(eef); err != nil {
		return err
	}
	return nil
}

func (r *robotInstance) MoveToJoints(ctx context.Context, joints map[string]float64, speed float64) error {
	if !r.caps.Has(objecttype.CapMoveToJoints) {
		return fmt.Errorf("robot %s does not support MoveToJoints", r.id)
	}
	return nil
}

func (r *robotInstance) Stop(ctx context.Context) error {
	if !r.caps.Has(objecttype.CapStop) {
		return fmt.Errorf("robot %s does not support Stop", r.id)
	}
	return nil
}

func (r *robotInstance) IK(ctx context.Context, pose model.Pose) (map[string]float64, error) {
	if !r.caps.Has(objecttype.CapIK) {
		return nil, fmt.Errorf("robot %s does not support IK", r.id)
	}
	return map[string]float64{}, nil
}

func (r *robotInstance) FK(ctx context.Context, joints map[string]float64) (model.Pose, error) {
	if !r.caps.Has(objecttype.CapFK) {
		return model.Pose{}, fmt.Errorf("robot %s does not support FK", r.id)
	}
	return model.Pose{}, nil
}

func (r *robotInstance) HandTeaching(ctx context.Context, enabled bool) error {
	if !r.caps.Has(objecttype.CapHandTeaching) {
		return fmt.Errorf("robot %s does not support hand teaching", r.id)
	}
	return nil
}
