package dispatcher

import (
	"context"
	"fmt"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

// toolFlipQuaternion is a fixed tool-flip convention of the supported
// robots (a 180-degree rotation about the tool Y axis), not a general
// formula.
var toolFlipQuaternion = model.Orientation{X: 0, Y: 1, Z: 0, W: 0}

type pivotKind string

const (
	pivotTop    pivotKind = "top"
	pivotMiddle pivotKind = "middle"
	pivotBottom pivotKind = "bottom"
)

type updateObjectPoseUsingRobotArgs struct {
	ObjectID string    `json:"objectId"`
	RobotID  string    `json:"robotId"`
	EEF      string    `json:"endEffectorId"`
	Pivot    pivotKind `json:"pivot"`
}

// collisionPivotDelta maps a collision model to the pivot offset along the
// tool axis: Box → ±size_z/2,
// Cylinder → ±height/2, Sphere → ±radius/2, Mesh → only middle allowed.
func collisionPivotDelta(cm *objecttype.CollisionModel, pivot pivotKind) (model.Position, error) {
	switch cm.Kind {
	case "box":
		return halfAxisDelta(cm.SizeZ, pivot)
	case "cylinder":
		return halfAxisDelta(cm.Height, pivot)
	case "sphere":
		return halfAxisDelta(cm.Radius, pivot)
	case "mesh":
		if pivot != pivotMiddle {
			return model.Position{}, fmt.Errorf("mesh collision models only support the middle pivot")
		}
		return model.Position{}, nil
	}
	return model.Position{}, fmt.Errorf("unknown collision model kind %q", cm.Kind)
}

func halfAxisDelta(extent float64, pivot pivotKind) (model.Position, error) {
	switch pivot {
	case pivotTop:
		return model.Position{Z: extent / 2}, nil
	case pivotBottom:
		return model.Position{Z: -extent / 2}, nil
	case pivotMiddle:
		return model.Position{}, nil
	}
	return model.Position{}, fmt.Errorf("unknown pivot %q", pivot)
}

// rotate applies q to v (standard quaternion vector rotation).
func rotate(q model.Orientation, v model.Position) model.Position {
	qx, qy, qz, qw := q.X, q.Y, q.Z, q.W
	vx, vy, vz := v.X, v.Y, v.Z

	tx := 2 * (qy*vz - qz*vy)
	ty := 2 * (qz*vx - qx*vz)
	tz := 2 * (qx*vy - qy*vx)

	rx := vx + qw*tx + (qy*tz - qz*ty)
	ry := vy + qw*ty + (qz*tx - qx*tz)
	rz := vz + qw*tz + (qx*ty - qy*tx)
	return model.Position{X: rx, Y: ry, Z: rz}
}

// multiplyOrientation computes a*b (Hamilton product).
func multiplyOrientation(a, b model.Orientation) model.Orientation {
	return model.Orientation{
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
	}
}

// RegisterSceneRobotPoseHandler wires UpdateObjectPoseUsingRobot.
func RegisterSceneRobotPoseHandler(d *Dispatcher) {
	d.Register("UpdateObjectPoseUsingRobot", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateObjectPoseUsingRobotArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if args.Pivot == "" {
				args.Pivot = pivotMiddle
			}
			if args.ObjectID == args.RobotID {
				return nil, apperr.Precondition("target object must not be the robot itself")
			}
			if err := hc.Locks.ReadLock(ctx, hc.Cached, []string{args.RobotID}, session.UserName(), false); err != nil {
				return nil, apperr.CannotLock([]string{args.RobotID})
			}
			defer hc.Locks.ReadUnlock(ctx, []string{args.RobotID}, session.UserName())

			if !hc.Locks.IsWriteLocked(args.ObjectID, session.UserName()) {
				if err := hc.Locks.WriteLock(ctx, hc.Cached, []string{args.ObjectID}, session.UserName(), false); err != nil {
					return nil, apperr.CannotLock([]string{args.ObjectID})
				}
			}

			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			eefPose, err := robot.GetEndEffectorPose(args.EEF)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}

			scene := hc.Cached.Scene()
			var obj *model.SceneObject
			for _, o := range scene.Objects {
				if o.ID == args.ObjectID {
					obj = o
					break
				}
			}
			if obj == nil {
				return nil, fmt.Errorf("scene object %s not found", args.ObjectID)
			}
			ot, err := hc.Types.Get(obj.Type)
			if err != nil {
				return nil, err
			}
			if ot.Collision == nil {
				return nil, apperr.Precondition("target object has no collision model")
			}
			delta, err := collisionPivotDelta(ot.Collision, args.Pivot)
			if err != nil {
				return nil, err
			}
			rotated := rotate(eefPose.Orientation, delta)
			newPos := model.Position{
				X: eefPose.Position.X - rotated.X,
				Y: eefPose.Position.Y - rotated.Y,
				Z: eefPose.Position.Z - rotated.Z,
			}
			newOrient := multiplyOrientation(eefPose.Orientation, toolFlipQuaternion)
			pose := model.Pose{Position: newPos, Orientation: newOrient}
			obj.Pose = &pose
			hc.Cached.MarkPoseUpdated(args.ObjectID)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneObjectChanged", Data: notify.SceneObjectChanged{ChangeType: notify.ChangeUpdate, Data: obj}})
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})
}
