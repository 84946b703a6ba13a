package dispatcher

import (
	"context"

	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type objectAimingStartArgs struct {
	ObjectID string `json:"objectId"`
	RobotID  string `json:"robotId"`
	EEF      string `json:"endEffectorId"`
}

type objectAimingAddPointArgs struct {
	PointIdx int `json:"pointIdx"`
}

// RegisterAimingHandlers wires ObjectAimingStart/AddPoint/Done/Cancel,
// implemented by internal/sceneruntime's aiming session.
func RegisterAimingHandlers(d *Dispatcher) {
	d.Register("ObjectAimingStart", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args objectAimingStartArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if err := hc.Locks.WriteLock(ctx, hc.Cached, []string{args.ObjectID}, session.UserName(), false); err != nil {
				return nil, err
			}
			if _, err := hc.Runtime.StartAiming(args.ObjectID, args.RobotID, args.EEF); err != nil {
				hc.Locks.WriteUnlock(ctx, []string{args.ObjectID}, session.UserName())
				return nil, err
			}
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("ObjectAimingAddPoint", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args objectAimingAddPointArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			finished, err := hc.Runtime.AddAimingPoint(args.PointIdx)
			if err != nil {
				return nil, err
			}
			return finished, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("ObjectAimingDone", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			objectID, pose, err := hc.Runtime.FinishAiming()
			if err != nil {
				return nil, err
			}
			scene := hc.Cached.Scene()
			for _, obj := range scene.Objects {
				if obj.ID == objectID {
					p := pose
					obj.Pose = &p
					hc.Cached.MarkPoseUpdated(objectID)
					hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneObjectChanged", Data: notify.SceneObjectChanged{ChangeType: notify.ChangeUpdate, Data: obj}})
					break
				}
			}
			hc.Locks.WriteUnlock(ctx, []string{objectID}, session.UserName())
			return pose, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("ObjectAimingCancel", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			if objectID := hc.Runtime.CancelAiming(); objectID != "" {
				hc.Locks.WriteUnlock(ctx, []string{objectID}, session.UserName())
			}
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded},
	})
}
