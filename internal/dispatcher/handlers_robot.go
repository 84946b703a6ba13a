package dispatcher

import (
	"context"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type robotIDArgs struct {
	RobotID string `json:"robotId"`
}

type robotEefArgs struct {
	RobotID string `json:"robotId"`
	EEF     string `json:"endEffectorId"`
}

type moveToPoseArgs struct {
	RobotID string     `json:"robotId"`
	EEF     string     `json:"endEffectorId"`
	Pose    model.Pose `json:"pose"`
	Speed   float64    `json:"speed"`
}

type moveToJointsArgs struct {
	RobotID string             `json:"robotId"`
	Joints  map[string]float64 `json:"joints"`
	Speed   float64            `json:"speed"`
}

type moveToActionPointArgs struct {
	RobotID       string  `json:"robotId"`
	EEF           string  `json:"endEffectorId"`
	ActionPointID string  `json:"actionPointId"`
	Speed         float64 `json:"speed"`
}

type inverseKinematicsArgs struct {
	RobotID string     `json:"robotId"`
	Pose    model.Pose `json:"pose"`
}

type forwardKinematicsArgs struct {
	RobotID string             `json:"robotId"`
	Joints  map[string]float64 `json:"joints"`
}

type handTeachingModeArgs struct {
	RobotID string `json:"robotId"`
	Enabled bool   `json:"enabled"`
}

// RegisterRobotHandlers wires the Robot RPC category.
func RegisterRobotHandlers(d *Dispatcher) {
	d.Register("GetRobotMeta", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args robotIDArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			scene := hc.Cached.Scene()
			for _, obj := range scene.Objects {
				if obj.ID == args.RobotID {
					ot, err := hc.Types.Get(obj.Type)
					if err != nil {
						return nil, err
					}
					return ot, nil
				}
			}
			return nil, apperr.Validation("robotId", "no such scene object")
		},
		Preconditions: []Precondition{SceneNeeded},
	})

	d.Register("GetRobotJoints", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args robotIDArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			joints, err := robot.RobotJoints()
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return joints, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("GetEndEffectors", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args robotIDArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return robot.GetEndEffectors(), nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("GetEndEffectorPose", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args robotEefArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			pose, err := robot.GetEndEffectorPose(args.EEF)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return pose, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("GetGrippers", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			return []string{}, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("GetSuctions", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			return []string{}, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("MoveToPose", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args moveToPoseArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "RobotMoveToPose", Data: notify.RobotMoveToPose{RobotID: args.RobotID, EEF: args.EEF, Pose: args.Pose, Kind: notify.MoveStart}})
			err = robot.MoveToPose(ctx, args.EEF, args.Pose, args.Speed)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "RobotMoveToPose", Data: notify.RobotMoveToPose{RobotID: args.RobotID, EEF: args.EEF, Pose: args.Pose, Kind: notify.MoveEnd}})
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("MoveToJoints", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args moveToJointsArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "RobotMoveToJoints", Data: notify.RobotMoveToJoints{RobotID: args.RobotID, Joints: args.Joints, Kind: notify.MoveStart}})
			err = robot.MoveToJoints(ctx, args.Joints, args.Speed)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "RobotMoveToJoints", Data: notify.RobotMoveToJoints{RobotID: args.RobotID, Joints: args.Joints, Kind: notify.MoveEnd}})
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("MoveToActionPoint", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args moveToActionPointArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			if project == nil {
				return nil, apperr.Precondition("no project is open")
			}
			ap := findActionPoint(project, args.ActionPointID)
			if ap == nil {
				return nil, apperr.Validation("actionPointId", "not found")
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			pose := model.Pose{Position: ap.Position, Orientation: model.IdentityOrientation()}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "RobotMoveToActionPoint", Data: notify.RobotMoveToActionPoint{RobotID: args.RobotID, ActionPointID: args.ActionPointID, Kind: notify.MoveStart}})
			err = robot.MoveToPose(ctx, args.EEF, pose, args.Speed)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "RobotMoveToActionPoint", Data: notify.RobotMoveToActionPoint{RobotID: args.RobotID, ActionPointID: args.ActionPointID, Kind: notify.MoveEnd}})
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, SceneStarted},
	})

	d.Register("StopRobot", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args robotIDArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			if err := robot.Stop(ctx); err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("RegisterForRobotEvent", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			// Streaming is unconditional for every live robot
			// (internal/sceneruntime/streaming.go); this RPC only
			// acknowledges the registration for clients that expect it.
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("InverseKinematics", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args inverseKinematicsArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			joints, err := robot.IK(ctx, args.Pose)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return joints, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("ForwardKinematics", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args forwardKinematicsArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			pose, err := robot.FK(ctx, args.Joints)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return pose, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("CalibrateRobot", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args robotIDArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if _, err := hc.Runtime.Instance(args.RobotID); err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("HandTeachingMode", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args handTeachingModeArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			if err := robot.HandTeaching(ctx, args.Enabled); err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "HandTeachingMode", Data: notify.HandTeachingMode{RobotID: args.RobotID, Enabled: args.Enabled}})
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})
}
