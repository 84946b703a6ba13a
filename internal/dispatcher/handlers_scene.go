package dispatcher

import (
	"context"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/lock"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type newSceneArgs struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type idArgs struct {
	ID string `json:"id"`
}

type renameArgs struct {
	ID   string `json:"id"`
	Name string `json:"newName"`
}

type updateDescriptionArgs struct {
	ID          string `json:"id"`
	Description string `json:"newDescription"`
}

type addObjectToSceneArgs struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Pose       *model.Pose       `json:"pose,omitempty"`
	Parameters []*model.Parameter `json:"parameters,omitempty"`
	DryRunArgs
}

type updateObjectParametersArgs struct {
	ID         string              `json:"id"`
	Parameters []*model.Parameter `json:"parameters"`
}

type updateObjectPoseArgs struct {
	ID   string     `json:"id"`
	Pose model.Pose `json:"pose"`
}

type removeFromSceneArgs struct {
	ID    string `json:"id"`
	Force bool   `json:"force,omitempty"`
	DryRunArgs
}

type closeSceneArgs struct {
	Force bool `json:"force,omitempty"`
	DryRunArgs
}

// RegisterSceneHandlers wires the Scene RPC category.
func RegisterSceneHandlers(d *Dispatcher) {
	d.Register("NewScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args newSceneArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if hc.Cached.Scene() != nil {
				return nil, apperr.Precondition("a scene is already open")
			}
			scene := &model.Scene{ID: newID("scn"), Name: args.Name, Description: args.Description, Objects: []*model.SceneObject{}}
			hc.Cached.OpenScene(scene)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "OpenScene", Data: notify.OpenScene{Scene: scene}})
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneState", Data: notify.SceneState{State: notify.SceneStopped}})
			return scene, nil
		},
	})

	d.Register("OpenScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args idArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if hc.Cached.Scene() != nil {
				return nil, apperr.Precondition("a scene is already open")
			}
			scene, err := hc.Store.GetScene(ctx, args.ID)
			if err != nil {
				return nil, apperr.External("project service", err)
			}
			hc.Cached.OpenScene(scene)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "OpenScene", Data: notify.OpenScene{Scene: scene}})
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneState", Data: notify.SceneState{State: notify.SceneStopped}})
			return scene, nil
		},
		Preconditions: []Precondition{SceneStopped},
	})

	d.Register("CloseScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args closeSceneArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if hc.Locks.AnyUserWriteLocked() {
				return nil, apperr.SomethingLocked()
			}
			scene := hc.Cached.Scene()
			if scene.HasChanges() && !args.Force {
				return nil, apperr.Precondition("scene has unsaved changes")
			}
			if args.IsDryRun() {
				return nil, nil
			}
			id := scene.ID
			hc.Cached.CloseScene()
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneClosed", Data: notify.SceneClosed{ID: id}})
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ShowMainScreen", Data: notify.ShowMainScreen{What: notify.ScreenScenesList, Highlight: id}})
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, EditingOffline},
	})

	d.Register("SaveScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			hc.Cached.FlushUpdatedPoses()
			scene := hc.Cached.Scene().Clone()
			if err := hc.Store.PutScene(ctx, scene); err != nil {
				return nil, apperr.External("project service", err)
			}
			hc.Cached.MarkSceneSaved()
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneSaved", Data: notify.SceneSaved{ID: scene.ID}})
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded},
	})

	d.Register("ListScenes", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			scenes, err := hc.Store.ListScenes(ctx)
			if err != nil {
				return nil, apperr.External("project service", err)
			}
			return scenes, nil
		},
	})

	d.Register("DeleteScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args idArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			usedBy, err := hc.Store.ProjectsWithScene(ctx, args.ID)
			if err != nil {
				return nil, apperr.External("project service", err)
			}
			if len(usedBy) > 0 {
				return nil, apperr.Preconditionf("scene %s is used by %d project(s)", args.ID, len(usedBy))
			}
			if err := hc.Store.DeleteScene(ctx, args.ID); err != nil {
				return nil, apperr.External("project service", err)
			}
			return nil, nil
		},
	})

	d.Register("RenameScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args renameArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			scene := hc.Cached.Scene()
			if scene == nil || scene.ID != args.ID {
				return nil, apperr.Precondition("scene is not open")
			}
			scene.Name = args.Name
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneChanged", Data: notify.SceneChanged{Scene: scene}})
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, EditingOffline, WriteLocked(lock.SceneID)},
	})

	d.Register("CopyScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args renameArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			src, err := hc.Store.GetScene(ctx, args.ID)
			if err != nil {
				return nil, apperr.External("project service", err)
			}
			clone := src.Clone()
			clone.ID = newID("scn")
			clone.Name = args.Name
			if err := hc.Store.PutScene(ctx, clone); err != nil {
				return nil, apperr.External("project service", err)
			}
			return clone, nil
		},
	})

	d.Register("UpdateSceneDescription", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateDescriptionArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			scene := hc.Cached.Scene()
			scene.Description = args.Description
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneChanged", Data: notify.SceneChanged{Scene: scene}})
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, EditingOffline, WriteLocked(lock.SceneID)},
	})

	d.Register("ProjectsWithScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args idArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			ids, err := hc.Store.ProjectsWithScene(ctx, args.ID)
			if err != nil {
				return nil, apperr.External("project service", err)
			}
			return ids, nil
		},
	})

	d.Register("AddObjectToScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args addObjectToSceneArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if !model.IsSnakeCase(args.Name) {
				return nil, apperr.Validation("name", "must be snake_case")
			}
			for _, obj := range hc.Cached.Scene().Objects {
				if obj.Name == args.Name {
					return nil, apperr.Validation("name", "already used in this scene")
				}
			}
			ot, err := hc.Types.Get(args.Type)
			if err != nil {
				return nil, err
			}
			if ot.Disabled {
				return nil, apperr.Preconditionf("object type %s is disabled: %s", ot.Name, ot.Problem)
			}
			if ot.Builtin || ot.Name == string(ot.Family) {
				return nil, apperr.Preconditionf("object type %s cannot be instantiated", ot.Name)
			}
			if ot.RequiresPose() && args.Pose == nil {
				return nil, apperr.Validation("pose", "required by object type "+ot.Name)
			}
			if !ot.RequiresPose() && args.Pose != nil {
				return nil, apperr.Validation("pose", "not accepted by object type "+ot.Name)
			}
			obj := &model.SceneObject{ID: newID("obj"), Name: args.Name, Type: args.Type, Pose: args.Pose, Parameters: args.Parameters}
			if args.IsDryRun() {
				return obj, nil
			}
			hc.Cached.UpsertObject(obj)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneObjectChanged", Data: notify.SceneObjectChanged{ChangeType: notify.ChangeAdd, Data: obj}})
			return obj, nil
		},
		Preconditions: []Precondition{SceneNeeded, EditingOffline, WriteLocked(lock.SceneID)},
	})

	d.Register("UpdateObjectParameters", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateObjectParametersArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			return WithLocks(ctx, hc, []string{args.ID}, session.UserName(), false, func() (interface{}, error) {
				scene := hc.Cached.Scene()
				for _, obj := range scene.Objects {
					if obj.ID == args.ID {
						updated := *obj
						updated.Parameters = args.Parameters
						hc.Cached.UpsertObject(&updated)
						hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneObjectChanged", Data: notify.SceneObjectChanged{ChangeType: notify.ChangeUpdate, Data: obj}})
						return nil, nil
					}
				}
				return nil, apperr.Preconditionf("scene object %s not found", args.ID)
			})
		},
		Preconditions: []Precondition{SceneNeeded, EditingOffline},
	})

	d.Register("UpdateObjectPose", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateObjectPoseArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if !hc.Locks.IsWriteLocked(args.ID, session.UserName()) {
				return nil, apperr.NotWriteLocked(args.ID)
			}
			scene := hc.Cached.Scene()
			for _, obj := range scene.Objects {
				if obj.ID == args.ID {
					pose := args.Pose
					obj.Pose = &pose
					hc.Cached.MarkPoseUpdated(args.ID)
					hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneObjectChanged", Data: notify.SceneObjectChanged{ChangeType: notify.ChangeUpdate, Data: obj}})
					return nil, nil
				}
			}
			return nil, apperr.Preconditionf("scene object %s not found", args.ID)
		},
		Preconditions: []Precondition{SceneNeeded, EditingOffline},
	})

	d.Register("RenameObject", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args renameArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if !model.IsSnakeCase(args.Name) {
				return nil, apperr.Validation("newName", "must be snake_case")
			}
			scene := hc.Cached.Scene()
			var target *model.SceneObject
			for _, obj := range scene.Objects {
				if obj.Name == args.Name && obj.ID != args.ID {
					return nil, apperr.Validation("newName", "already used in this scene")
				}
				if obj.ID == args.ID {
					target = obj
				}
			}
			if target == nil {
				return nil, apperr.Preconditionf("scene object %s not found", args.ID)
			}
			updated := *target
			updated.Name = args.Name
			hc.Cached.UpsertObject(&updated)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneObjectChanged", Data: notify.SceneObjectChanged{ChangeType: notify.ChangeUpdate, Data: target}})
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, EditingOffline},
	})

	d.Register("RemoveFromScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args removeFromSceneArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if project := hc.Cached.Project(); project != nil && !args.Force {
				for _, ap := range project.ActionPoints {
					if ap.ParentID == args.ID {
						return nil, apperr.Preconditionf("scene object %s parents action point %s", args.ID, ap.ID)
					}
				}
			}
			if args.IsDryRun() {
				if hc.Cached.ObjectExists(args.ID) {
					return nil, nil
				}
				return nil, apperr.Preconditionf("scene object %s not found", args.ID)
			}
			if err := hc.Cached.DeleteObject(args.ID); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneObjectChanged", Data: notify.SceneObjectChanged{ChangeType: notify.ChangeRemove, Data: &model.SceneObject{ID: args.ID}}})
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, EditingOffline},
	})

	d.Register("SceneObjectUsage", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args idArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			usage := make([]string, 0)
			if project != nil {
				for _, ap := range project.ActionPoints {
					for _, a := range ap.Actions {
						if len(a.Type) >= len(args.ID) && a.Type[:len(args.ID)] == args.ID {
							usage = append(usage, a.ID)
						}
					}
				}
			}
			return usage, nil
		},
	})

	d.Register("StartScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			if hc.Locks.AnyUserWriteLocked() {
				return nil, apperr.SomethingLocked()
			}
			ids := []string{lock.SceneID}
			if hc.Cached.Project() != nil {
				ids = append(ids, lock.ProjectID)
			}
			if err := hc.Locks.WriteLock(ctx, hc.Cached, ids, lock.ReservedOwner, false); err != nil {
				return nil, apperr.CannotLock(ids)
			}
			if err := hc.Runtime.Start(ctx); err != nil {
				hc.Locks.WriteUnlock(ctx, ids, lock.ReservedOwner)
				return nil, apperr.External("scene runtime", err)
			}
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStopped},
	})

	d.Register("StopScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			if err := hc.Runtime.Stop(ctx); err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			ids := []string{lock.SceneID}
			if hc.Cached.Project() != nil {
				ids = append(ids, lock.ProjectID)
			}
			hc.Locks.WriteUnlock(ctx, ids, lock.ReservedOwner)
			return nil, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})
}
