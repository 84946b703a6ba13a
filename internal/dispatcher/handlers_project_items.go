package dispatcher

import (
	"context"
	"strings"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type addOrientationArgs struct {
	ActionPointID string            `json:"actionPointId"`
	Name          string            `json:"name"`
	Orientation   model.Orientation `json:"orientation"`
	DryRunArgs
}

type updateOrientationArgs struct {
	OrientationID string            `json:"orientationId"`
	Orientation   model.Orientation `json:"orientation"`
	DryRunArgs
}

type orientationIDArgs struct {
	OrientationID string `json:"orientationId"`
	DryRunArgs
}

type removeItemArgs struct {
	ID string `json:"id"`
	DryRunArgs
}

type addConstantArgs struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value []byte `json:"value"`
	DryRunArgs
}

type updateConstantArgs struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Value []byte `json:"value,omitempty"`
	DryRunArgs
}

type overrideArgs struct {
	SceneObjectID string           `json:"sceneObjectId"`
	Parameter     *model.Parameter `json:"parameter"`
	DryRunArgs
}

// RegisterProjectItemHandlers wires the orientation, constant, override,
// and removal RPC families of the project editor.
func RegisterProjectItemHandlers(d *Dispatcher) {
	d.Register("AddActionPointOrientation", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args addOrientationArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if !model.IsSnakeCase(args.Name) {
				return nil, apperr.Validation("name", "must be snake_case")
			}
			if findActionPoint(hc.Cached.Project(), args.ActionPointID) == nil {
				return nil, apperr.Preconditionf("action point %s not found", args.ActionPointID)
			}
			if args.IsDryRun() {
				return nil, nil
			}
			o := &model.NamedOrientation{ID: newID("ori"), Name: args.Name, Orientation: args.Orientation}
			if err := hc.Cached.UpsertOrientation(args.ActionPointID, o); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "OrientationChanged", Data: notify.OrientationChanged{ChangeType: notify.ChangeAdd, ActionPointID: args.ActionPointID, Data: o}})
			return o, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("UpdateActionPointOrientation", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateOrientationArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			apID, ok := hc.Cached.OrientationOwner(args.OrientationID)
			if !ok {
				return nil, apperr.Preconditionf("orientation %s not found", args.OrientationID)
			}
			var current *model.NamedOrientation
			for _, ap := range hc.Cached.Project().ActionPoints {
				if ap.ID != apID {
					continue
				}
				for _, o := range ap.Orientations {
					if o.ID == args.OrientationID {
						current = o
					}
				}
			}
			if current == nil {
				return nil, apperr.Preconditionf("orientation %s not found", args.OrientationID)
			}
			if args.IsDryRun() {
				return nil, nil
			}
			updated := *current
			updated.Orientation = args.Orientation
			if err := hc.Cached.UpsertOrientation(apID, &updated); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "OrientationChanged", Data: notify.OrientationChanged{ChangeType: notify.ChangeUpdate, ActionPointID: apID, Data: &updated}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("RemoveActionPointOrientation", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args orientationIDArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			apID, ok := hc.Cached.OrientationOwner(args.OrientationID)
			if !ok {
				return nil, apperr.Preconditionf("orientation %s not found", args.OrientationID)
			}
			if args.IsDryRun() {
				return nil, nil
			}
			if err := hc.Cached.RemoveOrientation(args.OrientationID); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "OrientationChanged", Data: notify.OrientationChanged{ChangeType: notify.ChangeRemove, ActionPointID: apID, Data: &model.NamedOrientation{ID: args.OrientationID}}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("RemoveActionPoint", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args removeItemArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if findActionPoint(hc.Cached.Project(), args.ID) == nil {
				return nil, apperr.Preconditionf("action point %s not found", args.ID)
			}
			if args.IsDryRun() {
				return nil, nil
			}
			if err := hc.Cached.RemoveActionPoint(args.ID); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ActionPointChanged", Data: notify.ActionPointChanged{ChangeType: notify.ChangeRemove, Data: &model.ActionPoint{ID: args.ID}}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("RemoveAction", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args removeItemArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			if findAction(project, args.ID) == nil {
				return nil, apperr.Preconditionf("action %s not found", args.ID)
			}
			for _, li := range project.LogicItems {
				if li.To == args.ID || strings.HasPrefix(li.From, args.ID+"/") {
					return nil, apperr.Preconditionf("action %s is used by logic item %s", args.ID, li.ID)
				}
			}
			if args.IsDryRun() {
				return nil, nil
			}
			if err := hc.Cached.RemoveAction(args.ID); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ActionChanged", Data: notify.ActionChanged{ChangeType: notify.ChangeRemove, Data: &model.Action{ID: args.ID}}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("RemoveLogicItem", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args removeItemArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			found := false
			for _, li := range hc.Cached.Project().LogicItems {
				if li.ID == args.ID {
					found = true
					break
				}
			}
			if !found {
				return nil, apperr.Preconditionf("logic item %s not found", args.ID)
			}
			if args.IsDryRun() {
				return nil, nil
			}
			if err := hc.Cached.RemoveLogicItem(args.ID); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "LogicItemChanged", Data: notify.LogicItemChanged{ChangeType: notify.ChangeRemove, Data: &model.LogicItem{ID: args.ID}}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("AddConstant", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args addConstantArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if !model.IsSnakeCase(args.Name) {
				return nil, apperr.Validation("name", "must be snake_case")
			}
			for _, c := range hc.Cached.Project().Constants {
				if c.Name == args.Name {
					return nil, apperr.Validation("name", "already used in this project")
				}
			}
			if args.IsDryRun() {
				return nil, nil
			}
			constant := &model.Constant{ID: newID("const"), Name: args.Name, Type: args.Type, Value: args.Value}
			hc.Cached.UpsertConstant(constant)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ProjectChanged", Data: notify.ProjectChanged{Project: hc.Cached.Project()}})
			return constant, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("UpdateConstant", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateConstantArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			var current *model.Constant
			for _, c := range hc.Cached.Project().Constants {
				if c.ID == args.ID {
					current = c
					break
				}
			}
			if current == nil {
				return nil, apperr.Preconditionf("constant %s not found", args.ID)
			}
			updated := *current
			if args.Name != "" {
				if !model.IsSnakeCase(args.Name) {
					return nil, apperr.Validation("name", "must be snake_case")
				}
				updated.Name = args.Name
			}
			if args.Value != nil {
				updated.Value = args.Value
			}
			if args.IsDryRun() {
				return nil, nil
			}
			hc.Cached.UpsertConstant(&updated)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ProjectChanged", Data: notify.ProjectChanged{Project: hc.Cached.Project()}})
			return &updated, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("RemoveConstant", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args removeItemArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			found := false
			for _, c := range project.Constants {
				if c.ID == args.ID {
					found = true
					break
				}
			}
			if !found {
				return nil, apperr.Preconditionf("constant %s not found", args.ID)
			}
			for _, ap := range project.ActionPoints {
				for _, a := range ap.Actions {
					for _, p := range a.Parameters {
						if p.Kind == model.ParameterKindConstant && p.Const == args.ID {
							return nil, apperr.Preconditionf("constant %s is used by action %s", args.ID, a.ID)
						}
					}
				}
			}
			if args.IsDryRun() {
				return nil, nil
			}
			if err := hc.Cached.RemoveConstant(args.ID); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ProjectChanged", Data: notify.ProjectChanged{Project: project}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("UpdateProjectOverride", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args overrideArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if args.Parameter == nil {
				return nil, apperr.Validation("parameter", "must be set")
			}
			if err := validateOverride(hc, args.SceneObjectID, args.Parameter); err != nil {
				return nil, err
			}
			if args.IsDryRun() {
				return nil, nil
			}
			params := overridesFor(hc.Cached.Project(), args.SceneObjectID)
			replaced := false
			for i, p := range params {
				if p.Name == args.Parameter.Name {
					params[i] = args.Parameter
					replaced = true
				}
			}
			if !replaced {
				params = append(params, args.Parameter)
			}
			hc.Cached.SetOverrides(args.SceneObjectID, params)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ProjectChanged", Data: notify.ProjectChanged{Project: hc.Cached.Project()}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("DeleteProjectOverride", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args overrideArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if args.Parameter == nil {
				return nil, apperr.Validation("parameter", "must be set")
			}
			if args.IsDryRun() {
				return nil, nil
			}
			params := overridesFor(hc.Cached.Project(), args.SceneObjectID)
			kept := params[:0]
			for _, p := range params {
				if p.Name != args.Parameter.Name {
					kept = append(kept, p)
				}
			}
			hc.Cached.SetOverrides(args.SceneObjectID, kept)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ProjectChanged", Data: notify.ProjectChanged{Project: hc.Cached.Project()}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})
}

func overridesFor(project *model.Project, sceneObjectID string) []*model.Parameter {
	var out []*model.Parameter
	for _, o := range project.Overrides {
		if o.SceneObjectID == sceneObjectID {
			out = append(out, o.Parameter)
		}
	}
	return out
}

// validateOverride: override parameters are only accepted for names that
// exist on the target object's type with a matching declared type.
func validateOverride(hc *hubctx.Context, sceneObjectID string, param *model.Parameter) error {
	scene := hc.Cached.Scene()
	var typeName string
	for _, obj := range scene.Objects {
		if obj.ID == sceneObjectID {
			typeName = obj.Type
			break
		}
	}
	if typeName == "" {
		return apperr.Preconditionf("scene object %s not found", sceneObjectID)
	}
	ot, err := hc.Types.Get(typeName)
	if err != nil {
		return err
	}
	for _, field := range ot.Settings {
		if field.Name == param.Name {
			if field.Type != param.Type {
				return apperr.Validation(param.Name, "has type "+param.Type+", want "+field.Type)
			}
			return nil
		}
	}
	return apperr.Validation(param.Name, "is not a setting of type "+typeName)
}
