package dispatcher

import (
	"context"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type getActionsArgs struct {
	ObjectTypeName string `json:"objectTypeName"`
}

type newObjectTypeArgs struct {
	ObjectType objecttype.ObjectType `json:"objectType"`
	DryRunArgs
}

type updateObjectModelArgs struct {
	ObjectTypeName string                   `json:"objectTypeName"`
	Model          *objecttype.CollisionModel `json:"model"`
}

type deleteObjectTypesArgs struct {
	Names []string `json:"names"`
}

type objectTypeUsageArgs struct {
	ObjectTypeName string `json:"objectTypeName"`
}

// RegisterObjectTypeHandlers wires the ObjectType RPC category.
func RegisterObjectTypeHandlers(d *Dispatcher) {
	d.Register("GetObjectTypes", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			return hc.Types.List(), nil
		},
	})

	d.Register("GetActions", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args getActionsArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			ot, err := hc.Types.Get(args.ObjectTypeName)
			if err != nil {
				return nil, err
			}
			return ot.Actions, nil
		},
	})

	d.Register("NewObjectType", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args newObjectTypeArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			ot := args.ObjectType
			if !model.IsPascalCase(ot.Name) {
				return nil, apperr.Validation("name", "must be PascalCase")
			}
			if args.IsDryRun() {
				return nil, nil
			}
			if err := hc.Types.Register(&ot); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notifyChangedObjectTypes(hc))
			return nil, nil
		},
	})

	d.Register("UpdateObjectModel", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateObjectModelArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			ot, err := hc.Types.Get(args.ObjectTypeName)
			if err != nil {
				return nil, err
			}
			ot.Collision = args.Model
			hc.Bus.Broadcast(ctx, notifyChangedObjectTypes(hc))
			return nil, nil
		},
	})

	d.Register("DeleteObjectTypes", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args deleteObjectTypesArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if scene := hc.Cached.Scene(); scene != nil {
				for _, name := range args.Names {
					for _, obj := range scene.Objects {
						if obj.Type == name {
							return nil, apperr.Preconditionf("object type %s is used by scene object %s", name, obj.ID)
						}
					}
				}
			}
			for _, name := range args.Names {
				if err := hc.Types.Unregister(name); err != nil {
					return nil, err
				}
			}
			hc.Bus.Broadcast(ctx, notifyChangedObjectTypes(hc))
			return nil, nil
		},
	})

	d.Register("ObjectTypeUsage", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args objectTypeUsageArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			usage := make([]string, 0)
			if scene := hc.Cached.Scene(); scene != nil {
				for _, obj := range scene.Objects {
					if obj.Type == args.ObjectTypeName {
						usage = append(usage, obj.ID)
					}
				}
			}
			return usage, nil
		},
	})
}

func notifyChangedObjectTypes(hc *hubctx.Context) notify.Event {
	types := hc.Types.List()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.Name)
	}
	return notify.Event{Name: "ChangedObjectTypes", Data: notify.ChangedObjectTypes{Names: names}}
}
