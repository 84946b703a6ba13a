package dispatcher

import (
	"context"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type lockArgs struct {
	ObjectID string `json:"objectId"`
	LockTree bool   `json:"lockTree,omitempty"`
}

func (a lockArgs) validate() error {
	if a.ObjectID == "" {
		return apperr.Validation("objectId", "must not be empty")
	}
	return nil
}

// RegisterLockHandlers wires the Lock RPC category.
func RegisterLockHandlers(d *Dispatcher) {
	d.Register("ReadLock", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args lockArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if err := args.validate(); err != nil {
				return nil, err
			}
			if err := hc.Locks.ReadLock(ctx, hc.Cached, []string{args.ObjectID}, session.UserName(), args.LockTree); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})

	d.Register("WriteLock", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args lockArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if err := args.validate(); err != nil {
				return nil, err
			}
			if err := hc.Locks.WriteLock(ctx, hc.Cached, []string{args.ObjectID}, session.UserName(), args.LockTree); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})

	d.Register("ReadUnlock", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args lockArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if err := args.validate(); err != nil {
				return nil, err
			}
			hc.Locks.ReadUnlock(ctx, []string{args.ObjectID}, session.UserName())
			return nil, nil
		},
	})

	d.Register("WriteUnlock", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args lockArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if err := args.validate(); err != nil {
				return nil, err
			}
			hc.Locks.WriteUnlock(ctx, []string{args.ObjectID}, session.UserName())
			return nil, nil
		},
	})
}
