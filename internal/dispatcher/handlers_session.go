package dispatcher

import (
	"context"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/lock"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

const serverVersion = "1.0.0"
const apiVersion = "1.0.0"

type systemInfoResult struct {
	Version       string   `json:"version"`
	APIVersion    string   `json:"apiVersion"`
	SupportedRPCs []string `json:"supportedRpcs"`
}

type registerUserArgs struct {
	UserName string `json:"userName"`
}

// RegisterSessionHandlers wires the Session RPC category: no
// scene/project preconditions, usable before any editing state exists.
func RegisterSessionHandlers(d *Dispatcher) {
	d.Register("SystemInfo", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			return systemInfoResult{Version: serverVersion, APIVersion: apiVersion, SupportedRPCs: d.RegisteredNames()}, nil
		},
	})

	d.Register("Version", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			return systemInfoResult{Version: serverVersion, APIVersion: apiVersion}, nil
		},
	})

	d.Register("RegisterUser", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args registerUserArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if args.UserName == "" {
				return nil, apperr.Validation("userName", "must not be empty")
			}
			if args.UserName == lock.ReservedOwner {
				return nil, apperr.Validation("userName", "is reserved")
			}
			if err := session.RegisterUser(ctx, args.UserName); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})
}

// APIVersion is the wire protocol version printed by the CLI's
// --api_version option and reported by SystemInfo.
func APIVersion() string { return apiVersion }

// ServerVersion is the server release version printed by --version.
func ServerVersion() string { return serverVersion }

// RegisteredNames returns every registered RPC name, for SystemInfo and
// the CLI's --swagger catalogue dump.
func (d *Dispatcher) RegisteredNames() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}
