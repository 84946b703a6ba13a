// Package dispatcher implements the RPC dispatcher: a request-name
// registry mapping to (handler, preconditions), with scoped lock
// acquisition, dry_run support, and OpenTelemetry span wrapping per call.
package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/common/tracing"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

// Precondition is evaluated before a handler body runs; hc carries every
// shared collaborator and session carries the calling client's identity.
type Precondition func(hc *hubctx.Context, session Session) error

// Session is the identity and request metadata a handler needs: the
// caller's registered user name (required by every lock-taking RPC), the
// originating client id (used to exclude the caller from echoed broadcasts),
// and the RegisterUser operation itself, which only the session layer can
// perform since it owns the live-channel table and the duplicate-login
// liveness probe.
type Session interface {
	UserName() string
	ClientID() string
	RegisterUser(ctx context.Context, userName string) error
}

// Handler processes one decoded request and returns the data to encode into
// a successful Response, or an error (normally an *apperr.AppError).
type Handler func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error)

// HandlerSpec is one registered RPC: its handler function plus the
// preconditions the dispatcher checks before invoking it.
type HandlerSpec struct {
	Handler       Handler
	Preconditions []Precondition
}

// Dispatcher routes decoded requests to registered handlers by name.
type Dispatcher struct {
	handlers map[string]HandlerSpec
	hc       *hubctx.Context
	logger   *logger.Logger
}

// New creates an empty dispatcher bound to hc, the shared collaborator
// bundle every handler closes over.
func New(hc *hubctx.Context, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerSpec),
		hc:       hc,
		logger:   log,
	}
}

// Register adds a handler for name. Registering the same name twice is a
// programmer error and panics at startup rather than silently shadowing.
func (d *Dispatcher) Register(name string, spec HandlerSpec) {
	if _, exists := d.handlers[name]; exists {
		panic(fmt.Sprintf("dispatcher: handler %q already registered", name))
	}
	d.handlers[name] = spec
}

// HasHandler reports whether name is registered.
func (d *Dispatcher) HasHandler(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

// Dispatch routes req to its handler, running preconditions first, and
// returns the wire Response to write back to the caller plus a flush
// function delivering the events the handler emitted. The caller MUST
// invoke flush after writing the response: per-channel ordering requires
// the originator to see its response before any event the handler caused.
// Dispatch never returns an error itself: dispatch failures (unknown RPC,
// failed precondition, handler error) are all encoded as a failed Response
// so the channel stays open.
func (d *Dispatcher) Dispatch(ctx context.Context, session Session, req *wire.Request) (*wire.Response, func()) {
	deferred := notify.NewDeferred(d.hc.Bus)
	flush := func() { deferred.Flush(ctx) }
	hc := d.hc.WithBus(deferred)

	ctx, span := tracing.StartRPC(ctx, req.Request)
	defer func() {
		tracing.End(span, nil)
	}()

	spec, ok := d.handlers[req.Request]
	if !ok {
		d.logger.Warn("unknown RPC", zap.String("request", req.Request))
		return wire.Failed(req.Request, req.ID, []string{fmt.Sprintf("unknown request %q", req.Request)}), flush
	}

	for _, pre := range spec.Preconditions {
		if err := pre(hc, session); err != nil {
			return wire.Failed(req.Request, req.ID, apperr.Messages(err)), flush
		}
	}

	data, err := spec.Handler(ctx, hc, session, req)
	if err != nil {
		var appErr *apperr.AppError
		if !apperr.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
			d.logger.Error("RPC failed with internal error",
				zap.String("request", req.Request),
				zap.Uint64("id", req.ID),
				zap.Error(err),
				zap.Stack("stacktrace"))
		} else {
			d.logger.Info("RPC failed",
				zap.String("request", req.Request),
				zap.Uint64("id", req.ID),
				zap.Error(err))
		}
		tracing.End(span, err)
		return wire.Failed(req.Request, req.ID, apperr.Messages(err)), flush
	}

	resp, err := wire.OK(req.Request, req.ID, data)
	if err != nil {
		d.logger.Error("failed to encode RPC response",
			zap.String("request", req.Request), zap.Error(err))
		return wire.Failed(req.Request, req.ID, []string{"internal error encoding response"}), flush
	}
	return resp, flush
}
