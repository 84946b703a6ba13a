// Package hubctx bundles every shared collaborator the dispatcher's
// handlers close over: the editing cache, the object-type registry, the
// lock manager, the scene runtime, the notification bus, and the three
// external-service clients. It replaces a module-level globals object with
// one explicit value threaded through the dispatcher.
package hubctx

import (
	"github.com/robofit/arcor2-sub002/internal/buildclient"
	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/execbridge"
	"github.com/robofit/arcor2-sub002/internal/lock"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
	"github.com/robofit/arcor2-sub002/internal/sceneruntime"
	"github.com/robofit/arcor2-sub002/internal/simclient"
	"github.com/robofit/arcor2-sub002/internal/state"
	"github.com/robofit/arcor2-sub002/internal/storeclient"
)

// Context is the hub-wide collaborator bundle. Every field is safe for
// concurrent use on its own; Context itself carries no additional locking.
type Context struct {
	Cached  *state.Cached
	Types   *objecttype.Registry
	Locks   *lock.Manager
	Runtime *sceneruntime.Runtime
	Bus     notify.Bus

	Store  *storeclient.Client
	Sim    *simclient.Client
	Build  *buildclient.Client
	Bridge *execbridge.Bridge

	Logger *logger.Logger
}

// WithBus returns a shallow copy of the Context whose Bus is replaced,
// used by the dispatcher to defer handler-emitted events until the
// handler's response has been written.
func (c *Context) WithBus(bus notify.Bus) *Context {
	copied := *c
	copied.Bus = bus
	return &copied
}

// New assembles a Context from its already-constructed collaborators.
func New(
	cached *state.Cached,
	types *objecttype.Registry,
	locks *lock.Manager,
	runtime *sceneruntime.Runtime,
	bus notify.Bus,
	store *storeclient.Client,
	sim *simclient.Client,
	build *buildclient.Client,
	bridge *execbridge.Bridge,
	log *logger.Logger,
) *Context {
	return &Context{
		Cached:  cached,
		Types:   types,
		Locks:   locks,
		Runtime: runtime,
		Bus:     bus,
		Store:   store,
		Sim:     sim,
		Build:   build,
		Bridge:  bridge,
		Logger:  log,
	}
}
