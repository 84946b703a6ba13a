// Package session implements the client registry and user/session manager:
// one websocket channel per UI client, user-name binding with a
// duplicate-login liveness probe, the welcome burst on connect, and lock
// release on disconnect.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/dispatcher"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/notify"
)

// Registry tracks every open client channel and the user names bound to
// them. It is the concrete backing of notify.ClientRegistry.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client

	dispatcher *dispatcher.Dispatcher
	hc         *hubctx.Context
	logger     *logger.Logger
}

// NewRegistry creates an empty registry. Bind must be called with the hub
// context and dispatcher before the first client connects; the registry is
// created first because the notification bus needs its ClientRegistry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		logger:  log.WithFields(zap.String("component", "session")),
	}
}

// Bind attaches the collaborators the registry needs at request time. The
// two-phase construction breaks the cycle registry → bus → lock manager →
// hub context → registry.
func (r *Registry) Bind(hc *hubctx.Context, d *dispatcher.Dispatcher) {
	r.hc = hc
	r.dispatcher = d
}

// ClientRegistry adapts the registry to the function-pair surface the
// notification bus consumes.
func (r *Registry) ClientRegistry() notify.ClientRegistry {
	return notify.ClientRegistry{
		Enqueue: r.Enqueue,
		All:     r.All,
	}
}

// Add registers a freshly upgraded client and sends it the welcome burst.
func (r *Registry) Add(ctx context.Context, c *Client) {
	r.mu.Lock()
	r.clients[c.id] = c
	r.mu.Unlock()
	r.logger.Debug("client registered", zap.String("client_id", c.id))

	r.sendWelcome(ctx, c)
}

// Remove unregisters a client, closes its send channel, and releases every
// lock its user still holds. Safe to call more than once.
func (r *Registry) Remove(ctx context.Context, c *Client) {
	r.mu.Lock()
	_, present := r.clients[c.id]
	delete(r.clients, c.id)
	r.mu.Unlock()

	if !present || c.markClosed() {
		return
	}
	close(c.send)

	userName := c.UserName()
	r.logger.Info("client disconnected",
		zap.String("client_id", c.id), zap.String("user", userName))

	if userName != "" && r.hc != nil {
		r.hc.Locks.ReleaseAllForOwner(ctx, userName)
	}
}

// RegisterUser binds userName to c. Names must be unique among live
// sessions; a duplicate is tolerated only when the previous holder fails a
// liveness probe, in which case the stale channel is evicted.
func (r *Registry) RegisterUser(ctx context.Context, c *Client, userName string) error {
	r.mu.RLock()
	var holder *Client
	for _, other := range r.clients {
		if other.id != c.id && other.UserName() == userName {
			holder = other
			break
		}
	}
	r.mu.RUnlock()

	if holder != nil {
		if holder.probe() {
			return apperr.Preconditionf("Username %s already exists.", userName)
		}
		r.logger.Info("evicting stale session",
			zap.String("user", userName), zap.String("client_id", holder.id))
		r.Remove(ctx, holder)
	}

	c.setUserName(userName)
	r.logger.Info("user registered",
		zap.String("user", userName), zap.String("client_id", c.id))
	return nil
}

// Enqueue delivers an already-marshaled frame to one client's send buffer.
func (r *Registry) Enqueue(clientID string, data []byte) {
	r.mu.RLock()
	c, ok := r.clients[clientID]
	r.mu.RUnlock()
	if ok {
		c.Enqueue(data)
	}
}

// All returns every currently registered client id.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll disconnects every client, used on server shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		r.Remove(ctx, c)
	}
}
