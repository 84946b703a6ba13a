package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

// ClientRegistry is the minimal surface notify needs from the session
// layer. Defined here, rather than importing internal/session
// directly, so either package can be built and tested independently;
// *session.Registry builds one via its ClientRegistry method.
type ClientRegistry struct {
	// Enqueue delivers data to one client's send buffer, dropping it if
	// the buffer is full. clientID identifies the recipient; data is the
	// already-marshaled frame.
	Enqueue func(clientID string, data []byte)
	// All returns every currently registered client id.
	All func() []string
}

// Bus delivers events to connected clients. Broadcast reaches everyone,
// Send targets one client (e.g. replaying a welcome burst), and
// BroadcastExcluding reaches everyone but one client (the originator of a
// change that only needs echoing to others).
type Bus interface {
	Broadcast(ctx context.Context, evt Event)
	Send(ctx context.Context, clientID string, evt Event)
	BroadcastExcluding(ctx context.Context, excludeClientID string, evt Event)
}

// Deferred queues events instead of delivering them, so a dispatcher can
// hold everything a handler emits until the handler's response has been
// written to the originating client, then Flush in emission order.
type Deferred struct {
	inner Bus

	mu    sync.Mutex
	queue []func(ctx context.Context)
}

// NewDeferred wraps inner with a queueing layer.
func NewDeferred(inner Bus) *Deferred {
	return &Deferred{inner: inner}
}

func (d *Deferred) enqueue(f func(ctx context.Context)) {
	d.mu.Lock()
	d.queue = append(d.queue, f)
	d.mu.Unlock()
}

func (d *Deferred) Broadcast(_ context.Context, evt Event) {
	d.enqueue(func(ctx context.Context) { d.inner.Broadcast(ctx, evt) })
}

func (d *Deferred) Send(_ context.Context, clientID string, evt Event) {
	d.enqueue(func(ctx context.Context) { d.inner.Send(ctx, clientID, evt) })
}

func (d *Deferred) BroadcastExcluding(_ context.Context, excludeClientID string, evt Event) {
	d.enqueue(func(ctx context.Context) { d.inner.BroadcastExcluding(ctx, excludeClientID, evt) })
}

// Flush delivers every queued event in emission order and empties the queue.
func (d *Deferred) Flush(ctx context.Context) {
	d.mu.Lock()
	queue := d.queue
	d.queue = nil
	d.mu.Unlock()
	for _, f := range queue {
		f(ctx)
	}
}

// MemoryBus fans events out directly to an in-process ClientRegistry. This
// is the default single-instance bus: marshal once, then fan out with
// drop-on-overflow per client.
type MemoryBus struct {
	registry ClientRegistry
	logger   *logger.Logger
}

// NewMemoryBus creates a bus backed by registry.
func NewMemoryBus(registry ClientRegistry, log *logger.Logger) *MemoryBus {
	return &MemoryBus{registry: registry, logger: log}
}

func (b *MemoryBus) encode(evt Event) ([]byte, error) {
	wireEvt, err := wire.NewEvent(evt.Name, evt.Data)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", evt.Name, err)
	}
	return wire.MarshalFrame(wireEvt)
}

func (b *MemoryBus) Broadcast(_ context.Context, evt Event) {
	data, err := b.encode(evt)
	if err != nil {
		b.logger.Error("failed to encode event", zap.String("event", evt.Name), zap.Error(err))
		return
	}
	for _, id := range b.registry.All() {
		b.registry.Enqueue(id, data)
	}
}

func (b *MemoryBus) Send(_ context.Context, clientID string, evt Event) {
	data, err := b.encode(evt)
	if err != nil {
		b.logger.Error("failed to encode event", zap.String("event", evt.Name), zap.Error(err))
		return
	}
	b.registry.Enqueue(clientID, data)
}

func (b *MemoryBus) BroadcastExcluding(_ context.Context, excludeClientID string, evt Event) {
	data, err := b.encode(evt)
	if err != nil {
		b.logger.Error("failed to encode event", zap.String("event", evt.Name), zap.Error(err))
		return
	}
	for _, id := range b.registry.All() {
		if id == excludeClientID {
			continue
		}
		b.registry.Enqueue(id, data)
	}
}
