package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

// NATSBus publishes events to a NATS subject namespace instead of fanning
// out in-process, so multiple arserver instances behind a shared gateway
// can broadcast to each other's clients.
type NATSBus struct {
	conn      *nats.Conn
	namespace string
	registry  ClientRegistry
	logger    *logger.Logger
}

// NewNATSBus connects to url and subscribes the local ClientRegistry to the
// namespace's broadcast subject so events published by other instances
// still reach locally-connected clients.
func NewNATSBus(url, namespace string, registry ClientRegistry, log *logger.Logger) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name("arserver"),
		// NoEcho: this connection never receives its own publishes back,
		// since Broadcast/BroadcastExcluding already deliver locally
		// before publishing for other instances.
		nats.NoEcho(),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(5 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("NATS error", zap.Error(err), zap.String("subject", subject))
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &NATSBus{conn: conn, namespace: namespace, registry: registry, logger: log}

	if _, err := conn.Subscribe(b.subject("broadcast"), b.remoteHandler()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to broadcast subject: %w", err)
	}

	log.Info("connected to NATS", zap.String("url", url), zap.String("namespace", namespace))
	return b, nil
}

func (b *NATSBus) subject(suffix string) string {
	return fmt.Sprintf("%s.events.%s", b.namespace, suffix)
}

// remoteHandler re-delivers events received from other instances to this
// instance's locally connected clients, without re-publishing them (which
// would loop).
func (b *NATSBus) remoteHandler() nats.MsgHandler {
	return func(msg *nats.Msg) {
		for _, id := range b.registry.All() {
			b.registry.Enqueue(id, msg.Data)
		}
	}
}

// encode marshals evt to a wire frame, logging and returning ok=false on
// failure so callers can bail out without duplicating the error branch.
func (b *NATSBus) encode(evt Event) (data []byte, ok bool) {
	wireEvt, err := wire.NewEvent(evt.Name, evt.Data)
	if err != nil {
		b.logger.Error("failed to encode event", zap.String("event", evt.Name), zap.Error(err))
		return nil, false
	}
	data, err = wire.MarshalFrame(wireEvt)
	if err != nil {
		b.logger.Error("failed to marshal event frame", zap.String("event", evt.Name), zap.Error(err))
		return nil, false
	}
	return data, true
}

func (b *NATSBus) publish(data []byte, eventName string) {
	if err := b.conn.Publish(b.subject("broadcast"), data); err != nil {
		b.logger.Error("failed to publish event", zap.String("event", eventName), zap.Error(err))
	}
}

func (b *NATSBus) Broadcast(_ context.Context, evt Event) {
	data, ok := b.encode(evt)
	if !ok {
		return
	}
	for _, id := range b.registry.All() {
		b.registry.Enqueue(id, data)
	}
	b.publish(data, evt.Name)
}

// Send delivers directly to the local client; cross-instance targeted
// delivery is out of scope (clients connect to one instance for their
// session's lifetime).
func (b *NATSBus) Send(_ context.Context, clientID string, evt Event) {
	data, ok := b.encode(evt)
	if !ok {
		return
	}
	b.registry.Enqueue(clientID, data)
}

// BroadcastExcluding still publishes cluster-wide since remote instances
// have no notion of excludeClientID; the excluded client is skipped only
// in this instance's own local delivery.
func (b *NATSBus) BroadcastExcluding(_ context.Context, excludeClientID string, evt Event) {
	data, ok := b.encode(evt)
	if !ok {
		return
	}
	for _, id := range b.registry.All() {
		if id == excludeClientID {
			continue
		}
		b.registry.Enqueue(id, data)
	}
	b.publish(data, evt.Name)
}

// Close drains and closes the NATS connection.
func (b *NATSBus) Close() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("error draining NATS connection", zap.Error(err))
		b.conn.Close()
		return
	}
	b.logger.Info("NATS connection closed")
}
