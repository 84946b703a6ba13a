// Package execbridge implements the execution bridge: a persistent duplex
// connection to the execution runtime, a single FIFO outgoing request
// queue, single-slot per-request response correlation, and 1s reconnect.
// On reconnect the bridge replays, in order, the requests that were queued
// while no connection was up or whose write failed. A request that was
// already written when the connection dropped is not re-sent; its Call
// keeps waiting until its ctx ends.
package execbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/common/tracing"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

const reconnectDelay = 1 * time.Second

// EventHandler is invoked for every event frame the execution runtime
// sends, so the bridge can cache and re-broadcast the latest
// PackageState/PackageInfo/ActionStateBefore/ActionStateAfter and raise
// ShowMainScreen on a non-temporary STOPPED transition.
type EventHandler func(evt *wire.Event)

// Bridge owns the single shared connection to the execution runtime.
type Bridge struct {
	url    string
	bus    notify.Bus
	logger *logger.Logger
	onEvent EventHandler

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  uint64
	pending map[uint64]chan *wire.Response
	queue   []*wire.Request

	cacheMu sync.Mutex
	cache   eventCache
}

// eventCache holds the latest observed execution-originated state so newly
// connected clients can be caught up without replaying the whole history.
type eventCache struct {
	packageState      *wire.Event
	packageInfo       *wire.Event
	actionStateBefore *wire.Event
	actionStateAfter  *wire.Event
}

// New creates a Bridge for the execution runtime at url. Call Run in a
// goroutine to start connecting.
func New(url string, bus notify.Bus, onEvent EventHandler, log *logger.Logger) *Bridge {
	return &Bridge{
		url:     url,
		bus:     bus,
		onEvent: onEvent,
		logger:  log.WithFields(zap.String("component", "execbridge")),
		pending: make(map[uint64]chan *wire.Response),
	}
}

// Run connects and reconnects forever until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := b.connectAndServe(ctx); err != nil {
			b.logger.Warn("execution bridge connection lost", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (b *Bridge) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial execution runtime: %w", err)
	}
	b.logger.Info("connected to execution runtime", zap.String("url", b.url))

	b.mu.Lock()
	b.conn = conn
	replay := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, req := range replay {
		if err := b.writeRequest(req); err != nil {
			b.logger.Warn("failed to replay pending request on reconnect",
				zap.Uint64("id", req.ID), zap.Error(err))
		}
	}

	return b.readLoop(conn)
}

func (b *Bridge) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			b.handleDisconnect()
			return fmt.Errorf("read: %w", err)
		}
		b.handleFrame(raw)
	}
}

func (b *Bridge) handleFrame(raw []byte) {
	var probe wire.RawFrame
	if err := json.Unmarshal(raw, &probe); err != nil {
		b.logger.Warn("malformed frame from execution runtime", zap.Error(err))
		return
	}
	disc, _, ok := probe.Discriminator()
	if !ok {
		return
	}
	switch disc {
	case wire.DiscriminatorResponse:
		var resp wire.Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			b.logger.Warn("malformed response from execution runtime", zap.Error(err))
			return
		}
		b.deliverResponse(&resp)
	case wire.DiscriminatorEvent:
		var evt wire.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			b.logger.Warn("malformed event from execution runtime", zap.Error(err))
			return
		}
		b.handleEvent(&evt)
	}
}

func (b *Bridge) deliverResponse(resp *wire.Response) {
	b.mu.Lock()
	ch, ok := b.pending[resp.ID]
	if ok {
		delete(b.pending, resp.ID)
	}
	b.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (b *Bridge) handleDisconnect() {
	b.mu.Lock()
	b.conn = nil
	b.mu.Unlock()
}

// Call sends req and blocks until a response arrives or ctx is cancelled.
// If the connection is currently down, the request is queued and Call
// blocks until reconnection delivers a response.
func (b *Bridge) Call(ctx context.Context, method string, args interface{}) (*wire.Response, error) {
	ctx, span := tracing.StartBridgeCall(ctx, method)
	defer func() { tracing.End(span, nil) }()

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding args for %s: %w", method, err)
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	req := &wire.Request{Request: method, ID: id, Args: raw}
	respCh := make(chan *wire.Response, 1)
	b.pending[id] = respCh
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		b.mu.Lock()
		b.queue = append(b.queue, req)
		b.mu.Unlock()
	} else if err := b.writeRequest(req); err != nil {
		b.mu.Lock()
		b.queue = append(b.queue, req)
		b.mu.Unlock()
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (b *Bridge) writeRequest(req *wire.Request) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no active connection")
	}
	raw, err := wire.MarshalFrame(req)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}
