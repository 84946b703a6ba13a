package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB

	// How long a duplicate-login liveness probe waits for a pong.
	probeTimeout = 1 * time.Second

	// Per-client outgoing buffer; a client that falls this far behind is
	// dropped rather than allowed to stall mutation broadcasts.
	sendBufferSize = 256
)

// Client is one connected UI channel. It satisfies dispatcher.Session.
type Client struct {
	id       string
	conn     *websocket.Conn
	registry *Registry
	send     chan []byte
	pong     chan struct{}

	mu       sync.RWMutex
	userName string
	closed   bool

	logger *logger.Logger
}

// NewClient wraps an upgraded websocket connection.
func NewClient(id string, conn *websocket.Conn, registry *Registry, log *logger.Logger) *Client {
	return &Client{
		id:       id,
		conn:     conn,
		registry: registry,
		send:     make(chan []byte, sendBufferSize),
		pong:     make(chan struct{}, 1),
		logger:   log.WithFields(zap.String("client_id", id)),
	}
}

// ClientID returns the channel's unique id.
func (c *Client) ClientID() string { return c.id }

// UserName returns the name bound by RegisterUser, or "" before that.
func (c *Client) UserName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userName
}

// RegisterUser binds userName to this channel via the registry, which
// enforces live-session uniqueness and probes stale duplicates.
func (c *Client) RegisterUser(ctx context.Context, userName string) error {
	return c.registry.RegisterUser(ctx, c, userName)
}

func (c *Client) setUserName(name string) {
	c.mu.Lock()
	c.userName = name
	c.mu.Unlock()
}

// Enqueue places an already-marshaled frame on the outgoing buffer. When
// the buffer is full the frame is dropped and the client scheduled for
// disconnection, so a slow UI never blocks an RPC handler.
func (c *Client) Enqueue(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	overflow := false
	select {
	case c.send <- data:
	default:
		overflow = true
	}
	c.mu.RUnlock()

	if overflow {
		c.logger.Warn("client send buffer full, dropping client")
		c.registry.Remove(context.Background(), c)
	}
}

// probe sends a websocket ping and waits up to probeTimeout for a pong. It
// is used before evicting a session that looks like a duplicate login.
func (c *Client) probe() bool {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(probeTimeout)); err != nil {
		return false
	}
	select {
	case <-c.pong:
		return true
	case <-time.After(probeTimeout):
		return false
	}
}

// ReadPump pumps frames from the websocket to the dispatcher. It blocks
// until the connection drops and then unregisters the client.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.registry.Remove(ctx, c)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("failed to close websocket connection", zap.Error(err))
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("failed to set read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		select {
		case c.pong <- struct{}{}:
		default:
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleFrame(ctx, raw)
	}
}

// handleFrame decodes one inbound frame and dispatches it. Handlers run in
// their own goroutine so a long-running RPC (scene start, package build)
// never blocks the read pump; the request id correlates the response.
func (c *Client) handleFrame(ctx context.Context, raw []byte) {
	req, err := wire.DecodeRequest(raw)
	if err != nil {
		if name, id, ok := wire.RecoverID(raw); ok {
			c.enqueueResponse(wire.Failed(name, id, []string{"malformed request frame"}))
		} else {
			c.logger.Warn("dropping undecodable frame", zap.Error(err))
		}
		return
	}

	go func() {
		resp, flush := c.registry.dispatcher.Dispatch(ctx, c, req)
		c.enqueueResponse(resp)
		flush()
	}()
}

func (c *Client) enqueueResponse(resp *wire.Response) {
	data, err := wire.MarshalFrame(resp)
	if err != nil {
		c.logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	c.Enqueue(data)
}

// WritePump drains the send buffer to the websocket and keeps the
// connection alive with periodic pings. Closing the send channel ends it.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("failed to close websocket connection", zap.Error(err))
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) markClosed() (alreadyClosed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	c.closed = true
	return false
}
