package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/dispatcher"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/lock"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
	"github.com/robofit/arcor2-sub002/internal/sceneruntime"
	"github.com/robofit/arcor2-sub002/internal/state"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)

	reg := NewRegistry(log)
	bus := notify.NewMemoryBus(reg.ClientRegistry(), log)
	locks := lock.New(bus, log)
	cached := state.New()
	types := objecttype.NewRegistry(log)
	types.LoadBuiltins()
	runtime := sceneruntime.New(cached, types, locks, nil, bus, log)

	hc := hubctx.New(cached, types, locks, runtime, bus, nil, nil, nil, nil, log)
	d := dispatcher.New(hc, log)
	dispatcher.RegisterSessionHandlers(d)
	reg.Bind(hc, d)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(reg, log).SetupRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads frames until one matches pred, skipping events the test
// does not care about.
func readFrame(t *testing.T, conn *gorillaws.Conn, pred func(raw map[string]json.RawMessage) bool) map[string]json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &raw))
		if pred(raw) {
			return raw
		}
	}
}

func registerUser(t *testing.T, conn *gorillaws.Conn, id uint64, name string) *wire.Response {
	t.Helper()
	req := map[string]interface{}{
		"request": "RegisterUser",
		"id":      id,
		"args":    map[string]string{"userName": name},
	}
	require.NoError(t, conn.WriteJSON(req))
	raw := readFrame(t, conn, func(m map[string]json.RawMessage) bool {
		_, ok := m["response"]
		return ok
	})
	var resp wire.Response
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &resp))
	return &resp
}

func TestWelcomeBurstShowsMainScreen(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	frame := readFrame(t, conn, func(m map[string]json.RawMessage) bool {
		_, ok := m["event"]
		return ok
	})
	var name string
	require.NoError(t, json.Unmarshal(frame["event"], &name))
	require.Equal(t, "ShowMainScreen", name)
}

func TestRegisterUserBindsName(t *testing.T) {
	srv, reg := newTestServer(t)
	conn := dial(t, srv)

	resp := registerUser(t, conn, 1, "u")
	require.True(t, resp.Result)
	require.Equal(t, "RegisterUser", resp.Response)
	require.Equal(t, uint64(1), resp.ID)

	require.Eventually(t, func() bool {
		return len(reg.All()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDuplicateLoginRejectedWhileHolderIsLive(t *testing.T) {
	srv, _ := newTestServer(t)

	connA := dial(t, srv)
	respA := registerUser(t, connA, 1, "dup")
	require.True(t, respA.Result)

	// Keep A reading so gorilla's default ping handler answers the
	// liveness probe with a pong.
	go func() {
		for {
			if _, _, err := connA.ReadMessage(); err != nil {
				return
			}
		}
	}()

	connB := dial(t, srv)
	respB := registerUser(t, connB, 1, "dup")
	require.False(t, respB.Result)
	require.NotEmpty(t, respB.Messages)
}

func TestDisconnectReleasesLocks(t *testing.T) {
	srv, reg := newTestServer(t)
	conn := dial(t, srv)

	resp := registerUser(t, conn, 1, "locker")
	require.True(t, resp.Result)

	require.NoError(t, reg.hc.Locks.WriteLock(context.Background(), nil, []string{"obj"}, "locker", false))
	require.True(t, reg.hc.Locks.IsWriteLocked("obj", "locker"))

	conn.Close()

	require.Eventually(t, func() bool {
		return !reg.hc.Locks.IsWriteLocked("obj", "locker")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMalformedFrameGetsFailedResponse(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	// A request frame whose args cannot decode still carries a
	// recoverable (request, id) pair.
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage,
		[]byte(`{"request":"RegisterUser","id":7,"args":"not-an-object"}`)))

	frame := readFrame(t, conn, func(m map[string]json.RawMessage) bool {
		_, ok := m["response"]
		return ok
	})
	var resp wire.Response
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &resp))
	require.False(t, resp.Result)
	require.Equal(t, uint64(7), resp.ID)
}
