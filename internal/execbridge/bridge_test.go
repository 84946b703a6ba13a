package execbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

var testUpgrader = websocket.Upgrader{}

type fakeRuntime struct {
	srv *httptest.Server

	// events is drained by the connection handler and pushed to the
	// bridge as unsolicited event frames.
	events chan *wire.Event
}

// newFakeRuntime runs a websocket server that answers every request with a
// successful response echoing the request name.
func newFakeRuntime(t *testing.T) *fakeRuntime {
	t.Helper()
	f := &fakeRuntime{events: make(chan *wire.Event, 8)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var req wire.Request
				if err := json.Unmarshal(raw, &req); err != nil {
					continue
				}
				resp, _ := wire.OK(req.Request, req.ID, map[string]string{"echo": req.Request})
				data, _ := wire.MarshalFrame(resp)
				_ = conn.WriteMessage(websocket.TextMessage, data)
			}
		}()

		for {
			select {
			case <-done:
				return
			case evt := <-f.events:
				data, _ := wire.MarshalFrame(evt)
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRuntime) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

type captureRegistry struct {
	frames chan []byte
}

func (c *captureRegistry) asClientRegistry() notify.ClientRegistry {
	return notify.ClientRegistry{
		Enqueue: func(_ string, data []byte) {
			select {
			case c.frames <- data:
			default:
			}
		},
		All: func() []string { return []string{"ui"} },
	}
}

func newTestBridge(t *testing.T) (*Bridge, *fakeRuntime, *captureRegistry) {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)

	runtime := newFakeRuntime(t)
	reg := &captureRegistry{frames: make(chan []byte, 8)}
	bus := notify.NewMemoryBus(reg.asClientRegistry(), log)

	b := New(runtime.wsURL(), bus, nil, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return b, runtime, reg
}

func TestCallCorrelatesResponse(t *testing.T) {
	b, _, _ := newTestBridge(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := b.Call(ctx, "ListPackages", nil)
	require.NoError(t, err)
	require.True(t, resp.Result)
	require.Equal(t, "ListPackages", resp.Response)
}

func TestConcurrentCallsDemultiplex(t *testing.T) {
	b, _, _ := newTestBridge(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make(chan string, 2)
	for _, method := range []string{"ListPackages", "StopPackage"} {
		method := method
		go func() {
			resp, err := b.Call(ctx, method, nil)
			if err != nil {
				results <- err.Error()
				return
			}
			results <- resp.Response
		}()
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		got[<-results] = true
	}
	require.True(t, got["ListPackages"])
	require.True(t, got["StopPackage"])
}

func TestEventsAreCachedAndRebroadcast(t *testing.T) {
	b, runtime, reg := newTestBridge(t)

	// Wait for the bridge to connect before emitting.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := b.Call(ctx, "ListPackages", nil)
	require.NoError(t, err)

	evt, err := wire.NewEvent("PackageState", map[string]string{"packageId": "pkg1", "state": "RUNNING"})
	require.NoError(t, err)
	runtime.events <- evt

	select {
	case frame := <-reg.frames:
		var received wire.Event
		require.NoError(t, json.Unmarshal(frame, &received))
		require.Equal(t, "PackageState", received.Event)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rebroadcast event")
	}

	require.Eventually(t, func() bool {
		return b.CachedPackageState() != nil
	}, time.Second, 10*time.Millisecond)
}
