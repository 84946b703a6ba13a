package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type fakeRegistry struct {
	sent map[string][][]byte
	ids  []string
}

func newFakeRegistry(ids ...string) *fakeRegistry {
	return &fakeRegistry{sent: make(map[string][][]byte), ids: ids}
}

func (f *fakeRegistry) asClientRegistry() ClientRegistry {
	return ClientRegistry{
		Enqueue: func(clientID string, data []byte) {
			f.sent[clientID] = append(f.sent[clientID], data)
		},
		All: func() []string { return f.ids },
	}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestMemoryBusBroadcast(t *testing.T) {
	reg := newFakeRegistry("a", "b")
	bus := NewMemoryBus(reg.asClientRegistry(), testLogger(t))

	bus.Broadcast(context.Background(), NewObjectsLocked([]string{"o1"}, "A"))

	for _, id := range []string{"a", "b"} {
		if len(reg.sent[id]) != 1 {
			t.Fatalf("client %s received %d frames, want 1", id, len(reg.sent[id]))
		}
		var evt wire.Event
		if err := json.Unmarshal(reg.sent[id][0], &evt); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if evt.Event != "ObjectsLocked" {
			t.Errorf("Event = %q, want ObjectsLocked", evt.Event)
		}
	}
}

func TestMemoryBusBroadcastExcluding(t *testing.T) {
	reg := newFakeRegistry("a", "b")
	bus := NewMemoryBus(reg.asClientRegistry(), testLogger(t))

	bus.BroadcastExcluding(context.Background(), "a", NewObjectsUnlocked([]string{"o1"}, "A"))

	if len(reg.sent["a"]) != 0 {
		t.Errorf("excluded client received %d frames, want 0", len(reg.sent["a"]))
	}
	if len(reg.sent["b"]) != 1 {
		t.Errorf("client b received %d frames, want 1", len(reg.sent["b"]))
	}
}

func TestMemoryBusSend(t *testing.T) {
	reg := newFakeRegistry("a", "b")
	bus := NewMemoryBus(reg.asClientRegistry(), testLogger(t))

	bus.Send(context.Background(), "b", NewObjectsLocked([]string{"o1"}, "A"))

	if len(reg.sent["a"]) != 0 {
		t.Errorf("client a received %d frames, want 0", len(reg.sent["a"]))
	}
	if len(reg.sent["b"]) != 1 {
		t.Errorf("client b received %d frames, want 1", len(reg.sent["b"]))
	}
}
