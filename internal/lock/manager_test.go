package lock

import (
	"context"
	"testing"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/notify"
)

type flatIndex struct{ closure map[string][]string }

func (f flatIndex) Closure(ids []string) []string {
	var out []string
	for _, id := range ids {
		out = append(out, id)
		out = append(out, f.closure[id]...)
	}
	return out
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	bus := notify.NewMemoryBus(notify.ClientRegistry{
		Enqueue: func(string, []byte) {},
		All:     func() []string { return nil },
	}, log)
	return New(bus, log)
}

func TestWriteLockThenWriteLockConflicts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.WriteLock(ctx, nil, []string{"o1"}, "A", false); err != nil {
		t.Fatalf("A's WriteLock failed: %v", err)
	}
	if err := m.WriteLock(ctx, nil, []string{"o1"}, "B", false); err == nil {
		t.Error("expected B's WriteLock to fail while A holds it")
	}
}

func TestWriteUnlockReleases(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.WriteLock(ctx, nil, []string{"o1"}, "A", false); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}
	m.WriteUnlock(ctx, []string{"o1"}, "A")

	if err := m.WriteLock(ctx, nil, []string{"o1"}, "B", false); err != nil {
		t.Errorf("B's WriteLock should succeed after A released: %v", err)
	}
}

func TestReadLocksDoNotConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.ReadLock(ctx, nil, []string{"o1"}, "A", false); err != nil {
		t.Fatalf("A's ReadLock failed: %v", err)
	}
	if err := m.ReadLock(ctx, nil, []string{"o1"}, "B", false); err != nil {
		t.Errorf("B's ReadLock should not conflict with A's: %v", err)
	}
}

func TestWriteLockBlockedByRead(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.ReadLock(ctx, nil, []string{"o1"}, "A", false); err != nil {
		t.Fatalf("A's ReadLock failed: %v", err)
	}
	if err := m.WriteLock(ctx, nil, []string{"o1"}, "B", false); err == nil {
		t.Error("expected B's WriteLock to fail while A holds a read lock")
	}
}

func TestSubtreeExpansion(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	idx := flatIndex{closure: map[string][]string{"o1": {"a1", "act1"}}}

	if err := m.WriteLock(ctx, idx, []string{"o1"}, "A", true); err != nil {
		t.Fatalf("subtree WriteLock failed: %v", err)
	}
	if !m.IsWriteLocked("a1", "A") {
		t.Error("expected a1 to be write-locked via subtree expansion")
	}
	if !m.IsWriteLocked("act1", "A") {
		t.Error("expected act1 to be write-locked via subtree expansion")
	}

	if err := m.WriteLock(ctx, nil, []string{"a1"}, "B", false); err == nil {
		t.Error("expected B's WriteLock on a1 to fail")
	}
}

func TestReleaseAllForOwner(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.WriteLock(ctx, nil, []string{"o1"}, "A", false)
	m.ReadLock(ctx, nil, []string{"o2"}, "A", false)

	m.ReleaseAllForOwner(ctx, "A")

	if m.IsWriteLocked("o1", "A") {
		t.Error("expected o1 to be released")
	}
	if err := m.WriteLock(ctx, nil, []string{"o2"}, "B", false); err != nil {
		t.Errorf("B should be able to write-lock o2 after A's release: %v", err)
	}
}
