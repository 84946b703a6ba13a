// Package lock implements the cooperative advisory locking service:
// per-object read/write locks with optional subtree expansion, owner
// identity, and acquisition retried after a fixed delay.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/notify"
)

// ReservedOwner is used for system-initiated exclusive operations (scene
// start/stop, import) and is never assignable to a user.
const ReservedOwner = "server"

// Reserved pseudo-ids locking the whole open scene/project.
const (
	SceneID   = "@scene"
	ProjectID = "@project"
)

var (
	// LockRetries bounds the number of atomic acquire attempts before a
	// lock request fails with CannotLock.
	LockRetries = 5
	// RetryWait is the fixed delay between acquire attempts.
	RetryWait = 200 * time.Millisecond
)

// Configure overrides the retry policy, wired from configuration at
// startup, before any client can issue a lock request.
func Configure(retries int, wait time.Duration) {
	if retries > 0 {
		LockRetries = retries
	}
	if wait > 0 {
		RetryWait = wait
	}
}

// entry is one id's lock state: either N readers or a single writer.
type entry struct {
	readers   map[string]int // owner -> count (an owner may hold nested read locks)
	writer    string
	writeTree bool
}

func (e *entry) isFree() bool {
	return e == nil || (len(e.readers) == 0 && e.writer == "")
}

func (e *entry) heldBy(owner string) bool {
	if e == nil {
		return false
	}
	if e.writer == owner {
		return true
	}
	_, ok := e.readers[owner]
	return ok
}

func (e *entry) blockedFor(owner string, write bool) bool {
	if e == nil {
		return false
	}
	if e.writer != "" {
		return e.writer != owner
	}
	if write {
		// any reader other than owner blocks a write
		for r := range e.readers {
			if r != owner {
				return true
			}
		}
		return false
	}
	// a read never conflicts with other readers
	return false
}

// SubtreeIndex resolves the parent-chain closure used for subtree locking;
// implemented by internal/state.Cached.
type SubtreeIndex interface {
	// Closure returns ids plus every action point, action, orientation,
	// and joint snapshot transitively owned by an id in ids.
	Closure(ids []string) []string
}

// Manager grants and tracks per-object locks.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	bus     notify.Bus
	logger  *logger.Logger
}

// New creates an empty lock manager.
func New(bus notify.Bus, log *logger.Logger) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		bus:     bus,
		logger:  log,
	}
}

// ReadLock attempts to acquire read locks on ids (subtree-expanded via idx
// when subtree is true), retrying up to LockRetries times.
func (m *Manager) ReadLock(ctx context.Context, idx SubtreeIndex, ids []string, owner string, subtree bool) error {
	return m.acquire(ctx, idx, ids, owner, subtree, false)
}

// WriteLock attempts to acquire write locks on ids.
func (m *Manager) WriteLock(ctx context.Context, idx SubtreeIndex, ids []string, owner string, subtree bool) error {
	return m.acquire(ctx, idx, ids, owner, subtree, true)
}

func (m *Manager) acquire(ctx context.Context, idx SubtreeIndex, ids []string, owner string, subtree, write bool) error {
	if owner == "" {
		return fmt.Errorf("lock owner must not be empty")
	}
	closure := ids
	if subtree {
		closure = idx.Closure(ids)
	}

	var lastErr error
	for attempt := 0; attempt < LockRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(RetryWait):
			}
		}
		if ok, acquired := m.tryAcquire(closure, owner, write, subtree); ok {
			m.logger.Info("lock acquired",
				zap.Strings("ids", closure),
				zap.String("owner", owner),
				zap.Bool("write", write))
			m.bus.Broadcast(ctx, notify.NewObjectsLocked(closure, owner))
			return nil
		} else {
			m.release(acquired, owner, write)
			lastErr = fmt.Errorf("cannot lock %v", closure)
		}
	}
	return lastErr
}

// tryAcquire attempts a single atomic pass over closure, returning the ids
// it actually managed to lock so the caller can roll them back on partial
// failure.
func (m *Manager) tryAcquire(closure []string, owner string, write, subtree bool) (bool, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range closure {
		if m.entries[id].blockedFor(owner, write) {
			return false, nil
		}
	}

	acquired := make([]string, 0, len(closure))
	for _, id := range closure {
		e := m.entries[id]
		if e == nil {
			e = &entry{readers: make(map[string]int)}
			m.entries[id] = e
		}
		if write {
			e.writer = owner
			e.writeTree = subtree
		} else {
			e.readers[owner]++
		}
		acquired = append(acquired, id)
	}
	return true, acquired
}

func (m *Manager) release(ids []string, owner string, write bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		e := m.entries[id]
		if e == nil {
			continue
		}
		if write {
			if e.writer == owner {
				e.writer = ""
				e.writeTree = false
			}
		} else if e.readers[owner] > 0 {
			e.readers[owner]--
			if e.readers[owner] == 0 {
				delete(e.readers, owner)
			}
		}
		if e.isFree() {
			delete(m.entries, id)
		}
	}
}

// ReadUnlock releases read locks held by owner on ids.
func (m *Manager) ReadUnlock(ctx context.Context, ids []string, owner string) {
	m.release(ids, owner, false)
	m.logger.Info("read unlocked", zap.Strings("ids", ids), zap.String("owner", owner))
	m.bus.Broadcast(ctx, notify.NewObjectsUnlocked(ids, owner))
}

// WriteUnlock releases write locks held by owner on ids.
func (m *Manager) WriteUnlock(ctx context.Context, ids []string, owner string) {
	m.release(ids, owner, true)
	m.logger.Info("write unlocked", zap.Strings("ids", ids), zap.String("owner", owner))
	m.bus.Broadcast(ctx, notify.NewObjectsUnlocked(ids, owner))
}

// IsWriteLocked reports whether id is currently write-locked by owner.
// Mutating RPC handlers assert this before touching an entity.
func (m *Manager) IsWriteLocked(id, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	return e != nil && e.writer == owner
}

// AnyUserWriteLocked reports whether any id in the system is write-locked
// by a non-server owner; used by StartScene's precondition.
func (m *Manager) AnyUserWriteLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.writer != "" && e.writer != ReservedOwner {
			return true
		}
	}
	return false
}

// ReleaseAllForOwner drops every lock held by owner, used when a session
// disconnects.
func (m *Manager) ReleaseAllForOwner(ctx context.Context, owner string) {
	m.mu.Lock()
	var released []string
	for id, e := range m.entries {
		if e.writer == owner {
			e.writer = ""
			e.writeTree = false
			released = append(released, id)
		}
		if e.readers[owner] > 0 {
			delete(e.readers, owner)
			released = append(released, id)
		}
		if e.isFree() {
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	if len(released) > 0 {
		m.logger.Info("released all locks for disconnected owner", zap.String("owner", owner), zap.Strings("ids", released))
		m.bus.Broadcast(ctx, notify.NewObjectsUnlocked(released, owner))
	}
}
