package dispatcher

import (
	"context"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
)

// WithLocks acquires a write lock on ids for the duration of fn and always
// releases it afterward, whether fn succeeds or fails. Use this for handlers
// that only need the lock held while they run, not across calls.
func WithLocks(ctx context.Context, hc *hubctx.Context, ids []string, owner string, subtree bool, fn func() (interface{}, error)) (interface{}, error) {
	if err := hc.Locks.WriteLock(ctx, hc.Cached, ids, owner, subtree); err != nil {
		return nil, apperr.CannotLock(ids)
	}
	defer hc.Locks.WriteUnlock(ctx, ids, owner)
	return fn()
}

// WithLocksAutoUnlockOnError acquires a write lock on ids for the duration
// of fn, but only releases it automatically when fn fails. On success the
// lock is left held for the caller's session to release explicitly (e.g. a
// New*/Add* RPC that leaves the newly created entity locked for immediate
// follow-up edits).
func WithLocksAutoUnlockOnError(ctx context.Context, hc *hubctx.Context, ids []string, owner string, subtree bool, fn func() (interface{}, error)) (interface{}, error) {
	if err := hc.Locks.WriteLock(ctx, hc.Cached, ids, owner, subtree); err != nil {
		return nil, apperr.CannotLock(ids)
	}
	result, err := fn()
	if err != nil {
		hc.Locks.WriteUnlock(ctx, ids, owner)
		return nil, err
	}
	return result, nil
}
