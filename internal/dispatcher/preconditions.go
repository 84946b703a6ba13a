package dispatcher

import (
	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/sceneruntime"
)

// SceneNeeded requires a scene to currently be open.
func SceneNeeded(hc *hubctx.Context, _ Session) error {
	if hc.Cached.Scene() == nil {
		return apperr.Precondition("no scene is open")
	}
	return nil
}

// ProjectNeeded requires a project to currently be open.
func ProjectNeeded(hc *hubctx.Context, _ Session) error {
	if hc.Cached.Project() == nil {
		return apperr.Precondition("no project is open")
	}
	return nil
}

// SceneStarted requires the scene runtime to be in the Started state.
func SceneStarted(hc *hubctx.Context, _ Session) error {
	if state, _ := hc.Runtime.State(); state != sceneruntime.Started {
		return apperr.Preconditionf("scene is not started (state: %s)", state)
	}
	return nil
}

// SceneStopped requires the scene runtime to be in the Stopped state.
func SceneStopped(hc *hubctx.Context, _ Session) error {
	if state, _ := hc.Runtime.State(); state != sceneruntime.Stopped {
		return apperr.Preconditionf("scene is not stopped (state: %s)", state)
	}
	return nil
}

// EditingOffline refuses editing RPCs while the scene runtime is not
// stopped. UIs key on this exact message, so it stays distinct from the
// generic SceneStopped precondition.
func EditingOffline(hc *hubctx.Context, _ Session) error {
	if state, _ := hc.Runtime.State(); state != sceneruntime.Stopped {
		return apperr.Precondition("Modifications can be only done offline.")
	}
	return nil
}

// WriteLocked returns a Precondition requiring id to be write-locked by the
// calling session's user. It is for handlers that require a pre-existing
// lock; scope.go's WithLocks is the alternative for a handler that acquires
// the lock itself for the duration of the call.
func WriteLocked(id string) Precondition {
	return func(hc *hubctx.Context, session Session) error {
		if !hc.Locks.IsWriteLocked(id, session.UserName()) {
			return apperr.NotWriteLocked(id)
		}
		return nil
	}
}
