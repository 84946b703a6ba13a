package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/sceneruntime"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

// sendWelcome synthesises the current high-level screen state for a newly
// connected client: OpenProject if a project is open, else OpenScene, else
// ShowMainScreen; and, when a package is running, a replay of the latest
// PackageState/PackageInfo/ActionStateBefore snapshots in that order.
func (r *Registry) sendWelcome(ctx context.Context, c *Client) {
	if r.hc == nil {
		return
	}

	scene := r.hc.Cached.Scene()
	project := r.hc.Cached.Project()

	switch {
	case project != nil:
		r.hc.Bus.Send(ctx, c.id, notify.Event{
			Name: "OpenProject",
			Data: notify.OpenProject{Scene: scene, Project: project},
		})
	case scene != nil:
		r.hc.Bus.Send(ctx, c.id, notify.Event{
			Name: "OpenScene",
			Data: notify.OpenScene{Scene: scene},
		})
	default:
		r.hc.Bus.Send(ctx, c.id, notify.Event{
			Name: "ShowMainScreen",
			Data: notify.ShowMainScreen{What: notify.ScreenScenesList},
		})
	}

	if scene != nil {
		state, msg := r.hc.Runtime.State()
		r.hc.Bus.Send(ctx, c.id, notify.Event{
			Name: "SceneState",
			Data: notify.SceneState{State: runStateWire(state), Message: msg},
		})
	}

	if r.hc.Bridge == nil {
		return
	}
	for _, evt := range []*wire.Event{
		r.hc.Bridge.CachedPackageState(),
		r.hc.Bridge.CachedPackageInfo(),
		r.hc.Bridge.CachedActionStateBefore(),
	} {
		if evt == nil {
			continue
		}
		data, err := wire.MarshalFrame(evt)
		if err != nil {
			r.logger.Error("failed to marshal cached event", zap.Error(err))
			continue
		}
		c.Enqueue(data)
	}
}

func runStateWire(s sceneruntime.State) notify.SceneRunState {
	switch s {
	case sceneruntime.Starting:
		return notify.SceneStarting
	case sceneruntime.Started:
		return notify.SceneStarted
	case sceneruntime.Stopping:
		return notify.SceneStopping
	default:
		return notify.SceneStopped
	}
}
