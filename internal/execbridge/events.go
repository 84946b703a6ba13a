package execbridge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

func unmarshalInto(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// handleEvent caches PackageState/PackageInfo/ActionStateBefore/
// ActionStateAfter, re-broadcasts every execution-originated event to UI
// clients, and emits ShowMainScreen on a non-temporary STOPPED transition.
func (b *Bridge) handleEvent(evt *wire.Event) {
	b.cacheMu.Lock()
	switch evt.Event {
	case "PackageState":
		b.cache.packageState = evt
	case "PackageInfo":
		b.cache.packageInfo = evt
	case "ActionStateBefore":
		b.cache.actionStateBefore = evt
	case "ActionStateAfter":
		b.cache.actionStateAfter = evt
	}
	b.cacheMu.Unlock()

	b.bus.Broadcast(context.Background(), notify.Event{Name: evt.Event, Data: evt.Data})

	if evt.Event == "PackageState" {
		b.maybeShowMainScreen(evt)
	}

	if b.onEvent != nil {
		b.onEvent(evt)
	}
}

// TemporaryPackagePrefix marks packages built for the temporary-run
// workflow; their STOPPED transition must not bounce UIs to the packages
// list since the originating project view is restored instead.
const TemporaryPackagePrefix = "tmp_"

type packageStatePayload struct {
	PackageID   string `json:"packageId"`
	State       string `json:"state"`
	IsTemporary bool   `json:"isTemporary"`
}

func (b *Bridge) maybeShowMainScreen(evt *wire.Event) {
	var payload packageStatePayload
	if err := unmarshalInto(evt.Data, &payload); err != nil {
		return
	}
	if payload.State != "STOPPED" || payload.IsTemporary || strings.HasPrefix(payload.PackageID, TemporaryPackagePrefix) {
		return
	}
	b.bus.Broadcast(context.Background(), notify.Event{
		Name: "ShowMainScreen",
		Data: notify.ShowMainScreen{
			What:      notify.ScreenPackagesList,
			Highlight: payload.PackageID,
		},
	})
}

// CachedPackageState returns the last observed PackageState event, if any,
// for a newly connected client's welcome burst.
func (b *Bridge) CachedPackageState() *wire.Event {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	return b.cache.packageState
}

// CachedPackageInfo returns the last observed PackageInfo event, if any.
func (b *Bridge) CachedPackageInfo() *wire.Event {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	return b.cache.packageInfo
}

// CachedActionStateBefore returns the last observed ActionStateBefore event, if any.
func (b *Bridge) CachedActionStateBefore() *wire.Event {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	return b.cache.actionStateBefore
}

// CachedActionStateAfter returns the last observed ActionStateAfter event, if any.
func (b *Bridge) CachedActionStateAfter() *wire.Event {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	return b.cache.actionStateAfter
}
