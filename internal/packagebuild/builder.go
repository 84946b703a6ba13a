// Package packagebuild implements package building and the temporary-run
// workflow: turning a saved project into an executable archive via
// the build service, and the seven-step "run the currently open project
// without leaving it" workflow.
package packagebuild

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/buildclient"
	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/execbridge"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/state"
)

const (
	pollInterval     = 100 * time.Millisecond
	startWaitTimeout = 30 * time.Second
	temporaryPrefix  = execbridge.TemporaryPackagePrefix
)

// Builder implements BuildService for internal/dispatcher.
type Builder struct {
	build   *buildclient.Client
	bridge  *execbridge.Bridge
	cached  *state.Cached
	bus     notify.Bus
	logger  *logger.Logger
}

// New creates a Builder.
func New(build *buildclient.Client, bridge *execbridge.Bridge, cached *state.Cached, bus notify.Bus, log *logger.Logger) *Builder {
	return &Builder{
		build:  build,
		bridge: bridge,
		cached: cached,
		bus:    bus,
		logger: log.WithFields(zap.String("component", "packagebuild")),
	}
}

// Build produces the executable archive for projectID.
func (b *Builder) Build(ctx context.Context, projectID, packageName string) ([]byte, error) {
	pkg, err := b.build.BuildProjectPackage(ctx, projectID, packageName)
	if err != nil {
		return nil, fmt.Errorf("build project %s: %w", projectID, err)
	}
	return pkg, nil
}

type uploadPackageArgs struct {
	PackageID string `json:"packageId"`
	Data      []byte `json:"data"`
}

type runPackageArgs struct {
	PackageID        string `json:"packageId"`
	CleanupAfterRun  bool   `json:"cleanupAfterRun"`
}

type deletePackageArgs struct {
	PackageID string `json:"packageId"`
}

// RunTemporaryPackage implements the temporary-run workflow: refuse
// if the open project has unsaved changes, build it, upload the package,
// run it without cleanup, wait for it to start and then stop, delete the
// temporary package, and broadcast OpenProject again so clients return to
// the editor view they left.
func (b *Builder) RunTemporaryPackage(ctx context.Context, owner string) error {
	project := b.cached.Project()
	if project == nil {
		return apperr.Precondition("no project is open")
	}
	if project.HasChanges() {
		return apperr.Precondition("project has unsaved changes")
	}
	scene := b.cached.Scene()

	packageID := temporaryPrefix + project.ID
	pkg, err := b.Build(ctx, project.ID, packageID)
	if err != nil {
		return err
	}

	if resp, err := b.bridge.Call(ctx, "UploadPackage", uploadPackageArgs{PackageID: packageID, Data: pkg}); err != nil {
		return apperr.External("execution bridge", err)
	} else if !resp.Result {
		return apperr.Preconditionf("upload package failed: %v", resp.Messages)
	}

	if resp, err := b.bridge.Call(ctx, "RunPackage", runPackageArgs{PackageID: packageID, CleanupAfterRun: false}); err != nil {
		return apperr.External("execution bridge", err)
	} else if !resp.Result {
		return apperr.Preconditionf("run package failed: %v", resp.Messages)
	}

	if err := b.waitForState(ctx, packageID, "RUNNING", startWaitTimeout); err != nil {
		b.logger.Warn("temporary package did not report RUNNING before timeout", zap.String("packageId", packageID), zap.Error(err))
	}
	if err := b.waitForState(ctx, packageID, "STOPPED", 0); err != nil {
		return err
	}

	if resp, err := b.bridge.Call(ctx, "DeletePackage", deletePackageArgs{PackageID: packageID}); err != nil {
		b.logger.Warn("failed to delete temporary package", zap.String("packageId", packageID), zap.Error(err))
	} else if !resp.Result {
		b.logger.Warn("delete temporary package refused", zap.String("packageId", packageID), zap.Strings("messages", resp.Messages))
	}

	b.bus.Broadcast(ctx, notify.Event{Name: "OpenProject", Data: notify.OpenProject{Scene: scene, Project: project}})
	return nil
}

// waitForState polls the bridge's cached PackageState until it matches
// want for packageID, or ctx is cancelled, or timeout elapses (0 = no
// timeout beyond ctx).
func (b *Builder) waitForState(ctx context.Context, packageID, want string, timeout time.Duration) error {
	deadline := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if evt := b.bridge.CachedPackageState(); evt != nil {
			var payload struct {
				PackageID string `json:"packageId"`
				State     string `json:"state"`
			}
			if err := json.Unmarshal(evt.Data, &payload); err == nil && payload.PackageID == packageID && payload.State == want {
				return nil
			}
		}
		select {
		case <-deadline.Done():
			return fmt.Errorf("timed out waiting for package %s to reach state %s", packageID, want)
		case <-ticker.C:
		}
	}
}
