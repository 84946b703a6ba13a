package dispatcher

import (
	"context"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type buildProjectArgs struct {
	ProjectID   string `json:"projectId"`
	PackageName string `json:"packageName"`
}

type temporaryPackageArgs struct {
	ProjectID string `json:"projectId"`
}

// passthroughRPCs forwards verbatim to the execution bridge: this server
// does no interpretation of their arguments or results beyond relaying the
// call.
var passthroughRPCs = []string{
	"UploadPackage", "ListPackages", "DeletePackage", "RenamePackage",
	"RunPackage", "StopPackage", "PausePackage", "ResumePackage", "StepAction",
}

// RegisterExecutionHandlers wires the Execution category: BuildProject and
// TemporaryPackage are implemented locally (internal/packagebuild), the
// rest forward verbatim to the execution bridge.
func RegisterExecutionHandlers(d *Dispatcher, build BuildService) {
	d.Register("BuildProject", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args buildProjectArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			pkg, err := build.Build(ctx, args.ProjectID, args.PackageName)
			if err != nil {
				return nil, apperr.External("build service", err)
			}
			return pkg, nil
		},
		Preconditions: []Precondition{ProjectNeeded},
	})

	d.Register("TemporaryPackage", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			if err := build.RunTemporaryPackage(ctx, session.UserName()); err != nil {
				return nil, apperr.External("build service", err)
			}
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, SceneStarted},
	})

	for _, name := range passthroughRPCs {
		name := name
		d.Register(name, HandlerSpec{
			Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
				resp, err := hc.Bridge.Call(ctx, name, req.Args)
				if err != nil {
					return nil, apperr.External("execution bridge", err)
				}
				if !resp.Result {
					return nil, apperr.Preconditionf("%s failed: %v", name, resp.Messages)
				}
				return resp.Data, nil
			},
		})
	}
}

// BuildService is the package-build collaborator RegisterExecutionHandlers depends
// on, satisfied by internal/packagebuild.Builder.
type BuildService interface {
	Build(ctx context.Context, projectID, packageName string) ([]byte, error)
	RunTemporaryPackage(ctx context.Context, owner string) error
}
