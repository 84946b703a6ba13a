package dispatcher

import (
	"context"
	"fmt"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

var errCameraFrameUnavailable = fmt.Errorf("camera color image streaming is not implemented by this scene runtime")

type cameraIDArgs struct {
	CameraID string `json:"cameraId"`
}

type cameraColorParametersArgs struct {
	CameraID string `json:"cameraId"`
}

type calibrateCameraArgs struct {
	CameraID string `json:"cameraId"`
}

type cameraColorParameters struct {
	FX, FY, CX, CY float64
	Distortion     []float64
}

// RegisterCameraHandlers wires the Camera RPC category.
func RegisterCameraHandlers(d *Dispatcher) {
	d.Register("CameraColorImage", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args cameraIDArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if _, err := hc.Runtime.Instance(args.CameraID); err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			return nil, apperr.Internal(errCameraFrameUnavailable)
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("CameraColorParameters", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args cameraColorParametersArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			return cameraColorParameters{}, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("CalibrateCamera", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args calibrateCameraArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if _, err := hc.Runtime.Instance(args.CameraID); err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			calib := &model.CameraCalibration{Pose: model.Pose{Orientation: model.IdentityOrientation()}}
			hc.Cached.SetCameraCalibration(args.CameraID, calib)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneObjectChanged", Data: notify.SceneObjectChanged{ChangeType: notify.ChangeUpdate, Data: &model.SceneObject{ID: args.CameraID}}})
			return calib, nil
		},
		Preconditions: []Precondition{SceneNeeded, SceneStarted},
	})

	d.Register("GetCameraPose", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args cameraIDArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			calib, ok := hc.Cached.CameraCalibration(args.CameraID)
			if !ok {
				return nil, apperr.Precondition("camera has not been calibrated")
			}
			return calib.Pose, nil
		},
		Preconditions: []Precondition{SceneNeeded},
	})

	d.Register("MarkersCorners", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args cameraIDArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			calib, ok := hc.Cached.CameraCalibration(args.CameraID)
			if !ok {
				return nil, apperr.Precondition("camera has not been calibrated")
			}
			return calib.MarkersCorners, nil
		},
		Preconditions: []Precondition{SceneNeeded},
	})
}
