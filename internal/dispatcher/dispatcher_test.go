package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/lock"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
	"github.com/robofit/arcor2-sub002/internal/sceneruntime"
	"github.com/robofit/arcor2-sub002/internal/state"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type fakeSession struct {
	user string
}

func (f *fakeSession) UserName() string { return f.user }
func (f *fakeSession) ClientID() string { return "test-client" }
func (f *fakeSession) RegisterUser(_ context.Context, name string) error {
	f.user = name
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *hubctx.Context) {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)

	bus := notify.NewMemoryBus(notify.ClientRegistry{
		Enqueue: func(string, []byte) {},
		All:     func() []string { return nil },
	}, log)
	locks := lock.New(bus, log)
	cached := state.New()
	types := objecttype.NewRegistry(log)
	types.LoadBuiltins()
	runtime := sceneruntime.New(cached, types, locks, nil, bus, log)

	hc := hubctx.New(cached, types, locks, runtime, bus, nil, nil, nil, nil, log)
	d := New(hc, log)
	RegisterSessionHandlers(d)
	RegisterLockHandlers(d)
	return d, hc
}

func request(t *testing.T, name string, id uint64, args interface{}) *wire.Request {
	t.Helper()
	req := &wire.Request{Request: name, ID: id}
	if args != nil {
		raw, err := json.Marshal(args)
		require.NoError(t, err)
		req.Args = raw
	}
	return req
}

func TestDispatchUnknownRPCFails(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp, _ := d.Dispatch(context.Background(), &fakeSession{user: "u"}, request(t, "NoSuchRPC", 1, nil))
	require.False(t, resp.Result)
	require.Equal(t, "NoSuchRPC", resp.Response)
	require.Equal(t, uint64(1), resp.ID)
	require.NotEmpty(t, resp.Messages)
}

func TestDispatchCorrelatesResponseToRequest(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp, _ := d.Dispatch(context.Background(), &fakeSession{user: "u"}, request(t, "Version", 42, nil))
	require.True(t, resp.Result)
	require.Equal(t, "Version", resp.Response)
	require.Equal(t, uint64(42), resp.ID)
}

func TestRegisterUserRejectsEmptyName(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp, _ := d.Dispatch(context.Background(), &fakeSession{}, request(t, "RegisterUser", 1,
		map[string]string{"userName": ""}))
	require.False(t, resp.Result)
}

func TestRegisterUserBindsSession(t *testing.T) {
	d, _ := newTestDispatcher(t)
	s := &fakeSession{}

	resp, _ := d.Dispatch(context.Background(), s, request(t, "RegisterUser", 1,
		map[string]string{"userName": "u"}))
	require.True(t, resp.Result)
	require.Equal(t, "u", s.user)
}

func TestWriteLockRPCConflicts(t *testing.T) {
	d, _ := newTestDispatcher(t)

	respA, _ := d.Dispatch(context.Background(), &fakeSession{user: "A"}, request(t, "WriteLock", 1,
		map[string]interface{}{"objectId": "o1"}))
	require.True(t, respA.Result)

	respB, _ := d.Dispatch(context.Background(), &fakeSession{user: "B"}, request(t, "WriteLock", 1,
		map[string]interface{}{"objectId": "o1"}))
	require.False(t, respB.Result)
	require.NotEmpty(t, respB.Messages)
}

type stubSimulator struct{}

func (stubSimulator) Start(context.Context, string) error           { return nil }
func (stubSimulator) Stop(context.Context, string) error            { return nil }
func (stubSimulator) ClearCollisions(context.Context, string) error { return nil }

func TestEditingRefusedWhileSceneStarted(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)

	bus := notify.NewMemoryBus(notify.ClientRegistry{
		Enqueue: func(string, []byte) {},
		All:     func() []string { return nil },
	}, log)
	locks := lock.New(bus, log)
	cached := state.New()
	types := objecttype.NewRegistry(log)
	types.LoadBuiltins()
	runtime := sceneruntime.New(cached, types, locks, stubSimulator{}, bus, log)

	hc := hubctx.New(cached, types, locks, runtime, bus, nil, nil, nil, nil, log)
	d := New(hc, log)
	RegisterSceneHandlers(d)
	RegisterSceneRobotPoseHandler(d)

	cached.OpenScene(&model.Scene{ID: "s1", Name: "s", Objects: []*model.SceneObject{}})
	require.NoError(t, runtime.Start(context.Background()))
	defer runtime.Stop(context.Background())

	resp, _ := d.Dispatch(context.Background(), &fakeSession{user: "u"}, request(t, "AddObjectToScene", 1,
		map[string]interface{}{"name": "box", "type": "Box"}))
	require.False(t, resp.Result)
	require.Equal(t, []string{"Modifications can be only done offline."}, resp.Messages)
}

func TestHandlerEventsAreDeferredUntilFlush(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)

	delivered := 0
	bus := notify.NewMemoryBus(notify.ClientRegistry{
		Enqueue: func(string, []byte) { delivered++ },
		All:     func() []string { return []string{"c1"} },
	}, log)
	locks := lock.New(bus, log)
	cached := state.New()
	types := objecttype.NewRegistry(log)
	runtime := sceneruntime.New(cached, types, locks, nil, bus, log)
	hc := hubctx.New(cached, types, locks, runtime, bus, nil, nil, nil, nil, log)
	d := New(hc, log)

	d.Register("emits", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneSaved", Data: notify.SceneSaved{ID: "s1"}})
			return nil, nil
		},
	})

	resp, flush := d.Dispatch(context.Background(), &fakeSession{user: "u"}, request(t, "emits", 1, nil))
	require.True(t, resp.Result)
	require.Zero(t, delivered)

	flush()
	require.Equal(t, 1, delivered)
}

func TestSceneNeededPreconditionRefusesWithoutScene(t *testing.T) {
	d, hc := newTestDispatcher(t)

	d.Register("needsScene", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			return "ran", nil
		},
		Preconditions: []Precondition{SceneNeeded},
	})

	resp, _ := d.Dispatch(context.Background(), &fakeSession{user: "u"}, request(t, "needsScene", 1, nil))
	require.False(t, resp.Result)

	hc.Cached.OpenScene(&model.Scene{ID: "s1", Name: "s"})
	resp, _ = d.Dispatch(context.Background(), &fakeSession{user: "u"}, request(t, "needsScene", 2, nil))
	require.True(t, resp.Result)
}
