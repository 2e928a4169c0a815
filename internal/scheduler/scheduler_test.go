package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/three-db/threedb/internal/buffer"
	"github.com/three-db/threedb/internal/control"
	"github.com/three-db/threedb/internal/controller"
	"github.com/three-db/threedb/internal/logging"
	"github.com/three-db/threedb/internal/policy"
	"github.com/three-db/threedb/internal/search"
	"github.com/three-db/threedb/internal/tensor"
	"github.com/three-db/threedb/internal/wire"
)

// fakeTransport lets a test drive the scheduler's event loop with scripted
// requests instead of a real ZeroMQ REP socket.
type fakeTransport struct {
	requests []*wire.Envelope
	replies  []*wire.Envelope
}

func (f *fakeTransport) Recv() (*wire.Envelope, error) {
	req := f.requests[0]
	f.requests = f.requests[1:]
	return req, nil
}

func (f *fakeTransport) Reply(env *wire.Envelope) error {
	f.replies = append(f.replies, env)
	return nil
}

type stubDims struct{ name string }

func (s stubDims) Name() string                          { return s.name }
func (s stubDims) Kind() control.Kind                     { return control.KindPre }
func (s stubDims) ContinuousDims() map[string][2]float64  { return map[string][2]float64{"x": {0, 1}} }
func (s stubDims) DiscreteDims() map[string][]interface{} { return nil }

func newTestController(t *testing.T, buf *buffer.Buffer) *controller.Controller {
	t.Helper()
	space := search.New([]control.Dims{stubDims{name: "Stub"}})
	pol, err := policy.Build("RandomSearchPolicy", 1, nil, map[string]interface{}{"samples": 1, "seed": 1})
	require.NoError(t, err)
	regID, err := buf.Register()
	require.NoError(t, err)
	return controller.New("env", "model", space, pol, logging.NewManager(), buf, regID)
}

func TestSchedulerInfoThenDeclFlow(t *testing.T) {
	buf := buffer.New(2)
	ft := &fakeTransport{requests: []*wire.Envelope{
		{Kind: wire.KindInfo, WorkerID: "w1"},
		{Kind: wire.KindDecl, WorkerID: "w1", DeclaredOutputs: map[string]tensor.Schema{
			"rgb": {Shape: tensor.Shape{1}, DType: tensor.Float32},
		}},
	}}
	s := newWithTransport(ft, 1, []string{"env"}, []string{"model"}, Info{}, nil, buf, logging.NewManager())

	require.NoError(t, s.handleOne())
	require.NoError(t, s.handleOne())

	require.Len(t, ft.replies, 2)
	assert.Equal(t, wire.KindInfo, ft.replies[0].Kind)
	assert.Equal(t, wire.KindAck, ft.replies[1].Kind)
	assert.True(t, buf.Initialized())
	assert.True(t, s.declared)
}

func TestSchedulerPushDuplicateForceFreesSlot(t *testing.T) {
	buf := buffer.New(2)
	require.NoError(t, buf.Declare(map[string]tensor.Schema{
		"rgb": {Shape: tensor.Shape{1}, DType: tensor.Float32},
	}))

	ft := &fakeTransport{}
	s := newWithTransport(ft, 1, nil, nil, Info{}, nil, buf, logging.NewManager())
	s.declared = true

	pushEnv := &wire.Envelope{
		Kind:  wire.KindPush,
		JobID: "unknown-job",
		Data:  tensor.Dict{"rgb": tensor.New(tensor.Schema{Shape: tensor.Shape{1}, DType: tensor.Float32})},
	}
	require.NoError(t, s.handlePush(pushEnv))

	assert.Equal(t, 0, buf.Occupied()) // force-freed: job wasn't in the work queue
	assert.Equal(t, 1, s.totalRenders)
	assert.Equal(t, 0, s.validRenders)
	require.Len(t, ft.replies, 1)
	assert.Equal(t, wire.KindAck, ft.replies[0].Kind)
}

func TestSchedulerPushValidRoutesToController(t *testing.T) {
	buf := buffer.New(2)
	require.NoError(t, buf.Declare(map[string]tensor.Schema{
		"rgb": {Shape: tensor.Shape{1}, DType: tensor.Float32},
	}))
	ctrl := newTestController(t, buf)

	ft := &fakeTransport{}
	s := newWithTransport(ft, 1, nil, nil, Info{}, nil, buf, logging.NewManager())
	s.declared = true
	s.workQueue["job-1"] = &workEntry{ctrl: ctrl, job: &wire.Job{ID: "job-1"}}

	pushEnv := &wire.Envelope{
		Kind:  wire.KindPush,
		JobID: "job-1",
		Data:  tensor.Dict{"rgb": tensor.New(tensor.Schema{Shape: tensor.Shape{1}, DType: tensor.Float32})},
	}
	require.NoError(t, s.handlePush(pushEnv))

	assert.Equal(t, 1, s.validRenders)
	_, stillPending := s.workQueue["job-1"]
	assert.False(t, stillPending)
}

func TestSchedulerBadDeclDropsWorkerNotScheduler(t *testing.T) {
	buf := buffer.New(2)
	require.NoError(t, buf.Declare(map[string]tensor.Schema{
		"rgb": {Shape: tensor.Shape{1}, DType: tensor.Float32},
	}))

	ft := &fakeTransport{requests: []*wire.Envelope{
		{Kind: wire.KindDecl, WorkerID: "bad-worker", DeclaredOutputs: map[string]tensor.Schema{
			"rgb": {Shape: tensor.Shape{99}, DType: tensor.Float32},
		}},
		{Kind: wire.KindPull, WorkerID: "good-worker", BatchSize: 1},
	}}
	s := newWithTransport(ft, 1, nil, nil, Info{}, nil, buf, logging.NewManager())
	s.declared = true

	require.NoError(t, s.handleOne())
	require.NoError(t, s.handleOne())

	require.Len(t, ft.replies, 2)
	assert.Equal(t, wire.KindError, ft.replies[0].Kind)
	assert.NotEmpty(t, ft.replies[0].Error)
	assert.Equal(t, wire.KindWork, ft.replies[1].Kind)
	_, stillLinked := s.linkedWorkers["bad-worker"]
	assert.False(t, stillLinked)
}

func TestAffinityPenalty(t *testing.T) {
	job := &wire.Job{Environment: "envA", Model: "modelA"}
	assert.Equal(t, 0, affinityPenalty(job, "envA", "modelA"))
	assert.Equal(t, 1, affinityPenalty(job, "envB", "modelA"))
	assert.Equal(t, 2, affinityPenalty(job, "envB", "modelB"))
}
