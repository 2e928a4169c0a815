package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/three-db/threedb/internal/buffer"
	"github.com/three-db/threedb/internal/control"
	"github.com/three-db/threedb/internal/logging"
	"github.com/three-db/threedb/internal/policy"
	"github.com/three-db/threedb/internal/search"
	"github.com/three-db/threedb/internal/tensor"
)

type stubDims struct{ name string }

func (s stubDims) Name() string                               { return s.name }
func (s stubDims) Kind() control.Kind                          { return control.KindPre }
func (s stubDims) ContinuousDims() map[string][2]float64       { return map[string][2]float64{"x": {0, 1}} }
func (s stubDims) DiscreteDims() map[string][]interface{}      { return nil }

func TestControllerRenderBatchRoundTrip(t *testing.T) {
	buf := buffer.New(4)
	require.NoError(t, buf.Declare(map[string]tensor.Schema{
		"rgb": {Shape: tensor.Shape{1}, DType: tensor.Float32},
	}))
	regID, err := buf.Register()
	require.NoError(t, err)

	space := search.New([]control.Dims{stubDims{name: "Stub"}})
	pol, err := policy.Build("RandomSearchPolicy", 1, nil, map[string]interface{}{"samples": 3, "seed": 1})
	require.NoError(t, err)

	ctrl := New("env-a", "model-a", space, pol, logging.NewManager(), buf, regID)

	go ctrl.Run()

	// Drive the fake worker side: pull each job, allocate a result slot,
	// and push it back, exactly like a worker's pull/push cycle would.
	seen := 0
	deadline := time.After(2 * time.Second)
	for seen < 3 {
		job := ctrl.PullWork()
		if job == nil {
			select {
			case <-deadline:
				t.Fatal("timed out waiting for jobs")
			default:
				time.Sleep(time.Millisecond)
				continue
			}
		}
		slot, err := buf.Allocate(tensor.Dict{"rgb": tensor.New(tensor.Schema{Shape: tensor.Shape{1}, DType: tensor.Float32})})
		require.NoError(t, err)
		ctrl.PushResult(job.ID, slot)
		seen++
	}

	require.Eventually(t, func() bool { return !ctrl.Alive() }, 2*time.Second, time.Millisecond)
	assert.NoError(t, ctrl.Err())
}
