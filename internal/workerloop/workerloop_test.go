package workerloop

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/three-db/threedb/internal/evaluator"
	_ "github.com/three-db/threedb/internal/inference"
	_ "github.com/three-db/threedb/internal/renderer"
	"github.com/three-db/threedb/internal/tensor"
	"github.com/three-db/threedb/internal/wire"
)

// fakeTransport scripts a worker's conversation with the scheduler: each
// call to Request pops the next reply off a queue, recording every request
// it was given for the test to inspect afterward.
type fakeTransport struct {
	replies  []*wire.Envelope
	requests []*wire.Envelope
}

func (f *fakeTransport) Request(env *wire.Envelope, data map[string]tensor.Tensor) (*wire.Envelope, error) {
	f.requests = append(f.requests, env)
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeTransport) Close() error { return nil }

func setupRootFolder(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "models"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "environments"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "models", "chair.model"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "environments", "room.env"), nil, 0o644))

	classmap := map[string]int{"chair": 0}
	raw, err := json.Marshal(classmap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "classmap.json"), raw, 0o644))
	return root
}

func TestWorkerFullLifecycle(t *testing.T) {
	root := setupRootFolder(t)

	ft := &fakeTransport{replies: []*wire.Envelope{
		{ // info
			Kind: wire.KindInfo,
			RenderArgs: map[string]interface{}{
				"engine": "fake",
			},
			EvaluationArgs: map[string]interface{}{
				"module": "classification",
				"args": map[string]interface{}{
					"topk":          1,
					"classmap_path": "classmap.json",
				},
			},
			InferenceArgs: map[string]interface{}{
				"module":       "fake",
				"args":         map[string]interface{}{"classes": 10},
				"output_shape": []interface{}{10.0},
			},
			ControlsArgs: map[string]map[string]interface{}{},
		},
		{Kind: wire.KindAck}, // decl
		{ // pull: one job
			Kind: wire.KindWork,
			ParamsToRender: []wire.Job{
				{ID: "job-1", Environment: "room", Model: "chair", RenderArgs: map[string]interface{}{}},
			},
		},
		{Kind: wire.KindAck},  // push reply for job-1
		{Kind: wire.KindWork}, // pull: nothing more scheduled yet
		{Kind: wire.KindDie},  // pull: shutdown
	}}

	w := newWithTransport(ft, Options{RootFolder: root, BatchSize: 1})
	// Ask for one job per pull, matching the single job scripted above.
	w.opts.BatchSize = 1

	require.NoError(t, w.fetchInfo())
	require.NoError(t, w.declareOutputs())

	done, err := w.pullAndProcessBatch()
	require.NoError(t, err)
	assert.False(t, done)

	// The empty-work reply would normally sleep a second; skip straight to
	// the terminal die reply instead for a fast test.
	ft.replies = []*wire.Envelope{{Kind: wire.KindDie}}
	done, err = w.pullAndProcessBatch()
	require.NoError(t, err)
	assert.True(t, done)

	pushReq := ft.requests[3]
	assert.Equal(t, wire.KindPush, pushReq.Kind)
	assert.Equal(t, "job-1", pushReq.JobID)
}
