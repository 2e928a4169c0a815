package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/three-db/threedb/internal/buffer"
	"github.com/three-db/threedb/internal/evaluator"
	"github.com/three-db/threedb/internal/tensor"
)

type stubEvaluator struct{}

func (stubEvaluator) Keys() []string     { return []string{"is_correct"} }
func (stubEvaluator) OutputType() string { return "classes" }
func (stubEvaluator) DeclareOutputs() map[string]tensor.Schema {
	return map[string]tensor.Schema{"is_correct": {DType: tensor.Bool}}
}
func (stubEvaluator) Target(modelUID string) (interface{}, error) { return 0, nil }
func (stubEvaluator) Summarize(pred tensor.Tensor, target interface{}) (evaluator.Stats, error) {
	return evaluator.Stats{"is_correct": true}, nil
}

func TestJSONLoggerWritesAndFreesSlot(t *testing.T) {
	dir := t.TempDir()
	buf := buffer.New(1)
	require.NoError(t, buf.Declare(map[string]tensor.Schema{
		"rgb": {Shape: tensor.Shape{3, 1, 1}, DType: tensor.Float32},
	}))

	logger, err := NewJSONLogger(dir, buf, stubEvaluator{}, "")
	require.NoError(t, err)

	slot, err := buf.Allocate(tensor.Dict{"rgb": tensor.New(tensor.Schema{Shape: tensor.Shape{3, 1, 1}, DType: tensor.Float32})})
	require.NoError(t, err)

	mgr := NewManager()
	mgr.Register(logger)
	mgr.Start()
	mgr.Log(Event{
		JobID:       "job-1",
		Environment: "env",
		Model:       "model",
		ResultSlot:  int(slot),
	})
	mgr.Close()
	mgr.Join()

	require.Eventually(t, func() bool { return buf.Occupied() == 0 }, time.Second, time.Millisecond)

	raw, err := os.ReadFile(filepath.Join(dir, "details.log"))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 1)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &record))
	assert.Equal(t, "job-1", record["id"])
	assert.Equal(t, "classes", record["output_type"])
}

func TestJSONLoggerCopiesClassMap(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src_map.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"a": 1}`), 0o644))

	buf := buffer.New(1)
	require.NoError(t, buf.Declare(map[string]tensor.Schema{"rgb": {DType: tensor.Float32}}))

	_, err := NewJSONLogger(dir, buf, stubEvaluator{}, src)
	require.NoError(t, err)

	copied, err := os.ReadFile(filepath.Join(dir, "class_maps.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(copied))
}
