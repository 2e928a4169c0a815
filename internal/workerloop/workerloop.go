// Package workerloop implements the worker-side render/infer/evaluate loop,
// grounded on original_source/threedb/client.py: connect to the scheduler,
// fetch experiment-wide info, declare this worker's output schema, then
// repeatedly pull a batch of jobs, render+infer+evaluate each one, and push
// the result back.
package workerloop

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luxfi/log"

	"github.com/three-db/threedb/internal/control"
	"github.com/three-db/threedb/internal/evaluator"
	"github.com/three-db/threedb/internal/inference"
	"github.com/three-db/threedb/internal/logx"
	"github.com/three-db/threedb/internal/renderer"
	"github.com/three-db/threedb/internal/search"
	"github.com/three-db/threedb/internal/tensor"
	"github.com/three-db/threedb/internal/wire"
)

// Options mirrors client.py's argparse flags.
type Options struct {
	RootFolder    string
	MasterAddress string
	GPUID         int
	CPUCores      int
	TileSize      int
	BatchSize     int
	FakeResults   bool
}

// transport is the subset of *wire.Conn the worker loop needs, factored out
// the same way internal/scheduler factors out its own transport, so tests
// can drive Worker against a scripted fake instead of a real REQ socket.
type transport interface {
	Request(env *wire.Envelope, data map[string]tensor.Tensor) (*wire.Envelope, error)
	Close() error
}

// Worker drives one worker process's connection to the scheduler.
type Worker struct {
	opts Options
	conn transport
	id   string
	log  log.Logger

	engine    renderer.Renderer
	evaluator evaluator.Evaluator
	model     inference.Model

	controlsArgs map[string]map[string]interface{}
	outputShape  []int
	declared     map[string]tensor.Schema

	lastEnv, lastModel     string
	loadedEnv, loadedModel interface{}
	modelUID               string

	cachedResult *tensor.Dict // first real result, replayed when FakeResults is set
}

// Dial connects to a scheduler at addr and returns a Worker ready for Run.
func Dial(opts Options) (*Worker, error) {
	conn, err := wire.Dial(opts.MasterAddress)
	if err != nil {
		return nil, fmt.Errorf("workerloop: %w", err)
	}
	return newWithTransport(conn, opts), nil
}

func newWithTransport(conn transport, opts Options) *Worker {
	return &Worker{
		opts: opts,
		conn: conn,
		id:   uuid.NewString(),
		log:  logx.New(logx.Worker),
	}
}

// Run executes the full worker lifecycle: info, decl, then pull/push until
// the scheduler sends a `die` reply, matching the `while True` loop in
// client.py's `__main__` block.
func (w *Worker) Run() error {
	if err := w.fetchInfo(); err != nil {
		return err
	}
	if err := w.declareOutputs(); err != nil {
		return err
	}
	for {
		done, err := w.pullAndProcessBatch()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// fetchInfo requests the experiment-wide info bundle and builds this
// worker's renderer, evaluator, and inference model from it, matching
// client.py's `infos = query(socket, 'info', WORKER_ID)` block.
func (w *Worker) fetchInfo() error {
	reply, err := w.conn.Request(&wire.Envelope{Kind: wire.KindInfo, WorkerID: w.id}, nil)
	if err != nil {
		return fmt.Errorf("workerloop: info request: %w", err)
	}

	renderArgs := mergeRenderArgs(reply.RenderArgs, w.opts)
	engineName, _ := renderArgs["engine"].(string)
	engine, err := renderer.Build(engineName, w.opts.RootFolder, renderArgs)
	if err != nil {
		return fmt.Errorf("workerloop: building renderer: %w", err)
	}
	w.engine = engine

	evalModule, evalArgs, err := splitModuleArgs(reply.EvaluationArgs)
	if err != nil {
		return fmt.Errorf("workerloop: evaluation_args: %w", err)
	}
	ev, err := evaluator.Build(evalModule, w.opts.RootFolder, evalArgs)
	if err != nil {
		return fmt.Errorf("workerloop: building evaluator: %w", err)
	}
	w.evaluator = ev

	infModule, infArgs, err := splitModuleArgs(reply.InferenceArgs)
	if err != nil {
		return fmt.Errorf("workerloop: inference args: %w", err)
	}
	model, err := inference.Build(infModule, infArgs)
	if err != nil {
		return fmt.Errorf("workerloop: building inference model: %w", err)
	}
	w.model = model
	w.outputShape = toIntSlice(reply.InferenceArgs["output_shape"])
	w.controlsArgs = reply.ControlsArgs
	return nil
}

// declareOutputs merges the renderer's, evaluator's, and inference model's
// output schemas and sends them in a `decl` request, matching client.py's
// `declared_outputs = {**image_shapes, **eval_shapes, 'output': ...}`.
func (w *Worker) declareOutputs() error {
	declared := map[string]tensor.Schema{
		"output": {Shape: w.outputShape, DType: tensor.Float32},
	}
	for k, v := range w.engine.DeclareOutputs() {
		declared[k] = v
	}
	if rgb, ok := declared["rgb"]; ok && len(rgb.Shape) > 0 && rgb.Shape[0] > 3 {
		shape := make(tensor.Shape, len(rgb.Shape))
		copy(shape, rgb.Shape)
		shape[0] = 3
		declared["rgb"] = tensor.Schema{Shape: shape, DType: rgb.DType}
	}
	for k, v := range w.evaluator.DeclareOutputs() {
		declared[k] = v
	}
	w.declared = declared

	reply, err := w.conn.Request(&wire.Envelope{
		Kind:            wire.KindDecl,
		WorkerID:        w.id,
		DeclaredOutputs: declared,
	}, nil)
	if err != nil {
		return fmt.Errorf("workerloop: decl request: %w", err)
	}
	if reply.Kind != wire.KindAck {
		return fmt.Errorf("workerloop: expected ack for decl, got %q", reply.Kind)
	}
	return nil
}

// pullAndProcessBatch requests a batch of jobs and renders/infers/evaluates
// each one, pushing its result back. It returns done=true once the
// scheduler signals shutdown.
func (w *Worker) pullAndProcessBatch() (done bool, err error) {
	reply, err := w.conn.Request(&wire.Envelope{
		Kind:            wire.KindPull,
		WorkerID:        w.id,
		BatchSize:       w.opts.BatchSize,
		LastEnvironment: w.lastEnv,
		LastModel:       w.lastModel,
	}, nil)
	if err != nil {
		return false, fmt.Errorf("workerloop: pull request: %w", err)
	}
	if reply.Kind == wire.KindDie {
		w.log.Info("received shutdown request from scheduler")
		return true, nil
	}
	if len(reply.ParamsToRender) == 0 {
		time.Sleep(time.Second)
		return false, nil
	}

	for i := range reply.ParamsToRender {
		job := reply.ParamsToRender[i]
		data, err := w.processJob(&job)
		if err != nil {
			return false, fmt.Errorf("workerloop: processing job %s: %w", job.ID, err)
		}
		pushReply, err := w.conn.Request(&wire.Envelope{
			Kind:     wire.KindPush,
			WorkerID: w.id,
			JobID:    job.ID,
		}, data)
		if err != nil {
			return false, fmt.Errorf("workerloop: push request: %w", err)
		}
		if pushReply.Kind == wire.KindDie {
			return true, nil
		}
	}
	return false, nil
}

// processJob renders, infers, and evaluates one job, matching the body of
// client.py's `for job in parameters:` loop. When FakeResults is set and a
// prior real result has been cached, that cached result is replayed
// unchanged instead of re-rendering.
func (w *Worker) processJob(job *wire.Job) (map[string]tensor.Tensor, error) {
	if w.opts.FakeResults && w.cachedResult != nil {
		return toTensorMap(*w.cachedResult), nil
	}

	if job.Environment != w.lastEnv || job.Model != w.lastModel {
		if err := w.loadEnvModel(job.Environment, job.Model); err != nil {
			return nil, err
		}
	}

	pipeline, ctx, err := w.buildPipeline(job)
	if err != nil {
		return nil, err
	}
	if err := pipeline.ApplyPre(ctx); err != nil {
		return nil, fmt.Errorf("applying pre-controls: %w", err)
	}

	result, err := w.engine.Render(w.modelUID, w.loadedModel, w.loadedEnv)
	if err != nil {
		return nil, fmt.Errorf("rendering: %w", err)
	}

	rgb, err := pipeline.ApplyPost(result["rgb"])
	if err != nil {
		return nil, fmt.Errorf("applying post-controls: %w", err)
	}
	rgb, err = rgb.SliceChannels(3)
	if err != nil {
		return nil, fmt.Errorf("slicing rgb to 3 channels: %w", err)
	}
	result["rgb"] = rgb

	if err := pipeline.Unapply(ctx); err != nil {
		return nil, fmt.Errorf("unapplying pre-controls: %w", err)
	}

	prediction, err := w.model.Predict(rgb)
	if err != nil {
		return nil, fmt.Errorf("running inference: %w", err)
	}

	target, err := w.evaluator.Target(w.modelUID)
	if err != nil {
		return nil, fmt.Errorf("resolving evaluation target: %w", err)
	}
	stats, err := w.evaluator.Summarize(prediction, target)
	if err != nil {
		return nil, fmt.Errorf("summarizing evaluation: %w", err)
	}

	data := tensor.Dict{"output": prediction}
	for k, v := range result {
		data[k] = v
	}
	for k, schema := range w.evaluator.DeclareOutputs() {
		encoded, err := encodeStat(schema, stats[k])
		if err != nil {
			return nil, fmt.Errorf("encoding stat %q: %w", k, err)
		}
		data[k] = encoded
	}

	if w.opts.FakeResults {
		cloned := data.Clone()
		w.cachedResult = &cloned
	}
	return toTensorMap(data), nil
}

func (w *Worker) loadEnvModel(env, model string) error {
	w.log.Info("loading new environment/model pair", "environment", env, "model", model)
	loadedEnv, err := w.engine.LoadEnv(env)
	if err != nil {
		return fmt.Errorf("loading environment %q: %w", env, err)
	}
	loadedModel, err := w.engine.LoadModel(model)
	if err != nil {
		return fmt.Errorf("loading model %q: %w", model, err)
	}
	if err := w.engine.SetupRender(loadedModel, loadedEnv); err != nil {
		return fmt.Errorf("setting up render: %w", err)
	}
	w.loadedEnv = loadedEnv
	w.loadedModel = loadedModel
	w.modelUID = w.engine.GetModelUID(loadedModel)
	w.lastEnv = env
	w.lastModel = model
	return nil
}

func (w *Worker) buildPipeline(job *wire.Job) (*control.Pipeline, *control.Context, error) {
	order := make([]string, len(job.ControlOrder))
	for i, pair := range job.ControlOrder {
		order[i] = pair[0]
	}
	renderArgsByControl := search.GroupByControl(search.Unflatten(job.RenderArgs))
	pipeline, err := control.NewPipeline(order, w.opts.RootFolder, w.controlsArgs, renderArgsByControl)
	if err != nil {
		return nil, nil, fmt.Errorf("building control pipeline: %w", err)
	}
	ctx := &control.Context{Object: w.modelUID, Extra: map[string]interface{}{}}
	return pipeline, ctx, nil
}

// Close releases the underlying connection.
func (w *Worker) Close() error { return w.conn.Close() }

func toTensorMap(d tensor.Dict) map[string]tensor.Tensor { return map[string]tensor.Tensor(d) }

// mergeRenderArgs overlays the worker's own CLI flags onto the
// scheduler-provided render_args, matching client.py's
// `{**render_args, **vars(args)}`: per-worker hardware settings (gpu id,
// cpu cores, tile size) take precedence over the experiment-wide defaults.
func mergeRenderArgs(base map[string]interface{}, opts Options) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+4)
	for k, v := range base {
		merged[k] = v
	}
	merged["gpu_id"] = opts.GPUID
	merged["cpu_cores"] = opts.CPUCores
	merged["tile_size"] = opts.TileSize
	merged["batch_size"] = opts.BatchSize
	return merged
}

// splitModuleArgs pulls the "module" registry key and nested "args" map out
// of an info-reply section, the Go-side equivalent of
// `importlib.import_module(x['module'])` plus `**x['args']`.
func splitModuleArgs(section map[string]interface{}) (string, map[string]interface{}, error) {
	module, ok := section["module"].(string)
	if !ok || module == "" {
		return "", nil, fmt.Errorf("missing \"module\" key")
	}
	args, _ := section["args"].(map[string]interface{})
	return module, args, nil
}

func toIntSlice(v interface{}) []int {
	switch s := v.(type) {
	case []int:
		return s
	case []interface{}:
		out := make([]int, len(s))
		for i, x := range s {
			switch n := x.(type) {
			case int:
				out[i] = n
			case float64:
				out[i] = int(n)
			}
		}
		return out
	default:
		return nil
	}
}
