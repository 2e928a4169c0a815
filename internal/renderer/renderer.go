// Package renderer declares the renderer plugin interface 3DB's worker loop
// consumes, grounded on
// original_source/threedb/rendering/base_renderer.py's BaseRenderer. A real
// ray-traced renderer is an explicitly out-of-scope external collaborator;
// this package fixes the interface and registry and provides one
// deterministic reference implementation used for tests and
// `--fake-results` runs.
package renderer

import (
	"fmt"

	"github.com/three-db/threedb/internal/tensor"
)

// Renderer loads models/environments and produces rendered tensors, with
// pre/post controls applied around the render the way client.py's main loop
// drives a BaseRenderer.
type Renderer interface {
	// Name identifies the renderer, the Python original's NAME class var.
	Name() string
	// EnumerateModels/EnumerateEnvironments list the model and environment
	// ids found under root, the static-method discovery functions of the
	// Python original.
	EnumerateModels(root string) ([]string, error)
	EnumerateEnvironments(root string) ([]string, error)
	// DeclareOutputs is the renderer's contribution to a job's declared
	// output schema (spec.md §3).
	DeclareOutputs() map[string]tensor.Schema
	LoadModel(model string) (interface{}, error)
	GetModelUID(loadedModel interface{}) string
	LoadEnv(env string) (interface{}, error)
	SetupRender(loadedModel, loadedEnv interface{}) error
	// Render renders modelUID within loadedEnv/loadedModel. The caller
	// (internal/workerloop) is responsible for applying pre-controls to the
	// scene context beforehand and post-controls to the `rgb` channel
	// afterward, matching client.py's
	// apply_pre_controls/render/apply_post_controls/unapply sequence.
	Render(modelUID string, loadedModel, loadedEnv interface{}) (tensor.Dict, error)
}

// Factory builds a Renderer from its root folder and render-settings args
// (the `render_args` bundle the scheduler hands out via `info`), replacing
// the Python original's `getattr(importlib.import_module(engine), 'Renderer')`.
type Factory func(rootFolder string, args map[string]interface{}) (Renderer, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) { registry[name] = factory }

func Build(name, rootFolder string, args map[string]interface{}) (Renderer, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("renderer: unknown engine %q", name)
	}
	return factory(rootFolder, args)
}
