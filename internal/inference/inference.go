// Package inference declares the inference model interface 3DB's worker
// loop consumes, grounded on original_source/threedb/utils.py's
// load_inference_model and client.py's `inference_model(result['rgb'])`
// call. A real model (treated by spec.md §6 as an opaque image->prediction
// function) is an explicitly out-of-scope external collaborator; this
// package fixes the interface/registry and provides a deterministic fake
// model used for tests and `--fake-results` runs.
package inference

import (
	"fmt"

	"github.com/three-db/threedb/internal/tensor"
)

// Model maps a rendered (and control-processed) image to a prediction
// tensor, the opaque function spec.md §6 describes.
type Model interface {
	// Predict runs inference on rgb (already sliced to 3 channels and
	// resized/normalized per the configured preprocessing) and returns the
	// raw prediction tensor handed to the evaluator.
	Predict(rgb tensor.Tensor) (tensor.Tensor, error)
}

// Factory builds a Model from the experiment's inference config section
// (module/class/args/resolution/normalization/output_shape, spec.md §6),
// replacing the Python original's dynamic import in load_inference_model.
type Factory func(args map[string]interface{}) (Model, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) { registry[name] = factory }

func Build(name string, args map[string]interface{}) (Model, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("inference: unknown model %q", name)
	}
	return factory(args)
}
