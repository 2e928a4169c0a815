// Package evaluator declares the evaluator plugin interface 3DB's worker
// loop consumes, grounded on
// original_source/threedb/evaluators/base_evaluator.py's BaseEvaluator. A
// real evaluator (classification accuracy, detection IoU, ...) is an
// explicitly out-of-scope external collaborator for anything
// domain-specific; this package fixes the interface/registry and provides
// the classification reference implementation from
// original_source/threedb/evaluators/classification.py, which is concrete
// enough to be generally useful rather than a pure stub.
package evaluator

import (
	"fmt"

	"github.com/three-db/threedb/internal/tensor"
)

// Stats is the per-job summary an Evaluator produces, the Python
// original's summary_stats() return dict (e.g. is_correct, loss, prediction).
type Stats map[string]interface{}

// Evaluator turns an inference model's prediction plus the ground-truth
// label for a model UID into summary statistics for logging.
type Evaluator interface {
	// Keys lists every stat name this evaluator may produce, the Python
	// original's class-level KEYS.
	Keys() []string
	// OutputType labels the kind of task (e.g. "classes"), the Python
	// original's output_type.
	OutputType() string
	// DeclareOutputs is this evaluator's contribution to a job's declared
	// output schema (spec.md §3); every key must be a subset of Keys().
	DeclareOutputs() map[string]tensor.Schema
	// Target returns the ground truth for modelUID.
	Target(modelUID string) (interface{}, error)
	// Summarize computes Stats for a prediction against its target.
	Summarize(pred tensor.Tensor, target interface{}) (Stats, error)
}

// Factory builds an Evaluator from its config args, replacing the Python
// original's `getattr(importlib.import_module(module), 'Evaluator')(**args)`.
type Factory func(rootFolder string, args map[string]interface{}) (Evaluator, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) { registry[name] = factory }

func Build(name, rootFolder string, args map[string]interface{}) (Evaluator, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("evaluator: unknown evaluator %q", name)
	}
	return factory(rootFolder, args)
}
