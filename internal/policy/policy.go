// Package policy implements the search policies that drive a
// PolicyController's render loop, grounded on
// original_source/threedb/policies/grid_search.py and
// original_source/threedb/policies/random_search.py.
package policy

import (
	"fmt"
)

// Sample is one point in the packed search space: a vector of continuous
// coordinates in [0,1] and a vector of discrete indices, matching the
// (continuous_instance, discrete_instance) pairs the Python originals build.
type Sample struct {
	Continuous []float64
	Discrete   []int
}

// Tensors is the stacked-by-channel result of a rendered batch, mirroring
// the Python original's `stacked_results` dict of numpy arrays. The
// reference policies below don't inspect it (neither does
// original_source/threedb/policies/grid_search.py, which discards render's
// return value past unpacking it), but RenderFunc returns it for policies
// that do want to make decisions based on prior results (e.g. an
// active-learning search policy).
type Tensors map[string][]interface{}

// RenderFunc renders a batch of samples and returns once every sample has
// come back from a worker, matching the Python original's blocking
// render(args)/render_and_send(args) closures built by PolicyController.
type RenderFunc func(batch []Sample) (Tensors, error)

// Policy drives a search over a SearchSpace via repeated calls to a
// RenderFunc it is handed at Run time.
type Policy interface {
	// HintScheduler reports (in order of the Python original's
	// hint_scheduler tuple) a starting order offset and the total number
	// of samples this policy will submit for rendering, summed over all of
	// its RenderFunc calls, used by the scheduler for
	// progress reporting (spec.md §7).
	HintScheduler() (startOrder, totalQueries int)
	Run(render RenderFunc) error
}

// Factory builds a Policy from its declared dimensionality and per-policy
// config arguments, replacing the Python original's
// `importlib.import_module(module).Policy(...)` in `threedb.utils.init_policy`.
type Factory func(continuousDim int, discreteSizes []int, args map[string]interface{}) (Policy, error)

var registry = map[string]Factory{}

// Register adds a policy factory under name, looked up from the
// experiment config's `policy.name` field.
func Register(name string, factory Factory) { registry[name] = factory }

// Build instantiates the named policy.
func Build(name string, continuousDim int, discreteSizes []int, args map[string]interface{}) (Policy, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("policy: unknown policy %q", name)
	}
	return factory(continuousDim, discreteSizes, args)
}
