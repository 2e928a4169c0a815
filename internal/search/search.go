// Package search implements the flattening of a control pipeline's declared
// dimensions into the packed parameter vector space the scheduler searches
// over, grounded on original_source/threedb/scheduling/search_space.py's
// SearchSpace.
package search

import (
	"github.com/three-db/threedb/internal/control"
)

// ArgKey names one argument of one control in the unpacked result map.
type ArgKey struct {
	Control string
	Attr    string
}

// String flattens an ArgKey into the wire-safe form used for a Job's
// render_args map (JSON object keys must be strings, unlike the Python
// original's tuple-keyed dict, which travels unmodified over a
// multiprocessing.Queue).
func (k ArgKey) String() string { return k.Control + "." + k.Attr }

// ParseArgKey splits a flattened key back into its control and attribute
// parts, as the worker does when rebuilding render_args from a Job.
func ParseArgKey(s string) ArgKey {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return ArgKey{Control: s[:i], Attr: s[i+1:]}
		}
	}
	return ArgKey{Control: s}
}

// Flatten converts an unpacked argument map into the wire-safe
// map[string]interface{} form for a Job's render_args.
func Flatten(args map[ArgKey]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k.String()] = v
	}
	return out
}

// Unflatten is the inverse of Flatten, used worker-side.
func Unflatten(args map[string]interface{}) map[ArgKey]interface{} {
	out := make(map[ArgKey]interface{}, len(args))
	for k, v := range args {
		out[ParseArgKey(k)] = v
	}
	return out
}

type continuousArg struct {
	control string
	attr    string
	lo, hi  float64
}

type discreteArg struct {
	control string
	attr    string
	values  []interface{}
}

type fixedArg struct {
	control string
	attr    string
	value   interface{}
}

// Space is the flattened search space over an ordered list of controls: a
// vector of continuous dims in [0,1] to be rescaled into each one's declared
// range, a vector of discrete dims to be indexed into each one's candidate
// list, and any dims that turned out to have only one possible value
// (spec.md §4.2's "fixed dims"), which are not searched over at all.
type Space struct {
	controls   []control.Dims
	continuous []continuousArg
	discrete   []discreteArg
	fixed      []fixedArg
}

// New builds a Space from an ordered list of instantiated controls. A
// continuous dim whose declared range collapses to a single point (lo ==
// hi) and a discrete dim with exactly one candidate value are treated as
// fixed rather than searched, mirroring the Python original's set_args
// branch.
func New(controls []control.Dims) *Space {
	sp := &Space{controls: controls}
	for _, c := range controls {
		name := c.Name()
		for attr, rng := range c.ContinuousDims() {
			if rng[0] == rng[1] {
				sp.fixed = append(sp.fixed, fixedArg{control: name, attr: attr, value: rng[0]})
				continue
			}
			sp.continuous = append(sp.continuous, continuousArg{control: name, attr: attr, lo: rng[0], hi: rng[1]})
		}
		for attr, values := range c.DiscreteDims() {
			if len(values) == 0 {
				continue
			}
			if len(values) == 1 {
				sp.fixed = append(sp.fixed, fixedArg{control: name, attr: attr, value: values[0]})
				continue
			}
			sp.discrete = append(sp.discrete, discreteArg{control: name, attr: attr, values: values})
		}
	}
	return sp
}

// Description returns the dimensionality of the packed vector space: the
// number of continuous dims, followed by the cardinality of each discrete
// dim in the order Unpack expects them (spec.md §4.2).
func (sp *Space) Description() (continuousDims int, discreteCardinalities []int) {
	discreteCardinalities = make([]int, len(sp.discrete))
	for i, d := range sp.discrete {
		discreteCardinalities[i] = len(d.values)
	}
	return len(sp.continuous), discreteCardinalities
}

// ControlOrder returns the qualified control identifiers in declared order,
// for embedding in a job so the worker can rebuild the same pipeline
// (spec.md §3's Job.control_order).
func (sp *Space) ControlOrder() [][2]string {
	order := make([][2]string, len(sp.controls))
	for i, c := range sp.controls {
		order[i] = [2]string{c.Name(), c.Name()}
	}
	return order
}

// Unpack rescales a packed continuous vector (each coordinate in [0,1]) and
// indexes a packed discrete vector into a concrete argument map, filling in
// fixed dims unconditionally, matching
// original_source/threedb/scheduling/search_space.py's unpack().
func (sp *Space) Unpack(packedContinuous []float64, packedDiscrete []int) (map[ArgKey]interface{}, error) {
	if len(packedContinuous) != len(sp.continuous) {
		return nil, errMismatch("continuous", len(sp.continuous), len(packedContinuous))
	}
	if len(packedDiscrete) != len(sp.discrete) {
		return nil, errMismatch("discrete", len(sp.discrete), len(packedDiscrete))
	}

	result := make(map[ArgKey]interface{}, len(sp.continuous)+len(sp.discrete)+len(sp.fixed))
	for i, c := range sp.continuous {
		v := packedContinuous[i]*(c.hi-c.lo) + c.lo
		result[ArgKey{Control: c.control, Attr: c.attr}] = v
	}
	for i, d := range sp.discrete {
		ix := packedDiscrete[i]
		if ix < 0 || ix >= len(d.values) {
			return nil, errIndexRange(d.control, d.attr, ix, len(d.values))
		}
		result[ArgKey{Control: d.control, Attr: d.attr}] = d.values[ix]
	}
	for _, f := range sp.fixed {
		result[ArgKey{Control: f.control, Attr: f.attr}] = f.value
	}
	return result, nil
}

// GroupByControl regroups an unpacked argument map by control name, the
// shape render_args must be in before it can be handed to
// control.Pipeline.ApplyPre/ApplyPost.
func GroupByControl(args map[ArgKey]interface{}) map[string]map[string]interface{} {
	grouped := make(map[string]map[string]interface{})
	for key, v := range args {
		if grouped[key.Control] == nil {
			grouped[key.Control] = map[string]interface{}{}
		}
		grouped[key.Control][key.Attr] = v
	}
	return grouped
}
