package policy

import (
	"fmt"
	"math/rand"
	"time"
)

func init() {
	Register("RandomSearchPolicy", newRandomSearchPolicy)
}

// RandomSearch draws uniformly random samples from the search space,
// adapted from original_source/threedb/policies/random_search.py.
type RandomSearch struct {
	continuousDim int
	discreteSizes []int
	samples       int
	seed          int64
	hasSeed       bool
}

func newRandomSearchPolicy(continuousDim int, discreteSizes []int, args map[string]interface{}) (Policy, error) {
	samples, ok := toInt(args["samples"])
	if !ok {
		return nil, fmt.Errorf("policy: RandomSearchPolicy requires an integer samples")
	}
	if samples < 1 {
		return nil, fmt.Errorf("policy: samples must be positive, got %d", samples)
	}
	rs := &RandomSearch{continuousDim: continuousDim, discreteSizes: discreteSizes, samples: samples}
	if seed, ok := toInt(args["seed"]); ok {
		rs.seed = int64(seed)
		rs.hasSeed = true
	}
	return rs, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (r *RandomSearch) HintScheduler() (int, int) {
	return 1, r.samples
}

func (r *RandomSearch) Run(render RenderFunc) error {
	seed := r.seed
	if !r.hasSeed {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	batch := make([]Sample, r.samples)
	for i := 0; i < r.samples; i++ {
		continuous := make([]float64, r.continuousDim)
		for j := range continuous {
			continuous[j] = rng.Float64()
		}
		discrete := make([]int, len(r.discreteSizes))
		for j, n := range r.discreteSizes {
			discrete[j] = rng.Intn(n)
		}
		batch[i] = Sample{Continuous: continuous, Discrete: discrete}
	}
	_, err := render(batch)
	return err
}
