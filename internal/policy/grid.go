package policy

import "fmt"

func init() {
	Register("GridSearchPolicy", newGridSearchPolicy)
}

// GridSearch enumerates the cross product of every control dimension,
// adapted from original_source/threedb/policies/grid_search.py. Continuous
// dims are swept at SamplesPerDim evenly-spaced points in [0,1], both
// endpoints included (a single point at 0 when SamplesPerDim is 1); discrete
// dims are swept over every index.
type GridSearch struct {
	continuousDim int
	discreteSizes []int
	samplesPerDim int
}

func newGridSearchPolicy(continuousDim int, discreteSizes []int, args map[string]interface{}) (Policy, error) {
	samples, ok := args["samples_per_dim"].(int)
	if !ok {
		if f, isFloat := args["samples_per_dim"].(float64); isFloat {
			samples = int(f)
		} else {
			return nil, fmt.Errorf("policy: GridSearchPolicy requires an integer samples_per_dim")
		}
	}
	if samples < 1 {
		return nil, fmt.Errorf("policy: samples_per_dim must be positive, got %d", samples)
	}
	return &GridSearch{continuousDim: continuousDim, discreteSizes: discreteSizes, samplesPerDim: samples}, nil
}

// gridChunkSize matches the Python original's chunks(lst, 1000): render
// calls are batched so the scheduler never has to hold more than a bounded
// number of outstanding jobs from a single controller at once.
const gridChunkSize = 1000

func (g *GridSearch) HintScheduler() (int, int) {
	total := intPow(g.samplesPerDim, g.continuousDim)
	for _, n := range g.discreteSizes {
		total *= n
	}
	return 1, total
}

func (g *GridSearch) Run(render RenderFunc) error {
	continuousValues := linspace(0, 1, g.samplesPerDim)

	var all []Sample
	continuousCombos := cartesianFloat(continuousValues, g.continuousDim)
	discreteCombos := cartesianInt(g.discreteSizes)
	for _, c := range continuousCombos {
		for _, d := range discreteCombos {
			all = append(all, Sample{Continuous: c, Discrete: d})
		}
	}

	for start := 0; start < len(all); start += gridChunkSize {
		end := start + gridChunkSize
		if end > len(all) {
			end = len(all)
		}
		if _, err := render(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func intPow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := 0; i < n; i++ {
		out[i] = lo + step*float64(i)
	}
	return out
}

// cartesianFloat returns every length-dims combination of values, matching
// itertools.product(values, repeat=dims).
func cartesianFloat(values []float64, dims int) [][]float64 {
	if dims == 0 {
		return [][]float64{{}}
	}
	rest := cartesianFloat(values, dims-1)
	out := make([][]float64, 0, len(values)*len(rest))
	for _, v := range values {
		for _, r := range rest {
			combo := append([]float64{v}, r...)
			out = append(out, combo)
		}
	}
	return out
}

// cartesianInt returns every combination of indices in [0, sizes[i]),
// matching itertools.product(*[range(n) for n in sizes]).
func cartesianInt(sizes []int) [][]int {
	if len(sizes) == 0 {
		return [][]int{{}}
	}
	rest := cartesianInt(sizes[1:])
	out := make([][]int, 0, sizes[0]*len(rest))
	for i := 0; i < sizes[0]; i++ {
		for _, r := range rest {
			combo := append([]int{i}, r...)
			out = append(out, combo)
		}
	}
	return out
}
