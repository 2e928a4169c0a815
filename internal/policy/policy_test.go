package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridSearchHintAndCoverage(t *testing.T) {
	p, err := Build("GridSearchPolicy", 1, []int{2}, map[string]interface{}{"samples_per_dim": 3})
	require.NoError(t, err)

	start, total := p.HintScheduler()
	assert.Equal(t, 1, start)
	assert.Equal(t, 6, total) // 3^1 * 2

	var seen int
	err = p.Run(func(batch []Sample) (Tensors, error) {
		seen += len(batch)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 6, seen)
}

func TestGridSearchChunking(t *testing.T) {
	p, err := Build("GridSearchPolicy", 2, nil, map[string]interface{}{"samples_per_dim": 40})
	require.NoError(t, err)

	var calls, total int
	err = p.Run(func(batch []Sample) (Tensors, error) {
		calls++
		total += len(batch)
		assert.LessOrEqual(t, len(batch), gridChunkSize)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1600, total) // 40^2
	assert.Greater(t, calls, 1)
}

func TestRandomSearchSamplesOnce(t *testing.T) {
	p, err := Build("RandomSearchPolicy", 2, []int{4}, map[string]interface{}{"samples": 25, "seed": 7})
	require.NoError(t, err)

	start, total := p.HintScheduler()
	assert.Equal(t, 1, start)
	assert.Equal(t, 25, total)

	var batches int
	err = p.Run(func(batch []Sample) (Tensors, error) {
		batches++
		require.Len(t, batch, 25)
		for _, s := range batch {
			require.Len(t, s.Continuous, 2)
			require.Len(t, s.Discrete, 1)
			assert.GreaterOrEqual(t, s.Discrete[0], 0)
			assert.Less(t, s.Discrete[0], 4)
		}
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, batches)
}

func TestUnknownPolicyFails(t *testing.T) {
	_, err := Build("NoSuchPolicy", 1, nil, nil)
	require.Error(t, err)
}
