package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/three-db/threedb/internal/control"
)

type stubControl struct {
	name       string
	kind       control.Kind
	continuous map[string][2]float64
	discrete   map[string][]interface{}
}

func (s *stubControl) Name() string                               { return s.name }
func (s *stubControl) Kind() control.Kind                         { return s.kind }
func (s *stubControl) ContinuousDims() map[string][2]float64      { return s.continuous }
func (s *stubControl) DiscreteDims() map[string][]interface{}     { return s.discrete }

func TestDescriptionAndUnpack(t *testing.T) {
	c1 := &stubControl{
		name:       "Camera",
		continuous: map[string][2]float64{"zoom": {0.5, 2}},
	}
	c2 := &stubControl{
		name:     "Background",
		discrete: map[string][]interface{}{"palette": {"red", "green", "blue"}},
	}
	sp := New([]control.Dims{c1, c2})

	nc, discreteCards := sp.Description()
	require.Equal(t, 1, nc)
	require.Equal(t, []int{3}, discreteCards)

	args, err := sp.Unpack([]float64{0.5}, []int{2})
	require.NoError(t, err)
	assert.InDelta(t, 1.25, args[ArgKey{Control: "Camera", Attr: "zoom"}].(float64), 1e-9)
	assert.Equal(t, "blue", args[ArgKey{Control: "Background", Attr: "palette"}])
}

func TestFixedDimsAreNotSearched(t *testing.T) {
	c := &stubControl{
		name:       "Light",
		continuous: map[string][2]float64{"intensity": {5, 5}},
		discrete:   map[string][]interface{}{"shape": {"sphere"}},
	}
	sp := New([]control.Dims{c})

	nc, discreteCards := sp.Description()
	assert.Equal(t, 0, nc)
	assert.Empty(t, discreteCards)

	args, err := sp.Unpack(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, args[ArgKey{Control: "Light", Attr: "intensity"}])
	assert.Equal(t, "sphere", args[ArgKey{Control: "Light", Attr: "shape"}])
}

func TestUnpackLengthMismatch(t *testing.T) {
	c := &stubControl{name: "Camera", continuous: map[string][2]float64{"zoom": {0.5, 2}}}
	sp := New([]control.Dims{c})
	_, err := sp.Unpack(nil, nil)
	require.Error(t, err)
}

func TestGroupByControl(t *testing.T) {
	args := map[ArgKey]interface{}{
		{Control: "Camera", Attr: "zoom"}:  1.0,
		{Control: "Camera", Attr: "focal"}: 50.0,
	}
	grouped := GroupByControl(args)
	require.Contains(t, grouped, "Camera")
	assert.Equal(t, 1.0, grouped["Camera"]["zoom"])
	assert.Equal(t, 50.0, grouped["Camera"]["focal"])
}
