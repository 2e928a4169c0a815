package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/three-db/threedb/internal/tensor"
)

func TestPipelinePreApplyUnapplyOrder(t *testing.T) {
	order := []string{"OrientationControl", "ObjScaleControl"}
	renderArgs := map[string]map[string]interface{}{
		"OrientationControl": {"rotation_X": 0.1, "rotation_Y": 0.2, "rotation_Z": 0.3},
		"ObjScaleControl":    {"factor": 0.5},
	}
	p, err := NewPipeline(order, "/root", nil, renderArgs)
	require.NoError(t, err)

	ctx := &Context{Object: "obj"}
	require.NoError(t, p.ApplyPre(ctx))
	assert.Equal(t, 0.5, ctx.Extra["scale"])
	assert.NotNil(t, ctx.Extra["rotation_euler"])

	require.NoError(t, p.Unapply(ctx))
	assert.Equal(t, 1.0, ctx.Extra["scale"])
}

func TestPipelineUnknownControlFails(t *testing.T) {
	_, err := NewPipeline([]string{"NoSuchControl"}, "/root", nil, nil)
	require.Error(t, err)
}

func TestBackgroundControlCompositesAlpha(t *testing.T) {
	p, err := NewPipeline([]string{"BackgroundControl"}, "/root", nil, map[string]map[string]interface{}{
		"BackgroundControl": {"H": 0.0, "S": 0.0, "V": 1.0},
	})
	require.NoError(t, err)

	img := tensor.New(tensor.Schema{Shape: tensor.Shape{4, 1, 1}, DType: tensor.Float32})
	out, err := p.ApplyPost(img)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 1, 1}, out.Shape)
}
