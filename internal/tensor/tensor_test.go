package tensor

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float32Tensor(shape Shape, values []float32) Tensor {
	t := New(Schema{Shape: shape, DType: Float32})
	for i, v := range values {
		binary.LittleEndian.PutUint32(t.Data[i*4:], math.Float32bits(v))
	}
	return t
}

func TestSliceChannelsTruncatesLeadingDimension(t *testing.T) {
	rgba := float32Tensor(Shape{4, 1, 1}, []float32{0.1, 0.2, 0.3, 1.0})

	rgb, err := rgba.SliceChannels(3)
	require.NoError(t, err)

	assert.Equal(t, Shape{3, 1, 1}, rgb.Shape)
	assert.Len(t, rgb.Data, 12)
	assert.Equal(t, float32(0.1), math.Float32frombits(binary.LittleEndian.Uint32(rgb.Data[0:])))
	assert.Equal(t, float32(0.3), math.Float32frombits(binary.LittleEndian.Uint32(rgb.Data[8:])))
}

func TestSliceChannelsNoopWhenAlreadyThatWidth(t *testing.T) {
	rgb := float32Tensor(Shape{3, 1, 1}, []float32{0.1, 0.2, 0.3})

	out, err := rgb.SliceChannels(3)
	require.NoError(t, err)
	assert.Equal(t, rgb, out)
}

func TestSliceChannelsRejectsWiderRequestThanAvailable(t *testing.T) {
	rgb := float32Tensor(Shape{3, 1, 1}, []float32{0.1, 0.2, 0.3})
	_, err := rgb.SliceChannels(4)
	require.Error(t, err)
}
