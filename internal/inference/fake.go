package inference

import (
	"encoding/binary"
	"math"

	"github.com/three-db/threedb/internal/tensor"
)

func init() {
	Register("fake", newFakeModel)
}

// Fake returns a fixed logit vector regardless of input, the Go analogue of
// client.py's `--fake-results` short-circuit (there it caches the first
// real result and replays it; here there is no real model to cache from, so
// it synthesizes one directly).
type Fake struct {
	classes int
}

func newFakeModel(args map[string]interface{}) (Model, error) {
	classes := 1000
	if v, ok := args["classes"].(int); ok && v > 0 {
		classes = v
	}
	return &Fake{classes: classes}, nil
}

func (f *Fake) Predict(rgb tensor.Tensor) (tensor.Tensor, error) {
	out := tensor.New(tensor.Schema{Shape: tensor.Shape{f.classes}, DType: tensor.Float32})
	for i := 0; i < f.classes; i++ {
		v := float32(0)
		if i == 0 {
			v = 1
		}
		binary.LittleEndian.PutUint32(out.Data[i*4:], math.Float32bits(v))
	}
	return out, nil
}
