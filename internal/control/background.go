package control

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/three-db/threedb/internal/tensor"
)

func init() {
	Register("BackgroundControl", newBackgroundControl)
}

// BackgroundControl fills the alpha channel of a render with an HSV color,
// adapted from original_source/threedb/controls/blender/background.py. It
// requires a renderer producing a transparent background (film_transparent
// in the Blender original); that is a `pre` control's responsibility, not
// this one's, matching the Python original's own caveat.
type BackgroundControl struct{}

func newBackgroundControl(rootFolder string, args map[string]interface{}) (Dims, error) {
	return &BackgroundControl{}, nil
}

func (c *BackgroundControl) Name() string { return "BackgroundControl" }
func (c *BackgroundControl) Kind() Kind   { return KindPost }

func (c *BackgroundControl) ContinuousDims() map[string][2]float64 {
	return map[string][2]float64{
		"H": {0, 1},
		"S": {0, 1},
		"V": {0, 1},
	}
}

func (c *BackgroundControl) DiscreteDims() map[string][]interface{} { return nil }

// Apply expects img to carry an RGBA float32 channel, shape (4, H, W), and
// composites the RGB channels over a solid HSV color using the alpha
// channel as the matte, matching the Python original's `img * alpha + (1 -
// alpha) * color` blend.
func (c *BackgroundControl) Apply(img tensor.Tensor, args map[string]interface{}) (tensor.Tensor, error) {
	if img.DType != tensor.Float32 || len(img.Shape) != 3 || img.Shape[0] != 4 {
		return tensor.Tensor{}, fmt.Errorf("control: BackgroundControl requires an RGBA float32 (4,H,W) tensor, got %s/%s", img.DType, img.Shape)
	}
	h, ok1 := args["H"].(float64)
	s, ok2 := args["S"].(float64)
	v, ok3 := args["V"].(float64)
	if !ok1 || !ok2 || !ok3 {
		return tensor.Tensor{}, fmt.Errorf("control: BackgroundControl requires H, S, V arguments")
	}
	r, g, b := hsvToRGB(h, s, v)

	out := tensor.Tensor{Shape: tensor.Shape{3, img.Shape[1], img.Shape[2]}, DType: tensor.Float32}
	plane := img.Shape[1] * img.Shape[2]
	out.Data = make([]byte, 3*plane*4)

	readf := func(data []byte, idx int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[idx*4:]))
	}
	writef := func(data []byte, idx int, v float32) {
		binary.LittleEndian.PutUint32(data[idx*4:], math.Float32bits(v))
	}

	colors := [3]float32{r, g, b}
	for ch := 0; ch < 3; ch++ {
		for p := 0; p < plane; p++ {
			alpha := readf(img.Data, 3*plane+p)
			pixel := readf(img.Data, ch*plane+p)
			writef(out.Data, ch*plane+p, pixel*alpha+(1-alpha)*colors[ch])
		}
	}
	return out, nil
}

// hsvToRGB mirrors Python's colorsys.hsv_to_rgb.
func hsvToRGB(h, s, v float64) (float32, float32, float32) {
	if s == 0 {
		return float32(v), float32(v), float32(v)
	}
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return float32(r), float32(g), float32(b)
}
