package control

import "math"

func init() {
	Register("OrientationControl", newOrientationControl)
}

// OrientationControl rotates the object by Euler angles, adapted from
// original_source/threedb/controls/blender/pose.py.
type OrientationControl struct{}

func newOrientationControl(rootFolder string, args map[string]interface{}) (Dims, error) {
	return &OrientationControl{}, nil
}

func (c *OrientationControl) Name() string { return "OrientationControl" }
func (c *OrientationControl) Kind() Kind   { return KindPre }

func (c *OrientationControl) ContinuousDims() map[string][2]float64 {
	return map[string][2]float64{
		"rotation_X": {-math.Pi, math.Pi},
		"rotation_Y": {-math.Pi, math.Pi},
		"rotation_Z": {-math.Pi, math.Pi},
	}
}

func (c *OrientationControl) DiscreteDims() map[string][]interface{} { return nil }

func (c *OrientationControl) Apply(ctx *Context, args map[string]interface{}) error {
	if ctx.Extra == nil {
		ctx.Extra = map[string]interface{}{}
	}
	ctx.Extra["rotation_euler"] = args
	return nil
}

func (c *OrientationControl) Unapply(ctx *Context) error {
	ctx.Extra["rotation_euler"] = map[string]interface{}{"rotation_X": 0.0, "rotation_Y": 0.0, "rotation_Z": 0.0}
	return nil
}
