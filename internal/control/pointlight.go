package control

func init() {
	Register("PointLightControl", newPointLightControl)
}

// PointLightControl spawns a point light aimed at the object of interest,
// adapted from original_source/threedb/controls/blender/pointlight.py.
type PointLightControl struct{}

func newPointLightControl(rootFolder string, args map[string]interface{}) (Dims, error) {
	return &PointLightControl{}, nil
}

func (c *PointLightControl) Name() string { return "PointLightControl" }
func (c *PointLightControl) Kind() Kind   { return KindPre }

func (c *PointLightControl) ContinuousDims() map[string][2]float64 {
	return map[string][2]float64{
		"H":         {0, 1},
		"S":         {0, 1},
		"V":         {0, 1},
		"intensity": {1000, 10000},
		"distance":  {5, 20},
		"dir_x":     {-1, 1},
		"dir_y":     {-1, 1},
		"dir_z":     {0, 1},
	}
}

func (c *PointLightControl) DiscreteDims() map[string][]interface{} { return nil }

func (c *PointLightControl) Apply(ctx *Context, args map[string]interface{}) error {
	if ctx.Extra == nil {
		ctx.Extra = map[string]interface{}{}
	}
	lights, _ := ctx.Extra["point_lights"].([]map[string]interface{})
	ctx.Extra["point_lights"] = append(lights, args)
	return nil
}

func (c *PointLightControl) Unapply(ctx *Context) error {
	ctx.Extra["point_lights"] = nil
	return nil
}
