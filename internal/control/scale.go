package control

func init() {
	Register("ObjScaleControl", newObjScaleControl)
}

// ObjScaleControl uniformly scales the rendered object, adapted from
// original_source/threedb/controls/blender/scale.py. It is the pipeline's
// canonical Unapply example: the control must restore the object to a scale
// of 1 so later jobs in the same scene are unaffected.
type ObjScaleControl struct{}

func newObjScaleControl(rootFolder string, args map[string]interface{}) (Dims, error) {
	return &ObjScaleControl{}, nil
}

func (c *ObjScaleControl) Name() string { return "ObjScaleControl" }
func (c *ObjScaleControl) Kind() Kind   { return KindPre }

func (c *ObjScaleControl) ContinuousDims() map[string][2]float64 {
	return map[string][2]float64{"factor": {0.25, 1}}
}

func (c *ObjScaleControl) DiscreteDims() map[string][]interface{} { return nil }

func (c *ObjScaleControl) Apply(ctx *Context, args map[string]interface{}) error {
	if ctx.Extra == nil {
		ctx.Extra = map[string]interface{}{}
	}
	ctx.Extra["scale"] = args["factor"]
	return nil
}

func (c *ObjScaleControl) Unapply(ctx *Context) error {
	ctx.Extra["scale"] = 1.0
	return nil
}
