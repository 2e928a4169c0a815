package control

func init() {
	Register("CameraControl", newCameraControl)
}

// CameraControl repositions the scene's camera by view point, zoom, aperture
// and focal length, adapted from
// original_source/threedb/controls/blender/camera.py. The actual camera
// placement is a renderer concern (invoked through ctx.Extra by whichever
// renderer plugin is wired in); this control only owns the parameter space
// and argument validation.
type CameraControl struct{}

func newCameraControl(rootFolder string, args map[string]interface{}) (Dims, error) {
	return &CameraControl{}, nil
}

func (c *CameraControl) Name() string { return "CameraControl" }
func (c *CameraControl) Kind() Kind   { return KindPre }

func (c *CameraControl) ContinuousDims() map[string][2]float64 {
	return map[string][2]float64{
		"view_point_x": {-1, 1},
		"view_point_y": {-1, 1},
		"view_point_z": {0, 1},
		"zoom_factor":  {0.5, 2},
		"aperture":     {1, 32},
		"focal_length": {10, 400},
	}
}

func (c *CameraControl) DiscreteDims() map[string][]interface{} { return nil }

// Apply stashes the resolved camera parameters on the context for the
// renderer to consume; the renderer performs the actual view-point/lookat
// math described in the note on the Python original (view_point, zoom and
// focal length cannot all be satisfied simultaneously, so the renderer sets
// aperture/focal_length, frames the view point, then dollies to the zoom
// factor).
func (c *CameraControl) Apply(ctx *Context, args map[string]interface{}) error {
	if ctx.Extra == nil {
		ctx.Extra = map[string]interface{}{}
	}
	ctx.Extra["camera"] = args
	return nil
}

func (c *CameraControl) Unapply(ctx *Context) error {
	delete(ctx.Extra, "camera")
	return nil
}
