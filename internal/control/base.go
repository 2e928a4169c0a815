// Package control implements the 3DB control pipeline: ordered pre- and
// post-process controls that perturb a scene before it is rendered or the
// rendered image afterwards, grounded on
// original_source/threedb/controls/base_control.py and
// original_source/threedb/rendering/utils.py's ControlsApplier.
package control

import "github.com/three-db/threedb/internal/tensor"

// Kind distinguishes when a control runs in the render pipeline.
type Kind string

const (
	// KindPre controls run before the scene is rendered and mutate a
	// renderer-specific scene context.
	KindPre Kind = "pre"
	// KindPost controls run after rendering and transform the image.
	KindPost Kind = "post"
)

// Dims is the subset of Control shared by every control: its declared
// search dimensions. Continuous dims map a parameter name to a (min, max)
// range; discrete dims map a parameter name to its candidate values.
type Dims interface {
	// Name is the qualified control identifier carried on the wire (the
	// Python original's (module, classname) pair collapses in Go to a
	// single registry key, since there is no dynamic import to replicate).
	Name() string
	Kind() Kind
	ContinuousDims() map[string][2]float64
	DiscreteDims() map[string][]interface{}
}

// PreProcessControl mutates a renderer's scene context ahead of rendering
// and must be able to undo that mutation, since scenes are reused across
// jobs rather than rebuilt from scratch (original_source's ObjScaleControl
// is the canonical example: it scales the object in Apply and resets the
// scale to 1 in Unapply).
type PreProcessControl interface {
	Dims
	Apply(ctx *Context, args map[string]interface{}) error
	Unapply(ctx *Context) error
}

// PostProcessControl transforms a rendered image; unlike pre-process
// controls it is not asked to undo its effect, since the next render starts
// from a fresh image (original_source/threedb/controls/blender/background.py).
type PostProcessControl interface {
	Dims
	Apply(img tensor.Tensor, args map[string]interface{}) (tensor.Tensor, error)
}

// Context is the renderer-agnostic scene handle passed to pre-process
// controls. 3DB's Blender controls reach into a `bpy.context` object full of
// scene-specific state; here that is reduced to the fields a control
// actually needs plus an Extra bag for renderer-specific state a control may
// stash between Apply and Unapply (the Python original relies on `self` for
// the same purpose, which Go's stateless Apply/Unapply split does not
// afford).
type Context struct {
	Object string
	Extra  map[string]interface{}
}
