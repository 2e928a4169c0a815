package control

import (
	"fmt"

	"github.com/three-db/threedb/internal/tensor"
)

// Pipeline holds the ordered, instantiated controls for one job and applies
// them around a render, grounded on
// original_source/threedb/rendering/utils.py's ControlsApplier: pre-process
// controls run in declared order before rendering and unapply in reverse
// order afterwards, post-process controls run in declared order over the
// rendered image.
type Pipeline struct {
	controls []Dims
	args     map[string]map[string]interface{}
}

// NewPipeline builds the instantiated control list for order, constructing
// each one via the registry and grouping render_args by control name the way
// ControlsApplier's grouped_args dict does.
func NewPipeline(order []string, rootFolder string, configArgs map[string]map[string]interface{}, renderArgs map[string]map[string]interface{}) (*Pipeline, error) {
	p := &Pipeline{
		controls: make([]Dims, 0, len(order)),
		args:     renderArgs,
	}
	for _, name := range order {
		c, err := Build(name, rootFolder, configArgs[name])
		if err != nil {
			return nil, fmt.Errorf("control: building %q: %w", name, err)
		}
		p.controls = append(p.controls, c)
	}
	return p, nil
}

// ApplyPre runs every pre-process control's Apply, in declared order.
func (p *Pipeline) ApplyPre(ctx *Context) error {
	for _, c := range p.controls {
		pre, ok := c.(PreProcessControl)
		if !ok {
			continue
		}
		if err := pre.Apply(ctx, p.args[c.Name()]); err != nil {
			return fmt.Errorf("control: %s.Apply: %w", c.Name(), err)
		}
	}
	return nil
}

// Unapply undoes every pre-process control's mutation, in the reverse of
// the order ApplyPre ran them (the scheduler reuses scenes across jobs, so
// each job must leave the scene as it found it).
func (p *Pipeline) Unapply(ctx *Context) error {
	for i := len(p.controls) - 1; i >= 0; i-- {
		c := p.controls[i]
		pre, ok := c.(PreProcessControl)
		if !ok {
			continue
		}
		if err := pre.Unapply(ctx); err != nil {
			return fmt.Errorf("control: %s.Unapply: %w", c.Name(), err)
		}
	}
	return nil
}

// ApplyPost threads img through every post-process control's Apply, in
// declared order.
func (p *Pipeline) ApplyPost(img tensor.Tensor) (tensor.Tensor, error) {
	var err error
	for _, c := range p.controls {
		post, ok := c.(PostProcessControl)
		if !ok {
			continue
		}
		img, err = post.Apply(img, p.args[c.Name()])
		if err != nil {
			return tensor.Tensor{}, fmt.Errorf("control: %s.Apply: %w", c.Name(), err)
		}
	}
	return img, nil
}

// Controls exposes the instantiated controls, in order, for SearchSpace.
func (p *Pipeline) Controls() []Dims { return p.controls }
