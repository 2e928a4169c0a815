package control

import "fmt"

// Factory builds a control instance from its per-control config arguments
// (the `controls_args[classname]` kwargs in
// original_source/threedb/rendering/utils.py's ControlsApplier).
type Factory func(rootFolder string, args map[string]interface{}) (Dims, error)

var registry = map[string]Factory{}

// Register adds a control factory under name, the identifier that appears
// in a job's control order and in the experiment config's `controls`
// section. Call from an init() in the package defining the control, mirroring
// the teacher's pattern of registry-by-init for pluggable components.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Build instantiates the named control, replacing the Python original's
// importlib.import_module + getattr with a static registry lookup, since Go
// has no dynamic import.
func Build(name, rootFolder string, args map[string]interface{}) (Dims, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("control: unknown control %q", name)
	}
	return factory(rootFolder, args)
}

// Known returns the names of every registered control, for config validation.
func Known() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
