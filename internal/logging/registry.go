package logging

import (
	"fmt"

	"github.com/three-db/threedb/internal/buffer"
	"github.com/three-db/threedb/internal/evaluator"
)

// Factory builds a named Logger implementation, replacing the Python
// original's `importlib.import_module(module_path).Logger` with a static
// registry lookup (main.py's `config['logging']['logger_modules']` loop).
type Factory func(rootDir string, buf *buffer.Buffer, eval evaluator.Evaluator, labelMapSrc string) (Logger, error)

var registry = map[string]Factory{}

// RegisterFactory adds a logger factory under name; call from an init() in
// the package defining the logger, mirroring the registry-by-init pattern
// used by control/renderer/evaluator/inference/policy.
func RegisterFactory(name string, factory Factory) { registry[name] = factory }

// Build instantiates the named logger.
func Build(name, rootDir string, buf *buffer.Buffer, eval evaluator.Evaluator, labelMapSrc string) (Logger, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("logging: unknown logger %q", name)
	}
	return factory(rootDir, buf, eval, labelMapSrc)
}
