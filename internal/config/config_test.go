package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	return p
}

func TestLoadSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "exp.yaml", `
policy:
  name: GridSearchPolicy
  args:
    resolution: 5
controls:
  - name: Camera
    args:
      distance: [1, 2]
inference:
  module: fake
  output_shape: [1000]
evaluation:
  module: classification
logging:
  logger_modules: [json]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "GridSearchPolicy", cfg.Policy.Name)
	require.Equal(t, "Camera", cfg.Controls[0].Name)
	require.Equal(t, "fake", cfg.RenderArgs["engine"]) // default merged in
	require.Equal(t, 256, cfg.RenderArgs["resolution"])
}

func TestLoadResolvesBaseConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
policy:
  name: GridSearchPolicy
inference:
  module: fake
  output_shape: [1000]
evaluation:
  module: classification
logging:
  logger_modules: [json]
render_args:
  resolution: 128
`)
	childPath := writeFile(t, dir, "child.yaml", `
base_config: base.yaml
render_args:
  resolution: 512
`)

	cfg, err := Load(childPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assertEqual := require.New(t)
	assertEqual.Equal("GridSearchPolicy", cfg.Policy.Name)
	assertEqual.Equal(512, cfg.RenderArgs["resolution"])
}

func TestLoadDetectsBaseConfigCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "base_config: b.yaml\n")
	writeFile(t, dir, "b.yaml", "base_config: a.yaml\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
}

func TestValidateRequiresSections(t *testing.T) {
	var cfg Config
	require.Error(t, cfg.Validate())

	cfg.Policy.Name = "GridSearchPolicy"
	require.Error(t, cfg.Validate())

	cfg.Inference = InferenceSpec{Module: "fake", OutputShape: []int{10}}
	require.Error(t, cfg.Validate())

	cfg.Evaluation = EvaluationSpec{Module: "classification"}
	require.Error(t, cfg.Validate())

	cfg.Logging = LoggingSpec{LoggerModules: []string{"json"}}
	require.NoError(t, cfg.Validate())
}
