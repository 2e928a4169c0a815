// Package config decodes an experiment's YAML configuration file, matching
// original_source/threedb/main.py's load_config and the shape of the
// top-level dict it returns (policy/controls/inference/evaluation/logging/
// render_args). Field validation follows the teacher's config/types.go
// style: a single Validate method with a switch over fmt.Errorf-wrapped
// conditions, rather than scattering checks across constructors.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// NamedSpec is a registry lookup plus its constructor arguments, used for
// the policy section (main.py's `config['policy']['name']`).
type NamedSpec struct {
	Name string                 `yaml:"name"`
	Args map[string]interface{} `yaml:"args,omitempty"`
}

// ControlSpec names one pre/post-process control and its constructor
// arguments, matching a single entry of main.py's `config['controls']` list
// before it gets folded into the by-name `controls_args` dict.
type ControlSpec struct {
	Name string                 `yaml:"name"`
	Args map[string]interface{} `yaml:"args,omitempty"`
}

// InferenceSpec describes the model under test, matching client.py's
// `infos['inference']` dict (`module`/`args` select the registry entry;
// `output_shape` is the prediction tensor shape every evaluator's
// ToTensor call must produce).
type InferenceSpec struct {
	Module      string                 `yaml:"module"`
	Args        map[string]interface{} `yaml:"args,omitempty"`
	OutputShape []int                  `yaml:"output_shape"`
}

// EvaluationSpec selects and configures the evaluator, matching
// `infos['evaluation_args']`.
type EvaluationSpec struct {
	Module string                 `yaml:"module"`
	Args   map[string]interface{} `yaml:"args,omitempty"`
}

// LoggingSpec lists the loggers to register with the logging Manager,
// matching `config['logging']['logger_modules']`; ClassMap is the
// supplemented passthrough to JSONLogger's class_maps.json copy.
type LoggingSpec struct {
	LoggerModules []string `yaml:"logger_modules"`
	ClassMap      string   `yaml:"class_map,omitempty"`
}

// Config is the fully-resolved experiment configuration, after any
// base_config inheritance chain has been merged.
type Config struct {
	BaseConfig string                 `yaml:"base_config,omitempty"`
	Policy     NamedSpec              `yaml:"policy"`
	Controls   []ControlSpec          `yaml:"controls"`
	Inference  InferenceSpec          `yaml:"inference"`
	Evaluation EvaluationSpec         `yaml:"evaluation"`
	Logging    LoggingSpec            `yaml:"logging"`
	RenderArgs map[string]interface{} `yaml:"render_args,omitempty"`
}

// defaultRenderArgs mirrors main.py's DEFAULT_RENDER_ARGS, merged under
// whatever the config file supplies so a config only needs to override the
// fields it cares about.
func defaultRenderArgs() map[string]interface{} {
	return map[string]interface{}{
		"engine":            "fake",
		"resolution":        256,
		"samples":           256,
		"with_uv":           false,
		"with_depth":        false,
		"with_segmentation": false,
		"max_depth":         10,
	}
}

// Load reads and decodes the YAML file at path, resolving any base_config
// inheritance chain the way load_config does: the base is loaded first and
// then shallow-overwritten, key by key, by the child (`base_config.update
// (config)` in the original; here each of the typed sections the child sets
// wins outright, matching the dict-level granularity of `update`).
func Load(path string) (*Config, error) {
	cfg, err := load(path, map[string]bool{})
	if err != nil {
		return nil, err
	}
	cfg.RenderArgs = mergeRenderArgs(cfg.RenderArgs)
	return cfg, nil
}

func load(path string, seen map[string]bool) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolving %q: %w", path, err)
	}
	if seen[abs] {
		return nil, fmt.Errorf("config: base_config cycle detected at %q", abs)
	}
	seen[abs] = true

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", abs, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", abs, err)
	}

	if cfg.BaseConfig == "" {
		return &cfg, nil
	}

	baseCfg, err := load(filepath.Join(filepath.Dir(abs), cfg.BaseConfig), seen)
	if err != nil {
		return nil, err
	}
	return merge(baseCfg, &cfg), nil
}

// merge overlays child onto base at the section level, matching the
// original's `base_config.update(config)` semantics: any section the child
// set explicitly replaces the base's version of that section wholesale.
func merge(base, child *Config) *Config {
	merged := *base
	if child.Policy.Name != "" {
		merged.Policy = child.Policy
	}
	if child.Controls != nil {
		merged.Controls = child.Controls
	}
	if child.Inference.Module != "" {
		merged.Inference = child.Inference
	}
	if child.Evaluation.Module != "" {
		merged.Evaluation = child.Evaluation
	}
	if child.Logging.LoggerModules != nil {
		merged.Logging = child.Logging
	}
	if child.RenderArgs != nil {
		merged.RenderArgs = child.RenderArgs
	}
	merged.BaseConfig = ""
	return &merged
}

func mergeRenderArgs(override map[string]interface{}) map[string]interface{} {
	merged := defaultRenderArgs()
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// Validate checks that every section main.py asserts the presence of
// (`assert 'policy' in config`, etc.) is actually populated, surfacing one
// error per missing/malformed section rather than the original's bare
// AssertionError.
func (c *Config) Validate() error {
	switch {
	case c.Policy.Name == "":
		return fmt.Errorf("config: missing policy.name")
	case c.Inference.Module == "":
		return fmt.Errorf("config: missing inference.module")
	case len(c.Inference.OutputShape) == 0:
		return fmt.Errorf("config: missing inference.output_shape")
	case c.Evaluation.Module == "":
		return fmt.Errorf("config: missing evaluation.module")
	case len(c.Logging.LoggerModules) == 0:
		return fmt.Errorf("config: logging.logger_modules must list at least one logger")
	}
	for i, ctrl := range c.Controls {
		if ctrl.Name == "" {
			return fmt.Errorf("config: controls[%d] is missing a name", i)
		}
	}
	return nil
}
