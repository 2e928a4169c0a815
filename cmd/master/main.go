// Command master runs the 3DB scheduler process: it loads an experiment
// config, enumerates models and environments, builds one policy controller
// per (environment, model) pair, and serves worker requests until every
// controller's search has completed, grounded on
// original_source/threedb/main.py's `__main__` block.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/three-db/threedb/internal/buffer"
	"github.com/three-db/threedb/internal/config"
	"github.com/three-db/threedb/internal/control"
	"github.com/three-db/threedb/internal/controller"
	"github.com/three-db/threedb/internal/evaluator"
	"github.com/three-db/threedb/internal/logging"
	"github.com/three-db/threedb/internal/logx"
	"github.com/three-db/threedb/internal/metrics"
	"github.com/three-db/threedb/internal/policy"
	"github.com/three-db/threedb/internal/renderer"
	"github.com/three-db/threedb/internal/scheduler"
	"github.com/three-db/threedb/internal/search"

	_ "github.com/three-db/threedb/internal/inference"
)

// bufferCapacity matches spec.md's "default N≈1000" result buffer sizing.
const bufferCapacity = 1000

func main() {
	cmd := rootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var singleModel bool
	var maxConcurrentPolicies int
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "master root_folder config_file output_dir port",
		Short: "Run the 3DB scheduler",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			logx.Init("master")
			return run(args[0], args[1], args[2], args[3], singleModel, maxConcurrentPolicies, metricsAddr)
		},
	}
	cmd.Flags().BoolVar(&singleModel, "single-model", false,
		"If given, only do one model and one environment (for debugging)")
	cmd.Flags().IntVarP(&maxConcurrentPolicies, "max-concurrent-policies", "m", 10,
		"Maximum number of concurrent policies, can keep memory under control")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090",
		"Address to serve Prometheus metrics on")
	return cmd
}

func run(rootFolder, configFile, outputDir, portArg string, singleModel bool, maxConcurrentPolicies int, metricsAddr string) error {
	log := logx.New(logx.Scheduler)

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Info("loaded config", "policy", cfg.Policy.Name, "controls", len(cfg.Controls))

	port, err := parsePort(portArg)
	if err != nil {
		return err
	}

	engineName, _ := cfg.RenderArgs["engine"].(string)
	engine, err := renderer.Build(engineName, rootFolder, cfg.RenderArgs)
	if err != nil {
		return fmt.Errorf("master: building renderer for enumeration: %w", err)
	}
	allEnvs, err := engine.EnumerateEnvironments(rootFolder)
	if err != nil {
		return fmt.Errorf("master: enumerating environments: %w", err)
	}
	allModels, err := engine.EnumerateModels(rootFolder)
	if err != nil {
		return fmt.Errorf("master: enumerating models: %w", err)
	}

	controls := make([]control.Dims, 0, len(cfg.Controls))
	controlsArgs := make(map[string]map[string]interface{}, len(cfg.Controls))
	for _, spec := range cfg.Controls {
		c, err := control.Build(spec.Name, rootFolder, spec.Args)
		if err != nil {
			return fmt.Errorf("master: building control %q: %w", spec.Name, err)
		}
		controls = append(controls, c)
		controlsArgs[spec.Name] = spec.Args
	}
	space := search.New(controls)
	continuousDim, discreteSizes := space.Description()

	buf := buffer.New(bufferCapacity)
	logMgr := logging.NewManager()

	ev, err := evaluator.Build(cfg.Evaluation.Module, rootFolder, cfg.Evaluation.Args)
	if err != nil {
		return fmt.Errorf("master: building evaluator: %w", err)
	}
	for _, loggerName := range cfg.Logging.LoggerModules {
		l, err := logging.Build(loggerName, outputDir, buf, ev, cfg.Logging.ClassMap)
		if err != nil {
			return fmt.Errorf("master: building logger %q: %w", loggerName, err)
		}
		logMgr.Register(l)
	}

	controllers, err := buildControllers(allEnvs, allModels, space, cfg, continuousDim, discreteSizes, buf, logMgr, singleModel)
	if err != nil {
		return err
	}

	info := scheduler.Info{
		RenderArgs:    cfg.RenderArgs,
		InferenceArgs: inferenceInfo(cfg),
		ControlsArgs:  controlsArgs,
		EvaluationArgs: map[string]interface{}{
			"module": cfg.Evaluation.Module,
			"args":   cfg.Evaluation.Args,
		},
	}

	sched, err := scheduler.New(port, maxConcurrentPolicies, allEnvs, allModels, info, controllers, buf, logMgr)
	if err != nil {
		return err
	}
	defer sched.Close()

	go serveMetrics(metricsAddr)

	log.Info("starting scheduler", "port", port, "environments", len(allEnvs), "models", len(allModels), "policies", len(controllers))
	return sched.Run()
}

// buildControllers constructs one PolicyController per (environment, model)
// pair. Every controller shares a single buffer registrant id: main.py
// registers exactly one "policy" consumer up front (`policy_regid = 1`) and
// every PolicyController frees results through that same id
// (policy_controller.py's `free(result_ix, 1)`), rather than each controller
// claiming its own bit. Registering per-controller would burn through
// MaxRegistrants after only a handful of (environment, model) pairs, which
// defeats the combinatorial sweep this framework exists to run.
func buildControllers(envs, models []string, space *search.Space, cfg *config.Config, continuousDim int, discreteSizes []int, buf *buffer.Buffer, logMgr *logging.Manager, singleModel bool) ([]*controller.Controller, error) {
	policyArgs := make(map[string]interface{}, len(cfg.Policy.Args))
	for k, v := range cfg.Policy.Args {
		policyArgs[k] = v
	}

	regID, err := buf.Register()
	if err != nil {
		return nil, fmt.Errorf("master: registering policy controllers with buffer: %w", err)
	}

	var controllers []*controller.Controller
	for _, env := range envs {
		for _, model := range models {
			pol, err := policy.Build(cfg.Policy.Name, continuousDim, discreteSizes, policyArgs)
			if err != nil {
				return nil, fmt.Errorf("master: building policy for %s/%s: %w", env, model, err)
			}
			controllers = append(controllers, controller.New(env, model, space, pol, logMgr, buf, regID))
			if singleModel {
				return controllers, nil
			}
		}
	}
	return controllers, nil
}

// inferenceInfo bundles the inference section the way client.py expects to
// find it under `infos['inference']`: module/args plus output_shape.
func inferenceInfo(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"module":       cfg.Inference.Module,
		"args":         cfg.Inference.Args,
		"output_shape": cfg.Inference.OutputShape,
	}
}

func parsePort(arg string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(arg, "%d", &port); err != nil || port <= 0 {
		return 0, fmt.Errorf("master: invalid port %q", arg)
	}
	return port, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logx.New(logx.Scheduler).Error("metrics server stopped", "err", err)
	}
}
