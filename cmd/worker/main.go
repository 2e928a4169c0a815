// Command worker runs one 3DB render worker process: it connects to a
// scheduler, declares its output schema, then repeatedly pulls and renders
// jobs until told to shut down, grounded on
// original_source/threedb/client.py's `__main__` block.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/three-db/threedb/internal/logx"
	"github.com/three-db/threedb/internal/workerloop"

	_ "github.com/three-db/threedb/internal/control"
	_ "github.com/three-db/threedb/internal/evaluator"
	_ "github.com/three-db/threedb/internal/inference"
	_ "github.com/three-db/threedb/internal/renderer"
)

func main() {
	cmd := rootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts workerloop.Options

	cmd := &cobra.Command{
		Use:   "worker root_folder",
		Short: "Run a 3DB render worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logx.Init("worker")
			opts.RootFolder = args[0]
			return run(opts)
		},
	}
	cmd.Flags().StringVarP(&opts.MasterAddress, "master-address", "a", "localhost:5555",
		"How to contact the master node")
	cmd.Flags().IntVar(&opts.GPUID, "gpu-id", -1, "The GPU to use to render (-1 for cpu)")
	cmd.Flags().IntVar(&opts.CPUCores, "cpu-cores", 0, "Number of CPU cores to use (0 uses all)")
	cmd.Flags().IntVar(&opts.TileSize, "tile-size", 32, "The size of tiles used for GPU rendering")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 1, "How many tasks to ask for in a batch")
	cmd.Flags().BoolVar(&opts.FakeResults, "fake-results", false,
		"Always return the same result regardless of the parameters; useful to debug and produce data quickly")
	return cmd
}

func run(opts workerloop.Options) error {
	log := logx.New(logx.Worker)

	w, err := workerloop.Dial(opts)
	if err != nil {
		return err
	}
	defer w.Close()

	log.Info("connected to master", "address", opts.MasterAddress)
	return w.Run()
}
