// Command interactive-eval serves and inspects interactive video object
// segmentation evaluations.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/interactive.eval/internal/config"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
)

// app holds the state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool
	trace      bool
	cfg        *config.EvalConfig
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr}
	root := &cobra.Command{
		Use:           "interactive-eval",
		Short:         "Interactive video object segmentation evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			w := monitoring.LogWriters{Ops: a.stderr}
			if a.verbose {
				w.Diag = a.stderr
			}
			if a.trace {
				w.Trace = a.stderr
			}
			monitoring.SetLogWriters(w)

			if a.configPath == "" {
				a.cfg = config.DefaultEvalConfig()
				return nil
			}
			cfg, err := config.LoadEvalConfig(a.configPath)
			if err != nil {
				return fmt.Errorf("%w: %w", fault.ErrSetup, err)
			}
			a.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			monitoring.Sync()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "evaluation config file (.json)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log per-interaction diagnostics")
	root.PersistentFlags().BoolVar(&a.trace, "trace", false, "log robot pipeline detail")

	root.AddCommand(
		newServeCmd(a),
		newCheckCmd(a),
		newSummarizeCmd(a),
		newRenderCmd(a),
		newVersionCmd(),
	)
	return root
}

// exitCode maps a fault kind to the process status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, fault.ErrUsage), errors.Is(err, fault.ErrInvalidInput):
		return 2
	case errors.Is(err, fault.ErrSetup):
		return 3
	default:
		return 1
	}
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
