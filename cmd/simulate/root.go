package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	verbose     bool
	logPath     string
	metricsAddr string
	watch       bool
	outputDir   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "simulate",
		Short:         "Run discrete-event, agent-based simulations built from simforge components",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug-level logging")
	cmd.PersistentFlags().StringVar(&flags.logPath, "log", "", "write structured logs to this file instead of stderr")
	cmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address")
	cmd.PersistentFlags().BoolVar(&flags.watch, "watch", false, "launch the live bubbletea progress dashboard")
	cmd.PersistentFlags().StringVarP(&flags.outputDir, "output", "o", "results", "directory results are written under")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newTestCmd(flags))
	cmd.AddCommand(newProfileCmd(flags))

	return cmd
}
