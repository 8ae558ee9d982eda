package main

import (
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

func newProfileCmd(root *rootFlags) *cobra.Command {
	var profilePath string

	cmd := &cobra.Command{
		Use:   "profile <spec>",
		Short: "Run a simulation spec under runtime/pprof CPU sampling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(profilePath)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := pprof.StartCPUProfile(f); err != nil {
				return err
			}
			defer pprof.StopCPUProfile()

			return runSpec(args[0], root, runOptions{})
		},
	}

	cmd.Flags().StringVar(&profilePath, "profile-out", "cpu.prof", "path to write the CPU profile")

	return cmd
}
