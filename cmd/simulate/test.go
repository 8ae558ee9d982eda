package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/simforge/simforge/internal/examples/mortality"
	"github.com/simforge/simforge/internal/simcontext"
	"github.com/simforge/simforge/internal/telemetry"
)

// newTestCmd is a zero-argument smoke test, exit 0 on success. It runs
// the bundled constant-hazard mortality model over a small population
// for a short horizon.
func newTestCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Run the bundled smoke simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmokeTest(root)
		},
	}
}

func runSmokeTest(root *rootFlags) error {
	level := "info"
	if root.verbose {
		level = "debug"
	}
	log, err := telemetry.New(telemetry.Options{Level: level, Component: "simulate-test"})
	if err != nil {
		return err
	}

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)

	simCtx := simcontext.New(simcontext.Options{
		Start:      start,
		End:        end,
		GlobalStep: 24 * time.Hour,
		Seed:       0,
		Components: []simcontext.Component{mortality.New(24.0 / 24 / 365.25)},
		ModelOverrides: map[string]any{
			"population": map[string]any{"size": 1000},
		},
	})

	report, err := simCtx.Run(context.Background())
	if err != nil {
		log.Error("smoke test failed", "error", err)
		return err
	}

	deaths := report["deaths"]
	fmt.Printf("smoke test ok: %d rows in deaths observation\n", len(deaths.Rows))
	log.Info("smoke test passed")
	return nil
}
