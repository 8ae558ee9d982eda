package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/simforge/simforge/internal/eventbus"
	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/modelspec"
	"github.com/simforge/simforge/internal/simcontext"
	"github.com/simforge/simforge/internal/telemetry"
	"github.com/simforge/simforge/internal/watchview"
)

type runOptions struct {
	pdb bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run <spec>",
		Short: "Run a simulation spec to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpec(args[0], root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.pdb, "pdb", false, "no-op: Go has no interactive post-mortem debugger equivalent")

	return cmd
}

func runSpec(specPath string, root *rootFlags, _ runOptions) error {
	spec, err := modelspec.Load(specPath)
	if err != nil {
		return err
	}

	level := "info"
	if root.verbose {
		level = "debug"
	}
	logWriter, closeLog, err := logDestination(root.logPath)
	if err != nil {
		return err
	}
	defer closeLog()

	log, err := telemetry.New(telemetry.Options{Writer: logWriter, Level: level, Component: "simulate"})
	if err != nil {
		return err
	}

	var metricsRegistry prometheus.Registerer
	if root.metricsAddr != "" {
		metricsRegistry = prometheus.DefaultRegisterer
		go serveMetrics(root.metricsAddr, log)
	}

	components, err := bundledComponents(spec)
	if err != nil {
		return err
	}

	stepDur, err := spec.StepDuration()
	if err != nil {
		return err
	}

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	outDir := artifactDir(root.outputDir, specPath, timestamp)

	simCtx := simcontext.New(simcontext.Options{
		Start:           spec.Start,
		End:             spec.End,
		GlobalStep:      stepDur,
		Seed:            spec.Seed,
		Components:      components,
		ModelOverrides:  spec.ModelOverrides(),
		Writer:          writeArtifacts,
		OutputDir:       outDir,
		MetricsRegistry: metricsRegistry,
	})

	if !root.watch {
		log.Info("run starting", "spec", specPath, "output", outDir)
		_, err := simCtx.Run(context.Background())
		if err != nil {
			log.Error("run failed", "error", err)
			return err
		}
		log.Info("run complete", "output", outDir)
		return nil
	}

	return runWatched(simCtx, specPath, log)
}

// runWatched subscribes the dashboard to every framework channel before
// starting Run in a goroutine, mirroring cmd/streamy/apply.go's
// interactive tea.Program-in-a-goroutine wiring.
func runWatched(simCtx *simcontext.Context, specPath string, log *telemetry.Logger) error {
	model := watchview.New(specPath)
	program := tea.NewProgram(model)

	phaseChannels := []string{
		eventbus.ChannelPostSetup, eventbus.ChannelTimeStepPrepare, eventbus.ChannelTimeStep,
		eventbus.ChannelTimeStepCleanup, eventbus.ChannelCollectMetrics, eventbus.ChannelSimulationEnd,
	}
	for _, channel := range phaseChannels {
		_, err := simCtx.Events.Subscribe(channel, 9, "watchview", func(ctx context.Context, event eventbus.Event) error {
			program.Send(watchview.PhaseMsg{Phase: event.Phase.String(), Time: event.CurrentTime})
			if event.Phase == lifecycle.CollectMetrics {
				program.Send(watchview.TickMsg{EventTime: event.CurrentTime})
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	var runErr error
	go func() {
		_, runErr = simCtx.Run(context.Background())
		program.Send(watchview.DoneMsg{Err: runErr})
	}()

	if _, err := program.Run(); err != nil {
		return err
	}
	if runErr != nil {
		log.Error("run failed", "error", runErr)
	}
	return runErr
}

func serveMetrics(addr string, log *telemetry.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "error", err)
	}
}

func logDestination(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
