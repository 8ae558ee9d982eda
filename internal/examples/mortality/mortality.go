// Package mortality bundles a minimal smoke-test domain component,
// exercising population columns, a rescaled value pipeline, Common
// Random Numbers draws, and an unstratified adding observation end to end.
// It is the component `simulate test` runs.
package mortality

import (
	"context"
	"strconv"

	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/internal/results"
	"github.com/simforge/simforge/internal/simcontext"
	"github.com/simforge/simforge/internal/valuepipeline"
)

const (
	columnAlive  = "alive"
	columnDied   = "died_this_step"
	pipelineRate = "mortality.rate"
	streamDraw   = "mortality.draw"
	observation  = "deaths"
)

// Component implements simcontext.Component plus the SimulantInitializer
// and TimeStepHook capability interfaces.
type Component struct {
	globalStepYears float64
}

// New constructs a mortality Component. globalStepYears converts the
// clock's per-tick step into the fraction of a year the annual rate
// pipeline rescales against (e.g. 1/365 for a daily step).
func New(globalStepYears float64) *Component {
	return &Component{globalStepYears: globalStepYears}
}

func (c *Component) Name() string { return "mortality" }

func (c *Component) ConfigurationDefaults() map[string]any {
	return map[string]any{
		"mortality": map[string]any{
			"annual_rate": 0.01,
		},
	}
}

func (c *Component) ColumnsCreated() []string  { return []string{columnAlive, columnDied} }
func (c *Component) ColumnsRequired() []string { return nil }

func (c *Component) Setup(b *simcontext.Builder) error {
	if err := b.Population.DeclareColumn(columnAlive, population.ColumnSpec{Type: population.Bool, Owner: c.Name()}, nil); err != nil {
		return err
	}
	if err := b.Population.DeclareColumn(columnDied, population.ColumnSpec{Type: population.Bool, Owner: c.Name()}, nil); err != nil {
		return err
	}

	if err := b.Randomness.DeclareStream(streamDraw, c.Name(), nil); err != nil {
		return err
	}

	if _, err := b.Value.Declare(pipelineRate, c.Name(), nil); err != nil {
		return err
	}
	if err := b.Value.SetSource(pipelineRate, c.source(b)); err != nil {
		return err
	}
	if err := b.Value.SetCombinerAndPostProcessor(pipelineRate, valuepipeline.ReplaceCombiner,
		valuepipeline.PostProcessor{Kind: valuepipeline.Rescale, Formula: valuepipeline.Exponential}); err != nil {
		return err
	}

	return b.Results.RegisterObservation(results.NewAddingObservation(observation, lifecycle.CollectMetrics, columnDied, nil, nil,
		func(f population.Frame) (population.Frame, error) {
			out := population.NewFrame(nil)
			count := 0.0
			for _, died := range f.Bool[columnDied] {
				if died {
					count++
				}
			}
			out.Float64[columnDied] = []float64{count}
			return out, nil
		}))
}

// source reads the annual_rate configuration leaf and emits it alongside
// the configured step-years constant for every requested simulant, ready
// for the pipeline's Rescale post-processor.
func (c *Component) source(b *simcontext.Builder) valuepipeline.Source {
	return func(ctx context.Context, idx []population.SimulantID, args ...population.Frame) (population.Frame, error) {
		rate, err := b.Configuration.GetFloat("mortality.annual_rate")
		if err != nil {
			return population.Frame{}, err
		}
		out := population.NewFrame(idx)
		rates := make([]float64, len(idx))
		steps := make([]float64, len(idx))
		for i := range idx {
			rates[i] = rate
			steps[i] = c.globalStepYears
		}
		out.Float64["rate"] = rates
		out.Float64["step_years"] = steps
		return out, nil
	}
}

func (c *Component) OnInitializeSimulants(data population.SimulantData) (population.Frame, error) {
	out := population.NewFrame(data.Index)
	alive := make([]bool, len(data.Index))
	died := make([]bool, len(data.Index))
	for i := range alive {
		alive[i] = true
	}
	out.Bool[columnAlive] = alive
	out.Bool[columnDied] = died
	return out, nil
}

// OnTimeStepPrepare clears last tick's death flag before this tick's
// mortality draw runs, so the CollectMetrics gather at the end of the
// tick only ever sees deaths from the tick just completed.
func (c *Component) OnTimeStepPrepare(b *simcontext.Builder) error {
	view, err := b.Population.GetView([]string{columnDied}, []string{columnDied}, nil)
	if err != nil {
		return err
	}
	idx := view.Index()
	update := population.NewFrame(idx)
	update.Bool[columnDied] = make([]bool, len(idx))
	return view.Update(update)
}

// OnTimeStep draws a uniform random number per living simulant, keyed by
// the Common Random Numbers stream, and marks it dead this step when the
// draw falls under the rescaled per-step mortality probability.
func (c *Component) OnTimeStep(b *simcontext.Builder) error {
	view, err := b.Population.GetView([]string{columnAlive}, []string{columnAlive, columnDied}, nil)
	if err != nil {
		return err
	}

	full := view.Index()
	if len(full) == 0 {
		return nil
	}
	frame, err := view.Get(full)
	if err != nil {
		return err
	}

	var aliveIdx []population.SimulantID
	for i, id := range full {
		if frame.Bool[columnAlive][i] {
			aliveIdx = append(aliveIdx, id)
		}
	}
	if len(aliveIdx) == 0 {
		return nil
	}

	for _, id := range aliveIdx {
		if err := b.Randomness.Register(id, []string{strconv.FormatUint(id, 10)}); err != nil {
			return err
		}
	}

	probabilities, err := b.Value.Call(context.Background(), pipelineRate, aliveIdx)
	if err != nil {
		return err
	}

	stream := b.Randomness.Stream(streamDraw)
	alive := make([]bool, len(aliveIdx))
	died := make([]bool, len(aliveIdx))
	for i, id := range aliveIdx {
		draw, err := stream.Draw(id, "")
		if err != nil {
			return err
		}
		if draw < probabilities.Float64["rate"][i] {
			alive[i] = false
			died[i] = true
		} else {
			alive[i] = true
		}
	}

	update := population.NewFrame(aliveIdx)
	update.Bool[columnAlive] = alive
	update.Bool[columnDied] = died
	return view.Update(update)
}
