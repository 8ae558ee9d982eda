package simcontext

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/simforge/simforge/internal/clock"
	"github.com/simforge/simforge/internal/configtree"
	"github.com/simforge/simforge/internal/eventbus"
	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/internal/randomness"
	"github.com/simforge/simforge/internal/resourcegraph"
	"github.com/simforge/simforge/internal/results"
	"github.com/simforge/simforge/internal/valuepipeline"
	"github.com/simforge/simforge/pkg/simerrors"
)

// StateWriter is the injected collaborator that persists the two
// Finalization-phase artifacts. The data-artifact file format itself is
// out of scope; the driver only guarantees it is called exactly once,
// with the final state table and every observation's report.
type StateWriter func(dir string, state population.Frame, output map[string]results.Table) error

// Options configures a new Context.
type Options struct {
	Start           time.Time
	End             time.Time
	GlobalStep      time.Duration
	Seed            uint64
	KeyColumns      []string
	Components      []Component
	ModelOverrides  map[string]any
	Writer          StateWriter
	OutputDir       string
	MetricsRegistry prometheus.Registerer // nil disables metrics binding
}

// Context wires managers A-J and the user's component list into the
// single driver.
type Context struct {
	Lifecycle  *lifecycle.Manager
	Config     *configtree.Tree
	Events     *eventbus.Bus
	Randomness *randomness.Manager
	Population *population.Manager
	Graph      *resourcegraph.Graph
	Pipelines  *valuepipeline.Manager
	Results    *results.Manager
	Clock      *clock.Clock

	components      []Component // every component that has run Setup, in activation order
	setupQueue      []Component // sub-components enqueued by a Setup hook, drained FIFO
	stepModifiers   []clock.StepSizeModifier
	modelOverrides  map[string]any
	writer          StateWriter
	outputDir       string
	metricsRegistry prometheus.Registerer

	builder *Builder
}

// New constructs a Context. No work runs until Run is called.
func New(opts Options) *Context {
	lc := lifecycle.NewManager()
	c := &Context{
		Lifecycle:       lc,
		Config:          configtree.New(),
		Events:          eventbus.New(lc),
		Randomness:      randomness.New(randomness.Options{Seed: opts.Seed, KeyColumns: opts.KeyColumns}),
		Population:      population.New(lc),
		Graph:           resourcegraph.New(),
		Pipelines:       valuepipeline.New(lc),
		Results:         results.New(lc),
		Clock:           clock.New(opts.Start, opts.End, opts.GlobalStep),
		components:      append([]Component(nil), opts.Components...),
		modelOverrides:  opts.ModelOverrides,
		writer:          opts.Writer,
		outputDir:       opts.OutputDir,
		metricsRegistry: opts.MetricsRegistry,
	}
	c.builder = newBuilder(c)
	return c
}

// Run executes the six phases below in order, aborting on the first
// error from any phase — no phase is retried.
func (c *Context) Run(ctx context.Context) (map[string]results.Table, error) {
	if err := c.initialize(); err != nil {
		return nil, err
	}
	if err := c.setup(); err != nil {
		return nil, err
	}
	if err := c.postSetup(ctx); err != nil {
		return nil, err
	}
	if err := c.populationInitialization(); err != nil {
		return nil, err
	}
	if err := c.mainLoop(ctx); err != nil {
		return nil, err
	}
	return c.finalization(ctx)
}

// initialize applies every component's configuration defaults and the
// model specification's overrides, then opens the Setup phase.
func (c *Context) initialize() error {
	for _, comp := range c.components {
		if err := c.Config.LoadComponentDefaults(comp.Name(), comp.ConfigurationDefaults()); err != nil {
			return err
		}
	}
	if c.modelOverrides != nil {
		if err := c.Config.LoadModelOverrides(c.modelOverrides); err != nil {
			return err
		}
	}
	return c.Lifecycle.Transition(lifecycle.Setup)
}

// setup runs every component's Setup hook in registration order. A
// component may call builder.Components.Enqueue to register further
// sub-components, which are appended to the back of the processing
// queue.
func (c *Context) setup() error {
	queue := append([]Component(nil), c.components...)
	c.components = c.components[:0]

	for len(queue) > 0 {
		comp := queue[0]
		queue = queue[1:]

		if err := c.Lifecycle.EnterComponent(comp.Name(), func() error {
			return c.Config.LoadComponentDefaults(comp.Name(), comp.ConfigurationDefaults())
		}); err != nil {
			return err
		}

		c.setupQueue = nil
		err := c.Lifecycle.EnterComponent(comp.Name(), func() error {
			return comp.Setup(c.builder)
		})
		if err != nil {
			return err
		}

		if si, ok := comp.(SimulantInitializer); ok {
			init := population.Initializer{
				Name:    comp.Name(),
				Columns: comp.ColumnsCreated(),
				Fn:      si.OnInitializeSimulants,
			}
			if err := c.Population.RegisterInitializer(init); err != nil {
				return err
			}
		}

		c.components = append(c.components, comp)
		queue = append(queue, c.setupQueue...)
		c.setupQueue = nil
	}
	return nil
}

// postSetup freezes the configuration tree and population schema,
// finalizes the resource graph into a deterministic topological order,
// derives the initializer run order from it, and emits the post-setup
// framework event.
func (c *Context) postSetup(ctx context.Context) error {
	c.Config.Freeze()
	c.Population.FreezeSchema()

	if err := c.validateRequiredColumns(); err != nil {
		return err
	}

	order, err := c.Graph.Finalize()
	if err != nil {
		return err
	}
	c.Population.SetInitializerOrder(initializerOrder(order, c.Population.Initializers()))

	if err := c.Lifecycle.Transition(lifecycle.PostSetup); err != nil {
		return err
	}

	if err := c.Events.EmitFramework(ctx, eventbus.ChannelPostSetup, eventbus.Event{
		Phase: lifecycle.PostSetup, CurrentTime: c.Clock.ClockTime(),
	}); err != nil {
		return err
	}

	for _, comp := range c.components {
		hook, ok := comp.(PostSetupHook)
		if !ok {
			continue
		}
		if err := c.Lifecycle.EnterComponent(comp.Name(), func() error {
			return hook.OnPostSetup(c.builder)
		}); err != nil {
			return err
		}
	}

	if c.metricsRegistry != nil {
		if err := c.Results.BindMetrics(c.metricsRegistry); err != nil {
			return err
		}
	}

	return nil
}

// validateRequiredColumns checks every component's ColumnsRequired
// against the (now frozen) population schema, after every component has
// had a chance to declare its own columns during Setup.
func (c *Context) validateRequiredColumns() error {
	schema := c.Population.Schema()
	for _, comp := range c.components {
		for _, col := range comp.ColumnsRequired() {
			if _, ok := schema.Get(col); !ok {
				return simerrors.NewComponentContractError(comp.Name(),
					"requires column \""+col+"\" but no component declared it", nil)
			}
		}
	}
	return nil
}

// initializerOrder maps the resource graph's topological column order
// onto initializer names: each initializer's rank is the earliest
// position among the columns it creates. Initializers whose columns are
// absent from the graph (declared outside DeclareColumn's graph
// registration) sort last, in name order, for determinism.
func initializerOrder(resourceOrder []resourcegraph.Resource, initializers map[string]population.Initializer) []string {
	columnPosition := make(map[string]int, len(resourceOrder))
	for i, r := range resourceOrder {
		if r.Kind == resourcegraph.Column {
			columnPosition[r.Name] = i
		}
	}

	type ranked struct {
		name string
		rank int
	}
	ranks := make([]ranked, 0, len(initializers))
	for name, init := range initializers {
		rank := len(resourceOrder)
		for _, col := range init.Columns {
			if pos, ok := columnPosition[col]; ok && pos < rank {
				rank = pos
			}
		}
		ranks = append(ranks, ranked{name: name, rank: rank})
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].rank != ranks[j].rank {
			return ranks[i].rank < ranks[j].rank
		}
		return ranks[i].name < ranks[j].name
	})

	names := make([]string, len(ranks))
	for i, r := range ranks {
		names[i] = r.name
	}
	return names
}

// populationInitialization creates the initial population, running every
// registered initializer in topological order.
func (c *Context) populationInitialization() error {
	if err := c.Lifecycle.Transition(lifecycle.PopulationInitialization); err != nil {
		return err
	}

	n, err := c.Config.GetInt("population.size")
	if err != nil {
		return simerrors.NewConfigurationError("population.size", simerrors.ConfigurationMissing,
			"no component declared a population.size default", err)
	}
	if n <= 0 {
		return nil
	}

	_, err = c.Population.CreateSimulants(n, nil, c.Clock.ClockTime())
	return err
}

// mainLoop emits the four sub-phase channels in order for every tick
// until the clock is done, advancing the clock by the minimum across
// every registered step-size modifier.
func (c *Context) mainLoop(ctx context.Context) error {
	phases := []struct {
		phase   lifecycle.Phase
		channel string
		gather  bool
	}{
		{lifecycle.TimeStepPrepare, eventbus.ChannelTimeStepPrepare, true},
		{lifecycle.TimeStep, eventbus.ChannelTimeStep, true},
		{lifecycle.TimeStepCleanup, eventbus.ChannelTimeStepCleanup, true},
		{lifecycle.CollectMetrics, eventbus.ChannelCollectMetrics, true},
	}

	allColumns := c.Population.Schema().Names()

	for !c.Clock.Done() {
		view, err := c.Population.GetView(allColumns, nil, nil)
		if err != nil {
			return err
		}
		_, step, scheduled := c.Clock.Advance(view, c.stepModifiers)

		for _, p := range phases {
			if err := c.Lifecycle.Transition(p.phase); err != nil {
				return err
			}

			if err := c.Events.EmitFramework(ctx, p.channel, eventbus.Event{
				Phase: p.phase, CurrentTime: c.Clock.ClockTime(), NextStep: step,
				Index: scheduled,
			}); err != nil {
				return err
			}

			for _, comp := range c.components {
				if err := c.dispatchHook(comp, p.phase); err != nil {
					return err
				}
			}

			if p.gather {
				full, err := view.Get(view.Index())
				if err != nil {
					return err
				}
				if err := c.Results.Gather(ctx, p.phase, full); err != nil {
					return err
				}
			}

			if p.phase == lifecycle.CollectMetrics && c.metricsRegistry != nil {
				c.Results.RefreshMetrics()
			}
		}
	}
	return nil
}

func (c *Context) dispatchHook(comp Component, phase lifecycle.Phase) error {
	var hook func() error
	switch phase {
	case lifecycle.TimeStepPrepare:
		if h, ok := comp.(TimeStepPrepareHook); ok {
			hook = func() error { return h.OnTimeStepPrepare(c.builder) }
		}
	case lifecycle.TimeStep:
		if h, ok := comp.(TimeStepHook); ok {
			hook = func() error { return h.OnTimeStep(c.builder) }
		}
	case lifecycle.TimeStepCleanup:
		if h, ok := comp.(TimeStepCleanupHook); ok {
			hook = func() error { return h.OnTimeStepCleanup(c.builder) }
		}
	case lifecycle.CollectMetrics:
		if h, ok := comp.(CollectMetricsHook); ok {
			hook = func() error { return h.OnCollectMetrics(c.builder) }
		}
	}
	if hook == nil {
		return nil
	}
	return c.Lifecycle.EnterComponent(comp.Name(), hook)
}

// finalization emits the simulation-end framework event, runs every
// component's SimulationEndHook, formats the final report, and hands the
// two output artifacts off to the injected writer.
func (c *Context) finalization(ctx context.Context) (map[string]results.Table, error) {
	if err := c.Lifecycle.Transition(lifecycle.SimulationEnd); err != nil {
		return nil, err
	}

	if err := c.Events.EmitFramework(ctx, eventbus.ChannelSimulationEnd, eventbus.Event{
		Phase: lifecycle.SimulationEnd, CurrentTime: c.Clock.ClockTime(),
	}); err != nil {
		return nil, err
	}

	for _, comp := range c.components {
		hook, ok := comp.(SimulationEndHook)
		if !ok {
			continue
		}
		if err := c.Lifecycle.EnterComponent(comp.Name(), func() error {
			return hook.OnSimulationEnd(c.builder)
		}); err != nil {
			return nil, err
		}
	}

	if err := c.Lifecycle.Transition(lifecycle.Report); err != nil {
		return nil, err
	}

	report, err := c.Results.Report()
	if err != nil {
		return nil, err
	}

	if c.writer != nil {
		allColumns := c.Population.Schema().Names()
		view, err := c.Population.GetView(allColumns, nil, nil)
		if err != nil {
			return nil, err
		}
		finalState, err := view.Get(view.Index())
		if err != nil {
			return nil, err
		}
		if err := c.writer(c.outputDir, finalState, report); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// Close tears down the context in reverse-dependency order: results
// flush, observations drop, event bus drop, managers drop, state table
// drop.
func (c *Context) Close(resultsPath string) error {
	if resultsPath != "" {
		if err := c.Results.Save(resultsPath); err != nil {
			return err
		}
	}
	c.Results = nil
	c.Events = nil
	c.Pipelines = nil
	c.Randomness = nil
	c.Graph = nil
	c.Population = nil
	return nil
}
