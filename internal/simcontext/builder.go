package simcontext

import (
	"context"
	"time"

	"github.com/simforge/simforge/internal/clock"
	"github.com/simforge/simforge/internal/configtree"
	"github.com/simforge/simforge/internal/eventbus"
	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/lookup"
	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/internal/randomness"
	"github.com/simforge/simforge/internal/resourcegraph"
	"github.com/simforge/simforge/internal/results"
	"github.com/simforge/simforge/internal/valuepipeline"
)

// SimulantData is handed to a SimulantInitializer for the batch of rows
// it must populate; it mirrors population.SimulantData.
type SimulantData = population.SimulantData

// Builder is the namespaced facade every component's hooks receive. Most
// namespaces wrap one manager and leave phase legality to that manager's
// own Guard call; LookupNamespace.Register and
// RandomnessNamespace.DeclareStream call Guard here. The Configuration,
// Event, Time and Components namespaces and RandomnessNamespace's
// Register and Stream methods perform no phase check.
type Builder struct {
	Configuration *ConfigurationNamespace
	Lookup        *LookupNamespace
	Value         *ValueNamespace
	Event         *EventNamespace
	Population    *PopulationNamespace
	Randomness    *RandomnessNamespace
	Time          *TimeNamespace
	Components    *ComponentsNamespace
	Results       *ResultsNamespace
	Lifecycle     *LifecycleNamespace
}

func newBuilder(ctx *Context) *Builder {
	return &Builder{
		Configuration: &ConfigurationNamespace{tree: ctx.Config},
		Lookup:        &LookupNamespace{graph: ctx.Graph, lifecycle: ctx.Lifecycle},
		Value:         &ValueNamespace{pipelines: ctx.Pipelines, graph: ctx.Graph},
		Event:         &EventNamespace{bus: ctx.Events},
		Population:    &PopulationNamespace{pop: ctx.Population, graph: ctx.Graph, clock: ctx.Clock},
		Randomness:    &RandomnessNamespace{rand: ctx.Randomness, graph: ctx.Graph, lifecycle: ctx.Lifecycle},
		Time:          &TimeNamespace{clock: ctx.Clock, ctx: ctx},
		Components:    &ComponentsNamespace{ctx: ctx},
		Results:       &ResultsNamespace{results: ctx.Results},
		Lifecycle:     &LifecycleNamespace{lifecycle: ctx.Lifecycle},
	}
}

// ConfigurationNamespace wraps configtree.Tree.
type ConfigurationNamespace struct {
	tree *configtree.Tree
}

func (c *ConfigurationNamespace) GetString(key string) (string, error)        { return c.tree.GetString(key) }
func (c *ConfigurationNamespace) GetInt(key string) (int, error)              { return c.tree.GetInt(key) }
func (c *ConfigurationNamespace) GetFloat(key string) (float64, error)        { return c.tree.GetFloat(key) }
func (c *ConfigurationNamespace) GetBool(key string) (bool, error)            { return c.tree.GetBool(key) }
func (c *ConfigurationNamespace) GetStringSlice(key string) ([]string, error) { return c.tree.GetStringSlice(key) }
func (c *ConfigurationNamespace) GetStringMap(key string) (map[string]any, error) {
	return c.tree.GetStringMap(key)
}
func (c *ConfigurationNamespace) Decode(prefix string, dst any) error { return c.tree.Decode(prefix, dst) }
func (c *ConfigurationNamespace) Repr(key string) []configtree.Source { return c.tree.Repr(key) }
func (c *ConfigurationNamespace) SetRuntimeOverride(key string, value any) error {
	return c.tree.SetRuntimeOverride(key, value)
}

// LookupNamespace registers lookup.Table instances against the resource
// graph under the Stream resource kind.
type LookupNamespace struct {
	graph     *resourcegraph.Graph
	lifecycle *lifecycle.Manager
	tables    map[string]lookup.Table
}

func (l *LookupNamespace) Register(name string, table lookup.Table, producer string, requires []resourcegraph.Resource) error {
	if err := l.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return err
	}
	if l.tables == nil {
		l.tables = make(map[string]lookup.Table)
	}
	if err := l.graph.Declare(resourcegraph.Resource{Kind: resourcegraph.Stream, Name: name}, producer, requires); err != nil {
		return err
	}
	l.tables[name] = table
	return nil
}

func (l *LookupNamespace) Get(name string) (lookup.Table, bool) {
	t, ok := l.tables[name]
	return t, ok
}

// ValueNamespace wraps valuepipeline.Manager plus resource-graph
// registration of pipeline resources.
type ValueNamespace struct {
	pipelines *valuepipeline.Manager
	graph     *resourcegraph.Graph
}

func (v *ValueNamespace) Declare(name, producer string, requires []resourcegraph.Resource) (*valuepipeline.Pipeline, error) {
	p, err := v.pipelines.Declare(name)
	if err != nil {
		return nil, err
	}
	if err := v.graph.Declare(resourcegraph.Resource{Kind: resourcegraph.Pipeline, Name: name}, producer, requires); err != nil {
		return nil, err
	}
	return p, nil
}

func (v *ValueNamespace) SetSource(name string, source valuepipeline.Source) error {
	return v.pipelines.SetSource(name, source)
}

func (v *ValueNamespace) AddModifier(name string, modifier valuepipeline.Modifier) error {
	return v.pipelines.AddModifier(name, modifier)
}

func (v *ValueNamespace) SetCombinerAndPostProcessor(name string, combiner valuepipeline.Combiner, post valuepipeline.PostProcessor) error {
	return v.pipelines.SetCombinerAndPostProcessor(name, combiner, post)
}

func (v *ValueNamespace) Call(ctx context.Context, name string, idx []population.SimulantID, args ...population.Frame) (population.Frame, error) {
	return v.pipelines.Call(ctx, name, idx, args...)
}

// EventNamespace wraps eventbus.Bus.
type EventNamespace struct {
	bus *eventbus.Bus
}

func (e *EventNamespace) Subscribe(channel string, priority int, owner string, handler eventbus.Handler) (eventbus.Subscription, error) {
	return e.bus.Subscribe(channel, priority, owner, handler)
}

func (e *EventNamespace) Emit(ctx context.Context, channel string, event eventbus.Event) error {
	return e.bus.Emit(ctx, channel, event)
}

// PopulationNamespace wraps population.Manager plus resource-graph
// registration of column and initializer resources.
type PopulationNamespace struct {
	pop   *population.Manager
	graph *resourcegraph.Graph
	clock *clock.Clock
}

func (p *PopulationNamespace) DeclareColumn(name string, spec population.ColumnSpec, requires []resourcegraph.Resource) error {
	if err := p.pop.DeclareColumn(name, spec); err != nil {
		return err
	}
	return p.graph.Declare(resourcegraph.Resource{Kind: resourcegraph.Column, Name: name}, spec.Owner, requires)
}

func (p *PopulationNamespace) RegisterInitializer(init population.Initializer) error {
	return p.pop.RegisterInitializer(init)
}

func (p *PopulationNamespace) GetView(columns, writable []string, filter population.RowFilter) (*population.View, error) {
	return p.pop.GetView(columns, writable, filter)
}

func (p *PopulationNamespace) CreateSimulants(n int, userData map[string]any) ([]population.SimulantID, error) {
	return p.pop.CreateSimulants(n, userData, p.clock.EventTime())
}

// RandomnessNamespace wraps randomness.Manager plus the Stream resource
// kind's graph registration.
type RandomnessNamespace struct {
	rand      *randomness.Manager
	graph     *resourcegraph.Graph
	lifecycle *lifecycle.Manager
}

func (r *RandomnessNamespace) Register(idx randomness.SimulantID, key randomness.KeyTuple) error {
	return r.rand.Register(idx, key)
}

func (r *RandomnessNamespace) Stream(name string) randomness.Stream { return r.rand.Stream(name) }

func (r *RandomnessNamespace) BootstrapStream(name string) randomness.Stream {
	return r.rand.BootstrapStream(name)
}

func (r *RandomnessNamespace) DeclareStream(name, producer string, requires []resourcegraph.Resource) error {
	if err := r.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return err
	}
	return r.graph.Declare(resourcegraph.Resource{Kind: resourcegraph.Stream, Name: name}, producer, requires)
}

// TimeNamespace wraps clock.Clock. Step-size modifiers are accumulated on
// the owning Context, since clock.Clock itself is a pure time-axis value
// that takes its modifier list as an Advance argument.
type TimeNamespace struct {
	clock *clock.Clock
	ctx   *Context
}

func (t *TimeNamespace) ClockTime() time.Time { return t.clock.ClockTime() }

func (t *TimeNamespace) EventTime() time.Time { return t.clock.EventTime() }

func (t *TimeNamespace) AddStepSizeModifier(mod clock.StepSizeModifier) {
	t.ctx.stepModifiers = append(t.ctx.stepModifiers, mod)
}

// ComponentsNamespace lets a component enqueue further sub-components
// onto the Setup work queue.
type ComponentsNamespace struct {
	ctx *Context
}

func (c *ComponentsNamespace) Enqueue(sub Component) {
	c.ctx.setupQueue = append(c.ctx.setupQueue, sub)
}

func (c *ComponentsNamespace) Named(name string) (Component, bool) {
	for _, comp := range c.ctx.components {
		if comp.Name() == name {
			return comp, true
		}
	}
	return nil, false
}

// ResultsNamespace wraps results.Manager.
type ResultsNamespace struct {
	results *results.Manager
}

func (r *ResultsNamespace) RegisterStratification(s results.Stratification) error {
	return r.results.RegisterStratification(s)
}

func (r *ResultsNamespace) RegisterObservation(o results.Observation) error {
	return r.results.RegisterObservation(o)
}

// LifecycleNamespace wraps lifecycle.Manager for read-only introspection.
type LifecycleNamespace struct {
	lifecycle *lifecycle.Manager
}

func (l *LifecycleNamespace) Phase() lifecycle.Phase { return l.lifecycle.Phase() }
