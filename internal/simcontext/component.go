// Package simcontext wires every manager into the single driver: a
// construct -> prepare -> execute -> validate -> publish-events shape.
package simcontext

import "github.com/simforge/simforge/internal/population"

// Frame mirrors population.Frame for use in the SimulantInitializer
// capability interface.
type Frame = population.Frame

// Component is the unit of composition a model specification instantiates.
// The methods below are required; everything else is an optional
// capability interface discovered by type assertion rather than tagged
// via reflection.
type Component interface {
	Name() string
	ConfigurationDefaults() map[string]any
	ColumnsCreated() []string
	ColumnsRequired() []string
	Setup(b *Builder) error
}

// PostSetupHook runs once, after the resource graph is finalized and the
// configuration tree is frozen, before any simulant exists.
type PostSetupHook interface {
	OnPostSetup(b *Builder) error
}

// TimeStepPrepareHook runs at the start of every main-loop tick.
type TimeStepPrepareHook interface {
	OnTimeStepPrepare(b *Builder) error
}

// TimeStepHook runs the domain logic of every tick.
type TimeStepHook interface {
	OnTimeStep(b *Builder) error
}

// TimeStepCleanupHook runs after TimeStep, before metrics collection.
type TimeStepCleanupHook interface {
	OnTimeStepCleanup(b *Builder) error
}

// CollectMetricsHook runs last in every tick.
type CollectMetricsHook interface {
	OnCollectMetrics(b *Builder) error
}

// SimulationEndHook runs once, after the main loop exits.
type SimulationEndHook interface {
	OnSimulationEnd(b *Builder) error
}

// SimulantInitializer lets a component populate the columns it declared
// in ColumnsCreated for newly created simulants. Its signature matches
// population.Initializer.Fn exactly: a capability-discovered component
// implementing this is auto-registered as a population initializer
// during Setup, named after the component.
type SimulantInitializer interface {
	OnInitializeSimulants(data SimulantData) (Frame, error)
}
