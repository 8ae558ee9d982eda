// Package valuepipeline implements the named source+modifier composition
// system.
package valuepipeline

import (
	"context"
	"math"

	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/internal/resourcegraph"
)

// Source produces the base value for idx.
type Source func(ctx context.Context, idx []population.SimulantID, args ...population.Frame) (population.Frame, error)

// ModifierFn transforms a value for idx. For a ReplaceCombiner pipeline,
// prior carries the accumulated value so far; for a ListCombiner pipeline
// prior is the zero Frame and the modifier's return is appended instead of
// replacing. ctx carries the in-flight pipeline call stack, so a modifier
// that itself calls Manager.Call participates in reentrant-cycle
// detection.
type ModifierFn func(ctx context.Context, idx []population.SimulantID, prior population.Frame, args ...population.Frame) (population.Frame, error)

// Modifier is a registered pipeline modifier.
type Modifier struct {
	Name     string
	Fn       ModifierFn
	Priority int
	Requires []resourcegraph.Resource
}

// Combiner determines how a source's value and its modifiers' outputs
// are folded together.
type Combiner int

const (
	ReplaceCombiner Combiner = iota
	ListCombiner
)

// RescaleFormula selects the annual-to-per-step rate conversion. Both
// formulas are kept and the choice is recorded on the Pipeline value
// itself so it is recoverable for reproducibility — resolving the
// corresponding Open Question in favor of never discarding either
// formula.
type RescaleFormula int

const (
	Exponential RescaleFormula = iota
	Linear
)

// Apply converts an annual rate to a per-step rate given stepYears.
func (f RescaleFormula) Apply(rateAnnual, stepYears float64) float64 {
	switch f {
	case Linear:
		return rateAnnual * stepYears
	default:
		return 1 - math.Exp(-rateAnnual*stepYears)
	}
}

// PostProcessorKind identifies the shape of a pipeline's post-processing
// step.
type PostProcessorKind int

const (
	Identity PostProcessorKind = iota
	Rescale
	Union
)

// PostProcessor configures how a combined value is finished.
type PostProcessor struct {
	Kind    PostProcessorKind
	Formula RescaleFormula // only meaningful when Kind == Rescale
}

// Pipeline is a named value composed of a source, ordered modifiers, a
// combiner, and a post-processor.
type Pipeline struct {
	Name          string
	Source        Source
	Modifiers     []Modifier
	Combiner      Combiner
	PostProcessor PostProcessor
}
