// Package results implements the stratification and observation registry,
// persisted via atomic temp-file-then-rename JSON Save/Load.
package results

import (
	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/internal/resourcegraph"
	"github.com/simforge/simforge/pkg/simerrors"
)

// Stratification is a named categorical partition of the population.
type Stratification struct {
	Name               string
	Categories         []string
	ExcludedCategories []string
	Sources            []resourcegraph.Resource
	Mapper             func(population.Frame) ([]string, error)
	Vectorized         bool
}

func (s Stratification) validate() error {
	if len(s.Categories) == 0 {
		return simerrors.NewComponentContractError(s.Name, "stratification must declare a non-empty, exhaustive category list", nil)
	}
	categorySet := make(map[string]struct{}, len(s.Categories))
	for _, c := range s.Categories {
		categorySet[c] = struct{}{}
	}
	for _, excluded := range s.ExcludedCategories {
		if _, ok := categorySet[excluded]; !ok {
			return simerrors.NewComponentContractError(s.Name,
				"excluded category \""+excluded+"\" is not in the declared category list", nil)
		}
	}
	return nil
}

func (s Stratification) excluded(category string) bool {
	for _, c := range s.ExcludedCategories {
		if c == category {
			return true
		}
	}
	return false
}

func (s Stratification) validCategory(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// observationWhen is the subset of lifecycle phases an observation may
// trigger on.
var observationWhen = map[lifecycle.Phase]struct{}{
	lifecycle.TimeStepPrepare: {},
	lifecycle.TimeStep:        {},
	lifecycle.TimeStepCleanup: {},
	lifecycle.CollectMetrics:  {},
}

// Observation is a record comprising a name, a trigger phase, a
// population filter, a gatherer, an updater, a formatter, and an optional
// stratification tuple.
type Observation struct {
	Name            string
	When            lifecycle.Phase
	PopFilter       func(population.Frame) []population.SimulantID
	Requires        []resourcegraph.Resource
	Gatherer        func(population.Frame) (population.Frame, error)
	Updater         func(prior, gathered population.Frame) (population.Frame, error)
	Formatter       func(population.Frame) (Table, error)
	Stratifications []string
}

func (o Observation) validate() error {
	if _, ok := observationWhen[o.When]; !ok {
		return simerrors.NewComponentContractError(o.Name,
			"observation trigger phase "+o.When.String()+" is not one of TimeStepPrepare/TimeStep/TimeStepCleanup/CollectMetrics", nil)
	}
	return nil
}

// Table is the formatted output of one observation's accumulated strata.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewAddingObservation builds a stratified, numeric-aggregation
// observation whose updater sums the prior accumulator with each gather.
func NewAddingObservation(name string, when lifecycle.Phase, column string, stratifications []string,
	popFilter func(population.Frame) []population.SimulantID,
	gatherer func(population.Frame) (population.Frame, error)) Observation {
	return Observation{
		Name:      name,
		When:      when,
		PopFilter: popFilter,
		Gatherer:  gatherer,
		Updater: func(prior, gathered population.Frame) (population.Frame, error) {
			sum := prior.Float64[column]
			add := gathered.Float64[column]
			if sum == nil {
				sum = make([]float64, 1)
			}
			total := sum[0]
			for _, v := range add {
				total += v
			}
			out := population.NewFrame(nil)
			out.Float64[column] = []float64{total}
			return out, nil
		},
		Formatter: func(accum population.Frame) (Table, error) {
			return Table{Columns: []string{column}, Rows: [][]any{{accum.Float64[column][0]}}}, nil
		},
		Stratifications: stratifications,
	}
}

// NewConcatenatingObservation builds an unstratified observation whose
// updater appends each gather to the accumulated list.
func NewConcatenatingObservation(name string, when lifecycle.Phase, column string,
	popFilter func(population.Frame) []population.SimulantID,
	gatherer func(population.Frame) (population.Frame, error)) Observation {
	return Observation{
		Name:      name,
		When:      when,
		PopFilter: popFilter,
		Gatherer:  gatherer,
		Updater: func(prior, gathered population.Frame) (population.Frame, error) {
			out := population.NewFrame(nil)
			out.Float64[column] = append(append([]float64(nil), prior.Float64[column]...), gathered.Float64[column]...)
			return out, nil
		},
		Formatter: func(accum population.Frame) (Table, error) {
			values := accum.Float64[column]
			rows := make([][]any, len(values))
			for i, v := range values {
				rows[i] = []any{v}
			}
			return Table{Columns: []string{column}, Rows: rows}, nil
		},
	}
}
