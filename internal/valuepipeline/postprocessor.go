package valuepipeline

import "github.com/simforge/simforge/internal/population"

// rateColumn is the conventional column name a Rescale/Union pipeline's
// combined value is carried in.
const rateColumn = "rate"

// stepYearsColumn is the conventional column name the caller supplies the
// current step size (in years) under, alongside the value args, for a
// Rescale post-processor.
const stepYearsColumn = "step_years"

// listColumn is the conventional column a ListCombiner pipeline's
// per-modifier outputs accumulate into, consumed by a Union
// post-processor.
const listColumn = "values"

func rescaleFrame(formula RescaleFormula, value population.Frame) population.Frame {
	rates, ok := value.Float64[rateColumn]
	if !ok {
		return value
	}
	stepYears, ok := value.Float64[stepYearsColumn]
	if !ok || len(stepYears) != len(rates) {
		return value
	}

	out := make([]float64, len(rates))
	for i, r := range rates {
		out[i] = formula.Apply(r, stepYears[i])
	}
	value.Float64[rateColumn] = out
	return value
}

// unionFrame combines a list of independent per-simulant proportions via
// 1 - Π(1-p_i), one product per simulant. list is the source's
// per-simulant Float64 slice followed, in modifier-registration order, by
// each modifier's slice over the same index (see appendListFrame), so it
// holds len(list)/n blocks of n == len(value.Index) entries each; entry
// list[block*n+i] is the block-th contributor's proportion for simulant i.
func unionFrame(value population.Frame) population.Frame {
	list, ok := value.Float64[listColumn]
	if !ok {
		return value
	}
	n := len(value.Index)
	if n == 0 || len(list)%n != 0 {
		return value
	}
	blocks := len(list) / n
	rates := make([]float64, n)
	for i := 0; i < n; i++ {
		product := 1.0
		for b := 0; b < blocks; b++ {
			product *= 1 - list[b*n+i]
		}
		rates[i] = 1 - product
	}
	value.Float64[rateColumn] = rates
	return value
}
