// Package lookup implements the interpolated data tables:
// scalar constants, categorical equality lookups, binned order-0
// interpolation, and arbitrary callables, all indexed by simulant.
package lookup

import (
	"sort"

	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/pkg/simerrors"
)

// ExtrapolationPolicy controls behavior when a row matches no bin/category.
type ExtrapolationPolicy int

const (
	Fail ExtrapolationPolicy = iota
	ClampToEdge
)

// Table maps a simulant index to a value via interpolation over bound
// columns.
type Table interface {
	Lookup(idx []population.SimulantID, pop *population.View) (population.Frame, error)
}

// scalarTable always returns the same constant value.
type scalarTable struct {
	name  string
	value float64
}

// NewScalar constructs a Table returning value for every row.
func NewScalar(name string, value float64) Table {
	return &scalarTable{name: name, value: value}
}

func (s *scalarTable) Lookup(idx []population.SimulantID, pop *population.View) (population.Frame, error) {
	out := population.NewFrame(idx)
	values := make([]float64, len(idx))
	for i := range values {
		values[i] = s.value
	}
	out.Float64[s.name] = values
	return out, nil
}

// CategoricalRow is one row of a categorical lookup: a set of key-column
// equality values and the resulting output value.
type CategoricalRow struct {
	Keys  map[string]string
	Value float64
}

type categoricalTable struct {
	name        string
	rows        []CategoricalRow
	keyColumns  []string
	extrapolate ExtrapolationPolicy
}

// NewCategorical constructs a Table doing equality-match lookup on
// keyColumns.
func NewCategorical(name string, rows []CategoricalRow, keyColumns []string, extrapolate ExtrapolationPolicy) Table {
	return &categoricalTable{name: name, rows: append([]CategoricalRow(nil), rows...), keyColumns: keyColumns, extrapolate: extrapolate}
}

func (c *categoricalTable) Lookup(idx []population.SimulantID, pop *population.View) (population.Frame, error) {
	keyFrame, err := pop.Get(idx)
	if err != nil {
		return population.Frame{}, err
	}

	out := population.NewFrame(idx)
	values := make([]float64, len(idx))

	for i, id := range idx {
		matched := false
		for _, row := range c.rows {
			if rowMatches(row, c.keyColumns, keyFrame, i) {
				values[i] = row.Value
				matched = true
				break
			}
		}
		if !matched {
			switch c.extrapolate {
			case ClampToEdge:
				if len(c.rows) > 0 {
					values[i] = nearestByFirstKey(c.rows, c.keyColumns, keyFrame, i)
				}
			default:
				return population.Frame{}, simerrors.NewInterpolationError(c.name, "no matching category row for simulant")
			}
		}
		_ = id
	}

	out.Float64[c.name] = values
	return out, nil
}

func rowMatches(row CategoricalRow, keyColumns []string, frame population.Frame, i int) bool {
	for _, col := range keyColumns {
		vals, ok := frame.String[col]
		if !ok || i >= len(vals) || vals[i] != row.Keys[col] {
			return false
		}
	}
	return true
}

// nearestByFirstKey provides a crude nearest-neighbor fallback when no
// exact categorical match exists and ClampToEdge is configured — it picks
// the first declared row as the clamp target, mirroring "clamp to nearest
// edge" for a table with no intrinsic ordering over its key columns.
func nearestByFirstKey(rows []CategoricalRow, keyColumns []string, frame population.Frame, i int) float64 {
	return rows[0].Value
}

// BinnedRow is one row of a binned lookup: half-open [Start,End) bounds
// per parameter column plus the resulting output value.
type BinnedRow struct {
	Start map[string]float64
	End   map[string]float64
	Value float64
}

type binnedTable struct {
	name         string
	rows         []BinnedRow
	paramColumns []string
	sortedBy     string
	extrapolate  ExtrapolationPolicy
}

// NewBinned constructs a Table doing order-0 half-open-interval lookup
// over paramColumns. Rows are sorted ascending by their first parameter
// column's Start bound for sort.Search.
func NewBinned(name string, rows []BinnedRow, paramColumns []string, extrapolate ExtrapolationPolicy) Table {
	sorted := append([]BinnedRow(nil), rows...)
	primary := ""
	if len(paramColumns) > 0 {
		primary = paramColumns[0]
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start[primary] < sorted[j].Start[primary] })
	return &binnedTable{name: name, rows: sorted, paramColumns: paramColumns, sortedBy: primary, extrapolate: extrapolate}
}

func (b *binnedTable) Lookup(idx []population.SimulantID, pop *population.View) (population.Frame, error) {
	paramFrame, err := pop.Get(idx)
	if err != nil {
		return population.Frame{}, err
	}

	out := population.NewFrame(idx)
	values := make([]float64, len(idx))

	for i := range idx {
		v, err := b.lookupOne(paramFrame, i)
		if err != nil {
			return population.Frame{}, err
		}
		values[i] = v
	}

	out.Float64[b.name] = values
	return out, nil
}

func (b *binnedTable) lookupOne(frame population.Frame, i int) (float64, error) {
	primaryVals := frame.Float64[b.sortedBy]
	if i >= len(primaryVals) {
		return 0, simerrors.NewInterpolationError(b.name, "missing parameter column value")
	}
	x := primaryVals[i]

	// sort.Search finds the first row whose Start > x; the containing
	// bin is the one before it (half-open [start,end)).
	pos := sort.Search(len(b.rows), func(j int) bool { return b.rows[j].Start[b.sortedBy] > x })
	candidate := pos - 1

	for candidate >= 0 {
		row := b.rows[candidate]
		if rowContains(row, b.paramColumns, frame, i) {
			return row.Value, nil
		}
		candidate--
	}

	switch b.extrapolate {
	case ClampToEdge:
		if len(b.rows) == 0 {
			return 0, simerrors.NewInterpolationError(b.name, "no bins declared")
		}
		if x < b.rows[0].Start[b.sortedBy] {
			return b.rows[0].Value, nil
		}
		return b.rows[len(b.rows)-1].Value, nil
	default:
		return 0, simerrors.NewInterpolationError(b.name, "no bin contains this row and extrapolation is disabled")
	}
}

func rowContains(row BinnedRow, paramColumns []string, frame population.Frame, i int) bool {
	for _, col := range paramColumns {
		vals, ok := frame.Float64[col]
		if !ok || i >= len(vals) {
			return false
		}
		v := vals[i]
		if v < row.Start[col] || v >= row.End[col] {
			return false
		}
	}
	return true
}

// FuncTable wraps an arbitrary callable as a Table.
type FuncTable func(idx []population.SimulantID, pop *population.View) (population.Frame, error)

// NewFunc constructs a Table from fn.
func NewFunc(fn FuncTable) Table {
	return fn
}

func (f FuncTable) Lookup(idx []population.SimulantID, pop *population.View) (population.Frame, error) {
	return f(idx, pop)
}
