package population

import "github.com/simforge/simforge/pkg/simerrors"

// RowFilter narrows a candidate index down, e.g. "alive and female".
type RowFilter func(t *Table, candidate []SimulantID) []SimulantID

// View is a scoped, read/write window over the state table: a subset of
// columns, an optional row filter, and an optional writable-columns
// restriction.
type View struct {
	table     *Table
	columns   []string
	writable  map[string]struct{}
	rowFilter RowFilter
}

func newView(table *Table, columns []string, writable []string, filter RowFilter) *View {
	w := make(map[string]struct{}, len(writable))
	for _, c := range writable {
		w[c] = struct{}{}
	}
	return &View{table: table, columns: append([]string(nil), columns...), writable: w, rowFilter: filter}
}

// Index returns the view's current candidate index: the table's active
// index narrowed by the view's row filter, if any.
func (v *View) Index() []SimulantID {
	candidate := v.table.ActiveIndex()
	if v.rowFilter != nil {
		candidate = v.rowFilter(v.table, candidate)
	}
	return candidate
}

// Get returns rows restricted to the view's declared columns, optionally
// further narrowed by query functions applied in sequence.
func (v *View) Get(idx []SimulantID, query ...func([]SimulantID) []SimulantID) (Frame, error) {
	for _, q := range query {
		idx = q(idx)
	}
	return v.table.read(idx, v.columns)
}

// Update writes every column frame carries. Each such column must be in
// the view's writable set and frame's index must be a subset of the
// view's current index; otherwise Update returns a PopulationSchemaError.
func (v *View) Update(frame Frame) error {
	current := make(map[SimulantID]struct{}, len(v.Index()))
	for _, idx := range v.Index() {
		current[idx] = struct{}{}
	}
	for _, idx := range frame.Index {
		if _, ok := current[idx]; !ok {
			return simerrors.NewPopulationSchemaError("", "write index is not a subset of the view's current index")
		}
	}
	return v.table.write(frame, v.writable)
}
