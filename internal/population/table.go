package population

import (
	"time"

	"github.com/simforge/simforge/pkg/simerrors"
)

// Frame is a column-major batch of values keyed by column name, used for
// both initializer output and view writes.
type Frame struct {
	Columns []string
	Index   []SimulantID
	Int64   map[string][]int64
	Float64 map[string][]float64
	Bool    map[string][]bool
	String  map[string][]string
	Time    map[string][]time.Time
}

// NewFrame constructs an empty Frame over the given index.
func NewFrame(index []SimulantID) Frame {
	return Frame{
		Index:   append([]SimulantID(nil), index...),
		Int64:   make(map[string][]int64),
		Float64: make(map[string][]float64),
		Bool:    make(map[string][]bool),
		String:  make(map[string][]string),
		Time:    make(map[string][]time.Time),
	}
}

// Table is the row-addressable, column-typed state table. Exclusively
// owned by the Manager; components only ever see it through a View.
type Table struct {
	schema *Schema

	int64cols   map[string][]int64
	float64cols map[string][]float64
	boolcols    map[string][]bool
	stringcols  map[string][]string
	timecols    map[string][]time.Time

	tracked  []bool
	rowCount int
}

// NewTable constructs a Table bound to schema. Columns are allocated
// lazily as rows are appended, matching the schema's declared type per
// column.
func NewTable(schema *Schema) *Table {
	return &Table{
		schema:      schema,
		int64cols:   make(map[string][]int64),
		float64cols: make(map[string][]float64),
		boolcols:    make(map[string][]bool),
		stringcols:  make(map[string][]string),
		timecols:    make(map[string][]time.Time),
	}
}

// RowCount returns the current number of rows. Rows are removed only when
// truncate rolls back a failed CreateSimulants batch.
func (t *Table) RowCount() int {
	return t.rowCount
}

// ActiveIndex returns every row index whose tracked flag is true
// (invariant a — untracked rows excluded from the default active index).
func (t *Table) ActiveIndex() []SimulantID {
	out := make([]SimulantID, 0, t.rowCount)
	for i := 0; i < t.rowCount; i++ {
		if t.tracked[i] {
			out = append(out, SimulantID(i))
		}
	}
	return out
}

// FullIndex returns every row index regardless of tracked status.
func (t *Table) FullIndex() []SimulantID {
	out := make([]SimulantID, t.rowCount)
	for i := range out {
		out[i] = SimulantID(i)
	}
	return out
}

// Tracked reports idx's tracked flag.
func (t *Table) Tracked(idx SimulantID) bool {
	if int(idx) >= len(t.tracked) {
		return false
	}
	return t.tracked[idx]
}

// SetTracked updates idx's tracked flag.
func (t *Table) SetTracked(idx SimulantID, tracked bool) {
	if int(idx) < len(t.tracked) {
		t.tracked[idx] = tracked
	}
}

// allocate grows every declared column's backing slice by n zero-valued
// rows and returns the indices of the new block.
func (t *Table) allocate(n int) []SimulantID {
	start := t.rowCount

	for name := range t.schema.columns {
		spec := t.schema.columns[name]
		switch spec.Type {
		case Int64:
			t.int64cols[name] = append(t.int64cols[name], make([]int64, n)...)
		case Float64:
			t.float64cols[name] = append(t.float64cols[name], make([]float64, n)...)
		case Bool:
			t.boolcols[name] = append(t.boolcols[name], make([]bool, n)...)
		case Categorical:
			t.stringcols[name] = append(t.stringcols[name], make([]string, n)...)
		case Timestamp:
			t.timecols[name] = append(t.timecols[name], make([]time.Time, n)...)
		}
	}
	t.tracked = append(t.tracked, make([]bool, n)...)
	for i := start; i < start+n; i++ {
		t.tracked[i] = true
	}
	t.rowCount += n

	index := make([]SimulantID, n)
	for i := range index {
		index[i] = SimulantID(start + i)
	}
	return index
}

// truncate discards the most recently allocated n rows — used to roll
// back a failed CreateSimulants batch so a partial failure leaves no
// trace.
func (t *Table) truncate(n int) {
	if n == 0 {
		return
	}
	newCount := t.rowCount - n
	for name := range t.schema.columns {
		spec := t.schema.columns[name]
		switch spec.Type {
		case Int64:
			t.int64cols[name] = t.int64cols[name][:newCount]
		case Float64:
			t.float64cols[name] = t.float64cols[name][:newCount]
		case Bool:
			t.boolcols[name] = t.boolcols[name][:newCount]
		case Categorical:
			t.stringcols[name] = t.stringcols[name][:newCount]
		case Timestamp:
			t.timecols[name] = t.timecols[name][:newCount]
		}
	}
	t.tracked = t.tracked[:newCount]
	t.rowCount = newCount
}

// write applies frame to the table, restricted to the columns in
// allowedColumns, validating dtype and index bounds. No widening is
// performed (invariant b): a frame column of the wrong backing type for
// its declared dtype fails outright.
func (t *Table) write(frame Frame, allowedColumns map[string]struct{}) error {
	for _, idx := range frame.Index {
		if int(idx) >= t.rowCount {
			return simerrors.NewPopulationSchemaError("", "write index out of range")
		}
	}

	for name, values := range frame.Int64 {
		if err := t.writeColumn(name, allowedColumns); err != nil {
			return err
		}
		spec, _ := t.schema.Get(name)
		if spec.Type != Int64 {
			return simerrors.NewPopulationSchemaError(name, "dtype mismatch: column is not int64")
		}
		for i, idx := range frame.Index {
			t.int64cols[name][idx] = values[i]
		}
	}
	for name, values := range frame.Float64 {
		if err := t.writeColumn(name, allowedColumns); err != nil {
			return err
		}
		spec, _ := t.schema.Get(name)
		if spec.Type != Float64 {
			return simerrors.NewPopulationSchemaError(name, "dtype mismatch: column is not float64")
		}
		for i, idx := range frame.Index {
			t.float64cols[name][idx] = values[i]
		}
	}
	for name, values := range frame.Bool {
		if err := t.writeColumn(name, allowedColumns); err != nil {
			return err
		}
		spec, _ := t.schema.Get(name)
		if spec.Type != Bool {
			return simerrors.NewPopulationSchemaError(name, "dtype mismatch: column is not bool")
		}
		for i, idx := range frame.Index {
			t.boolcols[name][idx] = values[i]
		}
	}
	for name, values := range frame.String {
		if err := t.writeColumn(name, allowedColumns); err != nil {
			return err
		}
		spec, _ := t.schema.Get(name)
		if spec.Type != Categorical {
			return simerrors.NewPopulationSchemaError(name, "dtype mismatch: column is not categorical")
		}
		if len(spec.Categories) > 0 {
			valid := make(map[string]struct{}, len(spec.Categories))
			for _, c := range spec.Categories {
				valid[c] = struct{}{}
			}
			for _, v := range values {
				if _, ok := valid[v]; !ok {
					return simerrors.NewPopulationSchemaError(name, "value \""+v+"\" is not a declared category")
				}
			}
		}
		for i, idx := range frame.Index {
			t.stringcols[name][idx] = values[i]
		}
	}
	for name, values := range frame.Time {
		if err := t.writeColumn(name, allowedColumns); err != nil {
			return err
		}
		spec, _ := t.schema.Get(name)
		if spec.Type != Timestamp {
			return simerrors.NewPopulationSchemaError(name, "dtype mismatch: column is not timestamp")
		}
		for i, idx := range frame.Index {
			t.timecols[name][idx] = values[i]
		}
	}
	return nil
}

func (t *Table) writeColumn(name string, allowedColumns map[string]struct{}) error {
	if allowedColumns != nil {
		if _, ok := allowedColumns[name]; !ok {
			return simerrors.NewPopulationSchemaError(name, "write to column outside view's writable set")
		}
	}
	if _, ok := t.schema.Get(name); !ok {
		return simerrors.NewPopulationSchemaError(name, "column is not declared in the schema")
	}
	return nil
}

// read returns a Frame restricted to columns, over idx.
func (t *Table) read(idx []SimulantID, columns []string) (Frame, error) {
	frame := NewFrame(idx)
	for _, name := range columns {
		spec, ok := t.schema.Get(name)
		if !ok {
			return Frame{}, simerrors.NewPopulationSchemaError(name, "column is not declared in the schema")
		}
		switch spec.Type {
		case Int64:
			vals := make([]int64, len(idx))
			for i, r := range idx {
				vals[i] = t.int64cols[name][r]
			}
			frame.Int64[name] = vals
		case Float64:
			vals := make([]float64, len(idx))
			for i, r := range idx {
				vals[i] = t.float64cols[name][r]
			}
			frame.Float64[name] = vals
		case Bool:
			vals := make([]bool, len(idx))
			for i, r := range idx {
				vals[i] = t.boolcols[name][r]
			}
			frame.Bool[name] = vals
		case Categorical:
			vals := make([]string, len(idx))
			for i, r := range idx {
				vals[i] = t.stringcols[name][r]
			}
			frame.String[name] = vals
		case Timestamp:
			vals := make([]time.Time, len(idx))
			for i, r := range idx {
				vals[i] = t.timecols[name][r]
			}
			frame.Time[name] = vals
		}
		frame.Columns = append(frame.Columns, name)
	}
	return frame, nil
}
