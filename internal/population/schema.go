// Package population implements the state table, views, and simulant
// creation machinery. The column store is a tagged union of typed slices rather than a
// reflect-driven generic table: no dataframe library in the retrieved
// corpus fits a typed, mutation-gated column store (erigon's kv package is
// byte-oriented, not an in-memory typed table) — see DESIGN.md.
package population

import (
	"time"

	"github.com/simforge/simforge/pkg/simerrors"
)

// SimulantID is a stable, append-only row index. Never reused.
type SimulantID = uint64

// ColumnType enumerates the declarable column dtypes.
type ColumnType int

const (
	Int64 ColumnType = iota
	Float64
	Bool
	Categorical
	Timestamp
)

func (t ColumnType) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case Categorical:
		return "categorical"
	case Timestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// ColumnSpec describes one declared column.
type ColumnSpec struct {
	Type       ColumnType
	Owner      string
	Categories []string // only meaningful for Categorical columns
}

// Schema is the frozen-after-setup map of declared columns.
type Schema struct {
	columns map[string]ColumnSpec
	frozen  bool
}

// NewSchema constructs an empty Schema.
func NewSchema() *Schema {
	return &Schema{columns: make(map[string]ColumnSpec)}
}

// Declare registers a column. Two components declaring the same column
// name is a collision (invariant a).
func (s *Schema) Declare(name string, spec ColumnSpec) error {
	if s.frozen {
		return simerrors.NewPopulationSchemaError(name, "schema is frozen after setup")
	}
	if existing, ok := s.columns[name]; ok {
		return simerrors.NewComponentContractError(spec.Owner,
			"column \""+name+"\" already owned by \""+existing.Owner+"\"", nil)
	}
	s.columns[name] = spec
	return nil
}

// Freeze prevents further column declarations (invariant c).
func (s *Schema) Freeze() {
	s.frozen = true
}

// Frozen reports whether the schema accepts no further declarations.
func (s *Schema) Frozen() bool {
	return s.frozen
}

// Get returns the spec for name.
func (s *Schema) Get(name string) (ColumnSpec, bool) {
	spec, ok := s.columns[name]
	return spec, ok
}

// Names returns all declared column names.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	return names
}

// SimulantData is passed to an initializer for the batch of rows it must
// populate.
type SimulantData struct {
	Index          []SimulantID
	UserData       map[string]any
	CreationTime   time.Time
	CreationWindow time.Duration
}
