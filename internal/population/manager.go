package population

import (
	"time"

	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/resourcegraph"
	"github.com/simforge/simforge/pkg/simerrors"
)

// Initializer populates exactly its declared columns over exactly the
// index it is given.
type Initializer struct {
	Name     string
	Columns  []string
	Requires []resourcegraph.Resource
	Fn       func(SimulantData) (Frame, error)
}

// Manager owns the state table and mediates all access through views and
// the simulant creator.
type Manager struct {
	lifecycle    *lifecycle.Manager
	schema       *Schema
	table        *Table
	initializers map[string]Initializer
	order        []string // topological order of initializer names, set by SetInitializerOrder
}

// New constructs a Manager bound to lifecycleMgr.
func New(lifecycleMgr *lifecycle.Manager) *Manager {
	schema := NewSchema()
	return &Manager{
		lifecycle:    lifecycleMgr,
		schema:       schema,
		table:        NewTable(schema),
		initializers: make(map[string]Initializer),
	}
}

// Schema exposes the column schema (Setup-time declarations).
func (m *Manager) Schema() *Schema {
	return m.schema
}

// DeclareColumn registers a column with the schema. Allowed only while
// registration operations are permitted (lifecycle Setup phase).
func (m *Manager) DeclareColumn(name string, spec ColumnSpec) error {
	if err := m.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return err
	}
	return m.schema.Declare(name, spec)
}

// RegisterInitializer records an initializer by name for later ordering
// by the resource graph and invocation by CreateSimulants.
func (m *Manager) RegisterInitializer(init Initializer) error {
	if err := m.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return err
	}
	if _, exists := m.initializers[init.Name]; exists {
		return simerrors.NewComponentContractError(init.Name, "initializer already registered", nil)
	}
	m.initializers[init.Name] = init
	return nil
}

// FreezeSchema is called at the Setup→PostSetup boundary.
func (m *Manager) FreezeSchema() {
	m.schema.Freeze()
}

// SetInitializerOrder installs the topological order computed by the
// resource graph at Setup→PostSetup.
func (m *Manager) SetInitializerOrder(order []string) {
	m.order = order
}

// GetView constructs a View over columns with writable restricted to
// writable and an optional row filter.
func (m *Manager) GetView(columns, writable []string, filter RowFilter) (*View, error) {
	if err := m.lifecycle.Guard(lifecycle.PopulationReadWrite); err != nil {
		return nil, err
	}
	return newView(m.table, columns, writable, filter), nil
}

// CreateSimulants allocates n new rows, runs every registered initializer
// (in the order set by SetInitializerOrder) over the new index, and joins
// their output into the table. Any initializer error rolls the whole
// allocation back — the table is left exactly as it was, and the next
// CreateSimulants call reuses the same starting index. now is the
// simulation clock time of creation (not wall-clock time), so that an
// initializer using it for a key column (e.g. entrance_time) stays
// reproducible across runs sharing a seed.
func (m *Manager) CreateSimulants(n int, userData map[string]any, now time.Time) ([]SimulantID, error) {
	if err := m.lifecycle.Guard(lifecycle.CreateSimulants); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, simerrors.NewComponentContractError("", "CreateSimulants requires n > 0", nil)
	}

	index := m.table.allocate(n)
	data := SimulantData{
		Index:        index,
		UserData:     userData,
		CreationTime: now,
	}

	for _, name := range m.order {
		init, ok := m.initializers[name]
		if !ok {
			continue
		}
		frame, err := init.Fn(data)
		if err != nil {
			m.table.truncate(n)
			return nil, err
		}
		writable := make(map[string]struct{}, len(init.Columns))
		for _, c := range init.Columns {
			writable[c] = struct{}{}
		}
		if err := m.table.write(frame, writable); err != nil {
			m.table.truncate(n)
			return nil, err
		}
	}

	return index, nil
}

// RestoreRows allocates len(frame.Index) fresh rows and writes every
// column frame carries into them, bypassing initializers and the
// writable-column restriction entirely. It exists solely for
// simcontext.Context.Restore, which reconstructs a table from a prior
// Snapshot rather than running CreateSimulants against live components.
func (m *Manager) RestoreRows(frame Frame) ([]SimulantID, error) {
	if err := m.lifecycle.Guard(lifecycle.CreateSimulants); err != nil {
		return nil, err
	}
	n := len(frame.Index)
	if n == 0 {
		return nil, nil
	}
	index := m.table.allocate(n)
	remapped := NewFrame(index)
	remapped.Int64 = frame.Int64
	remapped.Float64 = frame.Float64
	remapped.Bool = frame.Bool
	remapped.String = frame.String
	remapped.Time = frame.Time
	if err := m.table.write(remapped, nil); err != nil {
		m.table.truncate(n)
		return nil, err
	}
	return index, nil
}

// Initializers returns a copy of every registered initializer, keyed by
// name, for the Simulation Context to derive a topological order from the
// resource graph's column ordering.
func (m *Manager) Initializers() map[string]Initializer {
	out := make(map[string]Initializer, len(m.initializers))
	for name, init := range m.initializers {
		out[name] = init
	}
	return out
}

// Table exposes the underlying table for read-only diagnostic access
// (e.g. the Results Manager's gather step, which is granted broader
// access than a component view).
func (m *Manager) Table() *Table {
	return m.table
}
