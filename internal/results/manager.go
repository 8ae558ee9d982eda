package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/pkg/simerrors"
)

// accumulatorFile is the on-disk shape persisted via an atomic
// temp-file-then-rename write.
type accumulatorFile struct {
	Version      string                         `json:"version"`
	Accumulators map[string]accumulatorSnapshot `json:"accumulators"`
}

type accumulatorSnapshot struct {
	Float64Columns map[string][]float64 `json:"float64_columns"`
}

// Manager owns every registered stratification and observation and
// mediates gather/report/persistence.
type Manager struct {
	mu              sync.RWMutex
	lifecycle       *lifecycle.Manager
	stratifications map[string]Stratification
	observations    map[string]Observation
	accumulators    map[string]population.Frame // key: observation name + "\x1f" + stratum
	gauges          map[string]*prometheus.GaugeVec
}

// New constructs an empty Manager.
func New(lifecycleMgr *lifecycle.Manager) *Manager {
	return &Manager{
		lifecycle:       lifecycleMgr,
		stratifications: make(map[string]Stratification),
		observations:    make(map[string]Observation),
		accumulators:    make(map[string]population.Frame),
		gauges:          make(map[string]*prometheus.GaugeVec),
	}
}

// RegisterStratification validates and records s. Setup only.
func (m *Manager) RegisterStratification(s Stratification) error {
	if err := m.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.stratifications[s.Name]; exists {
		return simerrors.NewComponentContractError(s.Name, "stratification already registered", nil)
	}
	m.stratifications[s.Name] = s
	return nil
}

// RegisterObservation validates and records o. Setup only.
func (m *Manager) RegisterObservation(o Observation) error {
	if err := m.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return err
	}
	if err := o.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.observations[o.Name]; exists {
		return simerrors.NewComponentContractError(o.Name, "observation already registered", nil)
	}
	m.observations[o.Name] = o
	return nil
}

// Gather runs every observation whose When matches phase over pop.
func (m *Manager) Gather(ctx context.Context, phase lifecycle.Phase, pop population.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, obs := range m.observations {
		if obs.When != phase {
			continue
		}

		filtered := pop
		if obs.PopFilter != nil {
			idx := obs.PopFilter(pop)
			filtered = restrictFrame(pop, idx)
		}

		strata, err := m.stratumKeysForFrame(obs, filtered)
		if err != nil {
			return err
		}

		for stratum, rowIdx := range strata {
			rowFrame := restrictFrame(filtered, rowIdx)
			gathered, err := obs.Gatherer(rowFrame)
			if err != nil {
				return err
			}

			key := obs.Name + "\x1f" + stratum
			prior, ok := m.accumulators[key]
			if !ok {
				prior = population.NewFrame(nil)
			}
			updated, err := obs.Updater(prior, gathered)
			if err != nil {
				return err
			}
			m.accumulators[key] = updated
		}
	}
	return nil
}

// stratumKeysForFrame computes, per row, the cross-product stratum key of
// obs's declared stratifications, hashed with xxhash for map-key
// compactness, and groups row indices by that key. Rows whose stratum
// falls in any declared stratification's excluded-category set are
// dropped from this observation's grouping but remain untouched in the
// frame for other observations.
func (m *Manager) stratumKeysForFrame(obs Observation, frame population.Frame) (map[string][]population.SimulantID, error) {
	if len(obs.Stratifications) == 0 {
		return map[string][]population.SimulantID{"": frame.Index}, nil
	}

	groups := make(map[string][]population.SimulantID)
	for _, idx := range frame.Index {
		var parts []string
		excludedRow := false

		for _, stratName := range obs.Stratifications {
			strat, ok := m.stratifications[stratName]
			if !ok {
				return nil, simerrors.NewComponentContractError(obs.Name, "references unregistered stratification \""+stratName+"\"", nil)
			}
			rowFrame := restrictFrame(frame, []population.SimulantID{idx})
			categories, err := strat.Mapper(rowFrame)
			if err != nil {
				return nil, err
			}
			if len(categories) == 0 {
				return nil, simerrors.NewStratificationError(strat.Name, "")
			}
			category := categories[0]
			if !strat.validCategory(category) {
				return nil, simerrors.NewStratificationError(strat.Name, category)
			}
			if strat.excluded(category) {
				excludedRow = true
				break
			}
			parts = append(parts, category)
		}

		if excludedRow {
			continue
		}

		h := xxhash.New()
		_, _ = h.WriteString(strings.Join(parts, "\x1f"))
		key := fmt.Sprintf("%x", h.Sum64())
		groups[key] = append(groups[key], idx)
	}
	return groups, nil
}

func restrictFrame(frame population.Frame, idx []population.SimulantID) population.Frame {
	out := population.NewFrame(idx)

	positionOf := make(map[population.SimulantID]int, len(frame.Index))
	for j, fid := range frame.Index {
		positionOf[fid] = j
	}

	for name, values := range frame.Float64 {
		sub := make([]float64, len(idx))
		for i, id := range idx {
			if j, ok := positionOf[id]; ok {
				sub[i] = values[j]
			}
		}
		out.Float64[name] = sub
	}
	for name, values := range frame.Int64 {
		sub := make([]int64, len(idx))
		for i, id := range idx {
			if j, ok := positionOf[id]; ok {
				sub[i] = values[j]
			}
		}
		out.Int64[name] = sub
	}
	for name, values := range frame.Bool {
		sub := make([]bool, len(idx))
		for i, id := range idx {
			if j, ok := positionOf[id]; ok {
				sub[i] = values[j]
			}
		}
		out.Bool[name] = sub
	}
	for name, values := range frame.String {
		sub := make([]string, len(idx))
		for i, id := range idx {
			if j, ok := positionOf[id]; ok {
				sub[i] = values[j]
			}
		}
		out.String[name] = sub
	}
	for name, values := range frame.Time {
		sub := make([]time.Time, len(idx))
		for i, id := range idx {
			if j, ok := positionOf[id]; ok {
				sub[i] = values[j]
			}
		}
		out.Time[name] = sub
	}

	return out
}

// Report runs every observation's formatter over its accumulated strata.
func (m *Manager) Report() (map[string]Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Table, len(m.observations))
	for name, obs := range m.observations {
		var keys []string
		for key := range m.accumulators {
			if strings.HasPrefix(key, name+"\x1f") {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)

		var combined Table
		for _, key := range keys {
			table, err := obs.Formatter(m.accumulators[key])
			if err != nil {
				return nil, err
			}
			if combined.Columns == nil {
				combined.Columns = table.Columns
			}
			combined.Rows = append(combined.Rows, table.Rows...)
		}
		out[name] = combined
	}
	return out, nil
}

// BindMetrics registers a GaugeVec, labelled by stratum key, for every
// registered observation not already bound. It sets no values;
// RefreshMetrics does. The Simulation Context calls it once, after
// PostSetup, when a metrics registry is configured.
func (m *Manager) BindMetrics(reg prometheus.Registerer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range m.observations {
		if _, exists := m.gauges[name]; exists {
			continue
		}
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simforge_observation_" + sanitizeMetricName(name),
			Help: "Accumulated value for observation " + name,
		}, []string{"stratum"})
		if err := reg.Register(gauge); err != nil {
			return fmt.Errorf("registering metric for observation %q: %w", name, err)
		}
		m.gauges[name] = gauge
	}
	return nil
}

// RefreshMetrics pushes the current accumulator totals into the bound
// gauges.
func (m *Manager) RefreshMetrics() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for key, accum := range m.accumulators {
		parts := strings.SplitN(key, "\x1f", 2)
		name, stratum := parts[0], ""
		if len(parts) > 1 {
			stratum = parts[1]
		}
		gauge, ok := m.gauges[name]
		if !ok {
			continue
		}
		for _, values := range accum.Float64 {
			if len(values) > 0 {
				gauge.WithLabelValues(stratum).Set(values[0])
			}
		}
	}
}

func sanitizeMetricName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// SnapshotAccumulators returns a copy of every observation's in-flight
// accumulator, keyed as Save does, for simcontext.Context.Snapshot.
func (m *Manager) SnapshotAccumulators() map[string]population.Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]population.Frame, len(m.accumulators))
	for k, v := range m.accumulators {
		out[k] = v
	}
	return out
}

// RestoreAccumulators installs accumulator state captured by a prior
// SnapshotAccumulators, for simcontext.Context.Restore. Stratification
// and observation definitions themselves are re-registered by the
// restored components' Setup hooks, not carried in the snapshot.
func (m *Manager) RestoreAccumulators(state map[string]population.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accumulators = make(map[string]population.Frame, len(state))
	for k, v := range state {
		m.accumulators[k] = v
	}
}

// Save persists the accumulator state atomically (write-temp, then
// os.Rename).
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file := accumulatorFile{Version: "1.0", Accumulators: make(map[string]accumulatorSnapshot, len(m.accumulators))}
	for key, frame := range m.accumulators {
		file.Accumulators[key] = accumulatorSnapshot{Float64Columns: frame.Float64}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temporary results file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temporary results file: %w", err)
	}
	return nil
}

// Load restores accumulator state previously written by Save.
func (m *Manager) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file accumulatorFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse results snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accumulators = make(map[string]population.Frame, len(file.Accumulators))
	for key, snapshot := range file.Accumulators {
		m.accumulators[key] = population.Frame{Float64: snapshot.Float64Columns}
	}
	return nil
}
