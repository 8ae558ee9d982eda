// Package randomness implements the Common Random Numbers service:
// keyed, reproducible per-simulant draws built on
// github.com/cespare/xxhash/v2 rather than a stateful PRNG per stream,
// so that two counterfactual runs sharing a seed and key-column set make
// identical draws for the same simulant at every stream/additional-key
// pair.
package randomness

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/simforge/simforge/pkg/simerrors"
)

// SimulantID mirrors population.SimulantID without importing the
// population package.
type SimulantID = uint64

// KeyTuple is the ordered set of values (matching Options.KeyColumns) that
// uniquely identify a simulant across counterfactual runs.
type KeyTuple []string

// Options configures a Manager. There is no package-level singleton
// — every SimulationContext
// constructs and owns its own Manager.
type Options struct {
	Seed       uint64
	KeyColumns []string
}

// Manager is the Common Random Numbers registry and stream factory.
type Manager struct {
	seed       uint64
	keyColumns []string

	crnMap  map[SimulantID]uint64
	keyToID map[string]SimulantID
}

// New constructs a Manager from opts.
func New(opts Options) *Manager {
	return &Manager{
		seed:       opts.Seed,
		keyColumns: append([]string(nil), opts.KeyColumns...),
		crnMap:     make(map[SimulantID]uint64),
		keyToID:    make(map[string]SimulantID),
	}
}

// KeyColumns returns the configured key-column tuple.
func (m *Manager) KeyColumns() []string {
	return append([]string(nil), m.keyColumns...)
}

func joinKey(key KeyTuple) string {
	return strings.Join(key, "\x1f")
}

// Register maps idx's key tuple into the CRN map. Re-registering the same simulant with the same key is a no-op
// (contract c). Two distinct simulants mapping to the same key string is
// rejected — keys must be unique per simulant.
func (m *Manager) Register(idx SimulantID, key KeyTuple) error {
	joined := joinKey(key)

	if existingID, ok := m.keyToID[joined]; ok {
		if existingID == idx {
			return nil
		}
		return simerrors.NewComponentContractError("randomness",
			fmt.Sprintf("CRN key %q already registered to simulant %d, cannot also register to %d", joined, existingID, idx), nil)
	}

	if _, ok := m.crnMap[idx]; ok {
		return nil
	}

	h := xxhash.New()
	_, _ = h.WriteString(fmt.Sprintf("%d:", m.seed))
	_, _ = h.WriteString(joined)
	m.crnMap[idx] = h.Sum64()
	m.keyToID[joined] = idx
	return nil
}

// Registered reports whether idx has a CRN map entry.
func (m *Manager) Registered(idx SimulantID) bool {
	_, ok := m.crnMap[idx]
	return ok
}

// Stream returns a named keyed PRNG. Streams are stateless views over the
// Manager — constructing one does not register it anywhere.
func (m *Manager) Stream(name string) Stream {
	return Stream{manager: m, name: name}
}

// BootstrapStream returns a stream exempt from CRN-map registration
// (contract a): it hashes the process seed, stream name, and simulant
// index directly, used by initializers that assign the key columns
// themselves (e.g. entrance_time) before a simulant can be registered.
func (m *Manager) BootstrapStream(name string) Stream {
	return Stream{manager: m, name: name, bootstrap: true}
}

// State is the JSON-serializable snapshot of a Manager's registration
// table, for simcontext.Context.Snapshot/Restore.
type State struct {
	Seed       uint64                `json:"seed"`
	KeyColumns []string              `json:"key_columns"`
	CRNMap     map[SimulantID]uint64 `json:"crn_map"`
	KeyToID    map[string]SimulantID `json:"key_to_id"`
}

// Snapshot captures the Manager's full registration state.
func (m *Manager) Snapshot() State {
	crnMap := make(map[SimulantID]uint64, len(m.crnMap))
	for k, v := range m.crnMap {
		crnMap[k] = v
	}
	keyToID := make(map[string]SimulantID, len(m.keyToID))
	for k, v := range m.keyToID {
		keyToID[k] = v
	}
	return State{Seed: m.seed, KeyColumns: m.KeyColumns(), CRNMap: crnMap, KeyToID: keyToID}
}

// RestoreState installs a prior Snapshot's registration table into an
// existing Manager, for simcontext.Context.Restore.
func (m *Manager) RestoreState(state State) {
	m.seed = state.Seed
	m.keyColumns = append([]string(nil), state.KeyColumns...)
	m.crnMap = make(map[SimulantID]uint64, len(state.CRNMap))
	for k, v := range state.CRNMap {
		m.crnMap[k] = v
	}
	m.keyToID = make(map[string]SimulantID, len(state.KeyToID))
	for k, v := range state.KeyToID {
		m.keyToID[k] = v
	}
}

// Stream is a named keyed PRNG bound to a Manager.
type Stream struct {
	manager   *Manager
	name      string
	bootstrap bool
}

// Draw returns a uniform(0,1) draw for idx, keyed additionally by
// additionalKey (e.g. an event name or loop counter) so that multiple
// draws per simulant per stream don't collide. Unregistered simulants on
// a non-bootstrap stream fail (contract d).
func (s Stream) Draw(idx SimulantID, additionalKey string) (float64, error) {
	var seedMaterial uint64

	if s.bootstrap {
		h := xxhash.New()
		_, _ = h.WriteString(fmt.Sprintf("%d:%s:%d:%s", s.manager.seed, s.name, idx, additionalKey))
		seedMaterial = h.Sum64()
	} else {
		crnValue, ok := s.manager.crnMap[idx]
		if !ok {
			return 0, simerrors.NewRandomnessError(s.name, idx)
		}
		h := xxhash.New()
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], crnValue)
		_, _ = h.Write(buf[:])
		_, _ = h.WriteString(":" + s.name + ":" + additionalKey)
		seedMaterial = h.Sum64()
	}

	// Standard uint64-to-[0,1) mapping: divide by 2^64. Division by a
	// float64 constant avoids the rounding edge case of shifting into
	// the mantissa directly.
	return float64(seedMaterial) / float64(1<<64), nil
}

// Name returns the stream's name.
func (s Stream) Name() string {
	return s.name
}
