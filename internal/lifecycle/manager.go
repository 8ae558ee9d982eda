// Package lifecycle enforces the strict phase state machine every other
// manager calls Guard against before mutating state; the Simulation
// Context alone drives Transition.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/simforge/simforge/pkg/simerrors"
)

// Manager owns the current phase and the identity of the component whose
// hook is presently executing, for diagnostic provenance.
type Manager struct {
	mu            sync.RWMutex
	phase         Phase
	component     string
	transitioning bool
}

// NewManager constructs a Manager starting in Initialization.
func NewManager() *Manager {
	return &Manager{phase: Initialization}
}

// Phase returns the current phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// CurrentComponent returns the name of the component currently executing a
// hook, or "" if none.
func (m *Manager) CurrentComponent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.component
}

// EnterComponent records which component is executing for the duration of
// fn, restoring the previous value afterward (hooks may nest, e.g. an
// event listener dispatched by the bus from inside another component's
// hook).
func (m *Manager) EnterComponent(name string, fn func() error) error {
	m.mu.Lock()
	prev := m.component
	m.component = name
	m.mu.Unlock()

	err := fn()

	m.mu.Lock()
	m.component = prev
	m.mu.Unlock()

	return err
}

// Guard returns a LifecyclePhaseError if op is not permitted in the current
// phase.
func (m *Manager) Guard(op OperationKind) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !phaseAllowed(op, m.phase) {
		return simerrors.NewLifecyclePhaseError(op.String(), m.phase.String(), phaseNamesOf(AllowedIn(op)), m.component)
	}
	return nil
}

// Transition moves the manager to next. It refuses a transition that
// starts while another transition for this Manager is still updating the
// phase, failing fast rather than corrupting phase state. Transition
// itself runs no hooks.
func (m *Manager) Transition(next Phase) error {
	m.mu.Lock()
	if m.transitioning {
		m.mu.Unlock()
		return simerrors.NewComponentContractError(m.component,
			fmt.Sprintf("recursive lifecycle transition to %s attempted while already transitioning", next), nil)
	}
	m.transitioning = true
	prev := m.phase
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.transitioning = false
		m.mu.Unlock()
	}()

	_ = prev
	m.mu.Lock()
	m.phase = next
	m.mu.Unlock()
	return nil
}
