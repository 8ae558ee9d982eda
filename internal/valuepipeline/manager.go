package valuepipeline

import (
	"context"

	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/pkg/simerrors"
)

type callStackKey struct{}

// Manager owns every registered pipeline and mediates Call dispatch,
// reentrant-cycle detection, and registration-phase guarding.
type Manager struct {
	lifecycle *lifecycle.Manager
	pipelines map[string]*Pipeline
}

// New constructs an empty Manager.
func New(lifecycleMgr *lifecycle.Manager) *Manager {
	return &Manager{lifecycle: lifecycleMgr, pipelines: make(map[string]*Pipeline)}
}

// Declare registers a new named pipeline (source optional; may be set
// later via SetSource, e.g. by a different component than the one
// declaring modifiers). Only allowed pre-PostSetup.
func (m *Manager) Declare(name string) (*Pipeline, error) {
	if err := m.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return nil, err
	}
	if _, exists := m.pipelines[name]; exists {
		return nil, simerrors.NewComponentContractError(name, "pipeline already declared", nil)
	}
	p := &Pipeline{Name: name}
	m.pipelines[name] = p
	return p, nil
}

// SetSource installs name's source callable.
func (m *Manager) SetSource(name string, source Source) error {
	if err := m.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return err
	}
	p, ok := m.pipelines[name]
	if !ok {
		return simerrors.NewComponentContractError(name, "pipeline not declared", nil)
	}
	p.Source = source
	return nil
}

// AddModifier appends a modifier to name in registration order. Priority
// affects only declared dependency ordering, never combiner order — the
// combiner always folds modifiers in the order they were added here.
func (m *Manager) AddModifier(name string, modifier Modifier) error {
	if err := m.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return err
	}
	p, ok := m.pipelines[name]
	if !ok {
		return simerrors.NewComponentContractError(name, "pipeline not declared", nil)
	}
	p.Modifiers = append(p.Modifiers, modifier)
	return nil
}

// SetCombinerAndPostProcessor finalizes name's combining/post-processing
// behavior.
func (m *Manager) SetCombinerAndPostProcessor(name string, combiner Combiner, post PostProcessor) error {
	if err := m.lifecycle.Guard(lifecycle.RegisterResource); err != nil {
		return err
	}
	p, ok := m.pipelines[name]
	if !ok {
		return simerrors.NewComponentContractError(name, "pipeline not declared", nil)
	}
	p.Combiner = combiner
	p.PostProcessor = post
	return nil
}

// Call invokes name over idx, folding its modifiers per its combiner and
// applying its post-processor. Reentrant calls form a cycle if name
// reappears on the in-flight call stack carried on ctx.
func (m *Manager) Call(ctx context.Context, name string, idx []population.SimulantID, args ...population.Frame) (population.Frame, error) {
	if err := m.lifecycle.Guard(lifecycle.CallPipeline); err != nil {
		return population.Frame{}, err
	}

	stack, _ := ctx.Value(callStackKey{}).([]string)
	for _, inFlight := range stack {
		if inFlight == name {
			return population.Frame{}, simerrors.NewCyclicDependencyError(append(append([]string(nil), stack...), name))
		}
	}

	p, ok := m.pipelines[name]
	if !ok || p.Source == nil {
		return population.Frame{}, simerrors.NewUnsourcedPipelineError(name)
	}

	childCtx := context.WithValue(ctx, callStackKey{}, append(append([]string(nil), stack...), name))

	value, err := p.Source(childCtx, idx, args...)
	if err != nil {
		return population.Frame{}, err
	}

	switch p.Combiner {
	case ReplaceCombiner:
		for _, mod := range p.Modifiers {
			value, err = mod.Fn(childCtx, idx, value, args...)
			if err != nil {
				return population.Frame{}, err
			}
		}
	case ListCombiner:
		for _, mod := range p.Modifiers {
			out, err := mod.Fn(childCtx, idx, population.Frame{}, args...)
			if err != nil {
				return population.Frame{}, err
			}
			value = appendListFrame(value, out)
		}
	}

	return applyPostProcessor(p.PostProcessor, value), nil
}

// appendListFrame merges out's float64 columns into base as additional
// list entries, used by ListCombiner pipelines (e.g. a set of independent
// competing-risk probabilities feeding a Union post-processor).
func appendListFrame(base, out population.Frame) population.Frame {
	for name, values := range out.Float64 {
		base.Float64[name] = append(base.Float64[name], values...)
	}
	return base
}

func applyPostProcessor(post PostProcessor, value population.Frame) population.Frame {
	switch post.Kind {
	case Rescale:
		return rescaleFrame(post.Formula, value)
	case Union:
		return unionFrame(value)
	default:
		return value
	}
}
