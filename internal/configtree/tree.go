// Package configtree implements the layered, source-provenanced
// configuration store: a hierarchical key/value mapping
// where every leaf remembers every value ever assigned to it and which
// layer assigned it, and becomes read-only after Setup.
package configtree

import (
	"fmt"
	"sort"
	"sync"

	"dario.cat/mergo"

	"github.com/simforge/simforge/pkg/simerrors"
)

type layerDoc struct {
	label string
	data  map[string]any
}

// Tree is the layered configuration store. It is safe for concurrent use.
type Tree struct {
	mu        sync.RWMutex
	frozen    bool
	leaves    map[string][]Source
	layerDocs map[Layer][]layerDoc
}

// New constructs an empty, unfrozen Tree.
func New() *Tree {
	return &Tree{
		leaves:    make(map[string][]Source),
		layerDocs: make(map[Layer][]layerDoc),
	}
}

// Freeze makes the tree read-only. Called by the Simulation Context at the
// Setup→PostSetup boundary.
func (t *Tree) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
}

// Frozen reports whether the tree has been frozen.
func (t *Tree) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}

func (t *Tree) setLeaf(key string, layer Layer, label string, value any, allowConflictCheck bool) error {
	if err := requireNonEmptyKey(key); err != nil {
		return simerrors.NewConfigurationError(key, simerrors.ConfigurationInvalid, err.Error(), err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return simerrors.NewConfigurationError(key, simerrors.ConfigurationFrozen,
			"configuration tree is frozen after setup", nil)
	}

	sources := t.leaves[key]

	if allowConflictCheck {
		for _, s := range sources {
			if s.Layer == layer && s.Label != label && !deepEqual(s.Value, value) {
				return simerrors.NewConfigurationError(key, simerrors.ConfigurationConflict,
					fmt.Sprintf("component %q and %q declared conflicting defaults (%v vs %v)", s.Label, label, s.Value, value), nil)
			}
		}
	}

	// Overwrite an existing source from the same label, else append.
	replaced := false
	for i, s := range sources {
		if s.Layer == layer && s.Label == label {
			sources[i].Value = value
			replaced = true
			break
		}
	}
	if !replaced {
		sources = append(sources, Source{Layer: layer, Label: label, Value: value})
	}
	t.leaves[key] = sources

	doc := map[string]any{}
	nestKey(doc, key, value)
	t.layerDocs[layer] = append(t.layerDocs[layer], layerDoc{label: label, data: doc})

	return nil
}

// SetBuiltinDefault installs a framework-level default. Always the lowest
// priority layer; never conflict-checked (the framework is the sole
// producer of this layer).
func (t *Tree) SetBuiltinDefault(key string, value any) error {
	return t.setLeaf(key, LayerBuiltinDefault, "builtin", value, false)
}

// SetComponentDefault installs a component-declared default. Two
// components declaring the same leaf with different values is a
// registration-time failure.
func (t *Tree) SetComponentDefault(component, key string, value any) error {
	return t.setLeaf(key, LayerComponentDefault, component, value, true)
}

// SetModelOverride installs a value from the model-specification document.
func (t *Tree) SetModelOverride(key string, value any) error {
	return t.setLeaf(key, LayerModelOverride, "model", value, false)
}

// SetRuntimeOverride installs an interactive runtime override (e.g. a CLI
// flag), the highest-priority layer.
func (t *Tree) SetRuntimeOverride(key string, value any) error {
	return t.setLeaf(key, LayerRuntimeOverride, "runtime", value, false)
}

// LoadComponentDefaults flattens a nested document (a component's
// ConfigurationDefaults()) and installs each leaf as a component default.
func (t *Tree) LoadComponentDefaults(component string, doc map[string]any) error {
	for key, value := range flattenedKeys(doc) {
		if err := t.SetComponentDefault(component, key, value); err != nil {
			return err
		}
	}
	return nil
}

// LoadModelOverrides flattens a nested document (the model spec's
// `configuration` section) and installs each leaf as a model override.
func (t *Tree) LoadModelOverrides(doc map[string]any) error {
	for key, value := range flattenedKeys(doc) {
		if err := t.SetModelOverride(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the effective value of key: the value from the
// highest-priority layer that has a source for it. ConfigurationMissing if
// no layer has ever set it.
func (t *Tree) Get(key string) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sources, ok := t.leaves[key]
	if !ok || len(sources) == 0 {
		return nil, simerrors.NewConfigurationError(key, simerrors.ConfigurationMissing, "no source has set this key", nil)
	}

	best := sources[0]
	for _, s := range sources[1:] {
		if s.Layer >= best.Layer {
			best = s
		}
	}
	return best.Value, nil
}

// Repr returns every source ever recorded for key, in layer-priority order
// (lowest first), for provenance debugging.
func (t *Tree) Repr(key string) []Source {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sources := append([]Source(nil), t.leaves[key]...)
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Layer < sources[j].Layer })
	return sources
}

// Snapshot merges every layer's raw nested documents, in priority order,
// into a single nested map — used for whole-subtree decoding and for the
// persisted-state backup hook.
func (t *Tree) Snapshot() (map[string]any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := map[string]any{}
	for layer := LayerBuiltinDefault; layer <= LayerRuntimeOverride; layer++ {
		for _, doc := range t.layerDocs[layer] {
			if err := mergo.Merge(&out, doc.data, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("merge layer %s (%s): %w", layer, doc.label, err)
			}
		}
	}
	return out, nil
}

func deepEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
