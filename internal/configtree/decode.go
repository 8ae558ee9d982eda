package configtree

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/simforge/simforge/pkg/simerrors"
)

// GetString returns the effective value at key as a string.
func (t *Tree) GetString(key string) (string, error) {
	v, err := t.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", simerrors.NewConfigurationError(key, simerrors.ConfigurationInvalid, fmt.Sprintf("expected string, got %T", v), nil)
	}
	return s, nil
}

// GetInt returns the effective value at key as an int.
func (t *Tree) GetInt(key string) (int, error) {
	v, err := t.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, simerrors.NewConfigurationError(key, simerrors.ConfigurationInvalid, fmt.Sprintf("expected int, got %T", v), nil)
	}
}

// GetFloat returns the effective value at key as a float64.
func (t *Tree) GetFloat(key string) (float64, error) {
	v, err := t.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, simerrors.NewConfigurationError(key, simerrors.ConfigurationInvalid, fmt.Sprintf("expected float, got %T", v), nil)
	}
}

// GetBool returns the effective value at key as a bool.
func (t *Tree) GetBool(key string) (bool, error) {
	v, err := t.Get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, simerrors.NewConfigurationError(key, simerrors.ConfigurationInvalid, fmt.Sprintf("expected bool, got %T", v), nil)
	}
	return b, nil
}

// GetStringSlice returns the effective value at key as a []string.
func (t *Tree) GetStringSlice(key string) ([]string, error) {
	v, err := t.Get(key)
	if err != nil {
		return nil, err
	}
	switch s := v.(type) {
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, simerrors.NewConfigurationError(key, simerrors.ConfigurationInvalid, fmt.Sprintf("expected []string, element was %T", item), nil)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, simerrors.NewConfigurationError(key, simerrors.ConfigurationInvalid, fmt.Sprintf("expected []string, got %T", v), nil)
	}
}

// GetStringMap returns the effective sub-tree rooted at key as a nested map.
func (t *Tree) GetStringMap(key string) (map[string]any, error) {
	snapshot, err := t.Snapshot()
	if err != nil {
		return nil, err
	}
	cur := any(snapshot)
	for _, part := range splitDotted(key) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, simerrors.NewConfigurationError(key, simerrors.ConfigurationMissing, "no source has set this key", nil)
		}
		next, ok := m[part]
		if !ok {
			return nil, simerrors.NewConfigurationError(key, simerrors.ConfigurationMissing, "no source has set this key", nil)
		}
		cur = next
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return nil, simerrors.NewConfigurationError(key, simerrors.ConfigurationInvalid, fmt.Sprintf("expected map, got %T", cur), nil)
	}
	return m, nil
}

var validatorInst = validator.New()

// Decode renders the sub-tree rooted at prefix into dst (a pointer to a
// struct with `yaml` tags) by round-tripping through YAML, then runs
// go-playground/validator struct tags against it.
func (t *Tree) Decode(prefix string, dst any) error {
	sub, err := t.GetStringMap(prefix)
	if err != nil {
		return err
	}

	raw, err := yaml.Marshal(sub)
	if err != nil {
		return simerrors.NewConfigurationError(prefix, simerrors.ConfigurationInvalid, "re-encoding sub-tree failed: "+err.Error(), err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return simerrors.NewConfigurationError(prefix, simerrors.ConfigurationInvalid, "decoding into destination failed: "+err.Error(), err)
	}
	if err := validatorInst.Struct(dst); err != nil {
		return simerrors.NewConfigurationError(prefix, simerrors.ConfigurationInvalid, "validation failed: "+err.Error(), err)
	}
	return nil
}

// FieldPath joins dotted path segments into a single dotted key.
func FieldPath(segments ...string) string {
	return strings.Join(segments, ".")
}
