// Package modelspec loads the fixed-shape simulation specification
// document `simulate run` takes on the command line: seed, clock bounds,
// population size, and a nested `configuration` tree of per-component
// overrides. Parsing is read file, yaml.Unmarshal, validator.Struct; a
// full arbitrary plugins/components model-specification parser is out
// of scope.
package modelspec

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Spec is the document shape `simulate run <spec>` decodes.
type Spec struct {
	Name           string         `yaml:"name" validate:"required,min=1,max=100"`
	Seed           uint64         `yaml:"seed"`
	Start          time.Time      `yaml:"start" validate:"required"`
	End            time.Time      `yaml:"end" validate:"required,gtfield=Start"`
	Step           string         `yaml:"step" validate:"required"`
	PopulationSize int            `yaml:"population_size" validate:"required,min=1"`
	Configuration  map[string]any `yaml:"configuration,omitempty"`
}

var validate = validator.New()

// Load reads and validates the spec document at path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model spec %s: %w", path, err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse model spec %s: %w", path, err)
	}

	if err := validate.Struct(&spec); err != nil {
		return nil, fmt.Errorf("validate model spec %s: %w", path, err)
	}

	if _, err := spec.StepDuration(); err != nil {
		return nil, fmt.Errorf("model spec %s: %w", path, err)
	}

	return &spec, nil
}

// StepDuration parses the step field (a Go duration string, e.g. "24h").
func (s *Spec) StepDuration() (time.Duration, error) {
	d, err := time.ParseDuration(s.Step)
	if err != nil {
		return 0, fmt.Errorf("invalid step duration %q: %w", s.Step, err)
	}
	return d, nil
}

// ModelOverrides returns the document's configuration tree with
// population_size folded in under the population.size leaf every
// component's ConfigurationDefaults expects, merging rather than
// clobbering any population.* overrides the document itself declares.
func (s *Spec) ModelOverrides() map[string]any {
	overrides := map[string]any{"population": map[string]any{"size": s.PopulationSize}}
	_ = mergo.Merge(&overrides, s.Configuration, mergo.WithOverride)
	return overrides
}
