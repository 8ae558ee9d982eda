package main

import (
	"github.com/simforge/simforge/internal/examples/mortality"
	"github.com/simforge/simforge/internal/modelspec"
	"github.com/simforge/simforge/internal/simcontext"
)

// bundledComponents returns the fixed component set `simulate run` wires.
// A dynamically loaded plugin registry is out of scope; the component
// set is compiled in.
func bundledComponents(spec *modelspec.Spec) ([]simcontext.Component, error) {
	stepYears, err := spec.StepDuration()
	if err != nil {
		return nil, err
	}
	return []simcontext.Component{
		mortality.New(stepYears.Hours() / 24 / 365.25),
	}, nil
}
