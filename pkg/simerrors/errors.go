// Package simerrors defines the typed error taxonomy every simforge
// subsystem returns. All kinds are fatal to the current run; nothing in the
// core retries. The Simulation Context returns them unchanged, and the CLI
// entry point converts them to an exit code with ExitCode.
package simerrors

import (
	"fmt"
	"strings"
)

// LifecyclePhaseError reports an operation attempted outside its allowed
// lifecycle phases.
type LifecyclePhaseError struct {
	Operation string
	Current   string
	Allowed   []string
	Component string
}

func NewLifecyclePhaseError(operation, current string, allowed []string, component string) error {
	return &LifecyclePhaseError{Operation: operation, Current: current, Allowed: allowed, Component: component}
}

func (e *LifecyclePhaseError) Error() string {
	if e == nil {
		return ""
	}
	who := e.Component
	if who == "" {
		who = "<framework>"
	}
	return fmt.Sprintf("lifecycle error: %s attempted %q in phase %q; allowed in [%s]",
		who, e.Operation, e.Current, strings.Join(e.Allowed, ", "))
}

// ConfigurationReason distinguishes the kinds of configuration failure
// the configuration layer calls out individually.
type ConfigurationReason int

const (
	ConfigurationMissing ConfigurationReason = iota
	ConfigurationFrozen
	ConfigurationConflict
	ConfigurationInvalid
)

func (r ConfigurationReason) String() string {
	switch r {
	case ConfigurationMissing:
		return "missing"
	case ConfigurationFrozen:
		return "frozen"
	case ConfigurationConflict:
		return "conflict"
	case ConfigurationInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ConfigurationError reports a configuration tree failure.
type ConfigurationError struct {
	Key     string
	Reason  ConfigurationReason
	Message string
	Err     error
}

func NewConfigurationError(key string, reason ConfigurationReason, message string, err error) error {
	return &ConfigurationError{Key: key, Reason: reason, Message: message, Err: err}
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Key != "" {
		return fmt.Sprintf("configuration error [%s] (%s): %s", e.Key, e.Reason, e.Message)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Reason, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ComponentContractError reports a violation of the component contract:
// missing required method, colliding names, non-unique column
// ownership, and similar registration-time mistakes.
type ComponentContractError struct {
	Component string
	Message   string
	Err       error
}

func NewComponentContractError(component, message string, err error) error {
	return &ComponentContractError{Component: component, Message: message, Err: err}
}

func (e *ComponentContractError) Error() string {
	if e == nil {
		return ""
	}
	if e.Component != "" {
		return fmt.Sprintf("component contract error [%s]: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("component contract error: %s", e.Message)
}

func (e *ComponentContractError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnresolvedDependencyError reports a declared resource dependency that
// never resolves to a registered producer.
type UnresolvedDependencyError struct {
	Resource   string
	Dependency string
}

func NewUnresolvedDependencyError(resource, dependency string) error {
	return &UnresolvedDependencyError{Resource: resource, Dependency: dependency}
}

func (e *UnresolvedDependencyError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("unresolved dependency: %s requires %s, which has no producer", e.Resource, e.Dependency)
}

// CyclicDependencyError reports a cycle detected while sorting the resource
// graph (or a reentrant pipeline call cycle, which shares the same shape).
type CyclicDependencyError struct {
	Path []string
}

func NewCyclicDependencyError(path []string) error {
	return &CyclicDependencyError{Path: append([]string(nil), path...)}
}

func (e *CyclicDependencyError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Path, " -> "))
}

// UnsourcedPipelineError reports a pipeline invoked without a registered
// source.
type UnsourcedPipelineError struct {
	Pipeline string
}

func NewUnsourcedPipelineError(pipeline string) error {
	return &UnsourcedPipelineError{Pipeline: pipeline}
}

func (e *UnsourcedPipelineError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("pipeline %q has no registered source", e.Pipeline)
}

// PopulationSchemaError reports an illegal write to the state table: an
// undeclared column, an out-of-view index, or a dtype mismatch.
type PopulationSchemaError struct {
	Column  string
	Message string
}

func NewPopulationSchemaError(column, message string) error {
	return &PopulationSchemaError{Column: column, Message: message}
}

func (e *PopulationSchemaError) Error() string {
	if e == nil {
		return ""
	}
	if e.Column != "" {
		return fmt.Sprintf("population schema error [%s]: %s", e.Column, e.Message)
	}
	return fmt.Sprintf("population schema error: %s", e.Message)
}

// StratificationError reports a stratification mapper producing a value
// outside its declared category set. Strict failure, never coercion.
type StratificationError struct {
	Stratification string
	Value          string
}

func NewStratificationError(stratification, value string) error {
	return &StratificationError{Stratification: stratification, Value: value}
}

func (e *StratificationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("stratification %q: mapper produced invalid category %q", e.Stratification, e.Value)
}

// RandomnessError reports a CRN lookup against an unregistered simulant.
type RandomnessError struct {
	Stream     string
	SimulantID uint64
}

func NewRandomnessError(stream string, simulantID uint64) error {
	return &RandomnessError{Stream: stream, SimulantID: simulantID}
}

func (e *RandomnessError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("randomness error: stream %q queried for unregistered simulant %d", e.Stream, e.SimulantID)
}

// InterpolationError reports a lookup table query outside its bounds with
// extrapolation disabled.
type InterpolationError struct {
	Table   string
	Message string
}

func NewInterpolationError(table, message string) error {
	return &InterpolationError{Table: table, Message: message}
}

func (e *InterpolationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("interpolation error [%s]: %s", e.Table, e.Message)
}
