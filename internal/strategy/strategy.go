// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"fmt"
	"sort"

	"quantbt/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
// Implementations are stateless between runs: the engine constructs a fresh
// instance per simulation via the Registry.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Params returns the resolved parameter values this instance runs with.
	Params() map[string]float64

	// MinHistory returns the number of bars required before OnBar can
	// produce meaningful output.
	MinHistory() int

	// Precompute enriches the bar sequence with indicator values in one
	// vectorized pass before the event loop starts. It returns a new
	// slice; the input is not mutated.
	Precompute(bars []domain.Bar) []domain.Bar

	// OnBar evaluates the most recent bar against a read-only window of
	// preceding bars (window[len-1] is the current bar). It returns nil
	// or a single signal.
	OnBar(window []domain.Bar) *domain.SignalEvent
}

// ParamType discriminates integer from float search dimensions.
type ParamType string

const (
	ParamInt   ParamType = "int"
	ParamFloat ParamType = "float"
)

// ParamDef describes one tunable parameter: its default value and, when
// Optimizable, the low/high/step grid the optimizer samples from.
type ParamDef struct {
	Name        string
	Type        ParamType
	Default     float64
	Low         float64
	High        float64
	Step        float64
	Optimizable bool
}

// MergeDefaults resolves a full parameter map from defs, with values in
// overrides taking precedence. Unknown override keys are carried through so
// strategies can accept ad hoc parameters.
func MergeDefaults(defs []ParamDef, overrides map[string]float64) map[string]float64 {
	merged := make(map[string]float64, len(defs)+len(overrides))
	for _, d := range defs {
		merged[d.Name] = d.Default
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Factory builds a strategy instance from resolved parameters.
type Factory func(params map[string]float64) (Strategy, error)

// Entry couples a strategy factory with its parameter space.
type Entry struct {
	Factory Factory
	Defs    []ParamDef
}

// Registry holds named strategy constructors. Lookup happens once at
// configuration time; the hot loop only ever sees a concrete Strategy value.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Register adds a strategy constructor under the given name.
func (r *Registry) Register(name string, e Entry) {
	r.entries[name] = e
}

// Build constructs the named strategy with defaults merged under params.
func (r *Registry) Build(name string, params map[string]float64) (Strategy, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return e.Factory(MergeDefaults(e.Defs, params))
}

// Defs returns the parameter space for the named strategy.
func (r *Registry) Defs(name string) ([]ParamDef, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return e.Defs, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
