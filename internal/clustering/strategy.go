// Package clustering partitions cleaned comments into topical clusters.
package clustering

import (
	"context"
	"fmt"
	"sort"
)

// Result is the outcome of one clustering run over a batch of documents.
type Result struct {
	// Assignments has one cluster id per input document, in input order.
	Assignments []int
	// TopTerms lists the most characteristic terms per cluster id.
	TopTerms [][]string
	Inertia  float64
}

// Strategy captures a single vectorize-then-partition implementation.
type Strategy interface {
	Name() string
	Cluster(ctx context.Context, docs []string, nClusters int) (Result, error)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[strategy.Name()] = strategy
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("clustering strategy %s is not registered (known: %v)", name, r.Names())
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
