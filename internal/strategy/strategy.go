// Package strategy defines the Strategy interface consumed by the engine and
// a Registry for managing multiple strategy implementations.
package strategy

import (
	"context"
	"sort"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// Strategy is the interface all trading strategies implement. A strategy may
// hold internal state across calls but must not perform I/O; the engine owns
// all broker interaction.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup before the strategy begins processing
	// market data.
	Init(ctx context.Context) error

	// OnBar is called once per symbol per cycle with the latest bars keyed by
	// symbol. It returns zero or more signals. The engine never calls OnBar
	// concurrently for the same strategy instance.
	OnBar(ctx context.Context, now time.Time, bars map[string]domain.Bar) ([]domain.Signal, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
