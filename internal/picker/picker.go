// Package picker decides which submodule and exercise type a session asks
// next. Strategies are pluggable and can be switched at runtime.
package picker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/catalog"
)

// HistoryEntry is one answered step of the current session.
type HistoryEntry struct {
	SubmoduleID string
	SchemaID    string
	IsCorrect   bool
}

// PickContext is the input to a strategy.
type PickContext struct {
	ModuleID       string
	TargetLanguage string
	History        []HistoryEntry
}

// Pick is a strategy's decision.
type Pick struct {
	SubmoduleID string
	SchemaID    string
}

// Strategy selects the next step for a session.
type Strategy interface {
	PickNext(ctx context.Context, pc PickContext) (Pick, error)
}

// ModuleSource looks up modules by id.
type ModuleSource interface {
	Module(id string) (catalog.Module, error)
}

// Rand is the randomness a RandomStrategy draws from. *rand.Rand
// satisfies it.
type Rand interface {
	IntN(n int) int
}

// RandomStrategy picks a submodule uniformly, then a schema uniformly from
// that submodule's supported set.
type RandomStrategy struct {
	modules ModuleSource

	mu  sync.Mutex
	rnd Rand
}

// NewRandomStrategy creates a RandomStrategy. A nil rnd uses a randomly
// seeded PCG source.
func NewRandomStrategy(modules ModuleSource, rnd Rand) *RandomStrategy {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomStrategy{modules: modules, rnd: rnd}
}

// NewSeededRandomStrategy creates a RandomStrategy with a reproducible
// sequence.
func NewSeededRandomStrategy(modules ModuleSource, seed uint64) *RandomStrategy {
	return NewRandomStrategy(modules, rand.New(rand.NewPCG(seed, seed)))
}

// PickNext implements Strategy.
func (s *RandomStrategy) PickNext(ctx context.Context, pc PickContext) (Pick, error) {
	if err := ctx.Err(); err != nil {
		return Pick{}, err
	}
	mod, err := s.modules.Module(pc.ModuleID)
	if err != nil {
		return Pick{}, err
	}
	if len(mod.Submodules) == 0 {
		return Pick{}, apperr.Configf("module "+mod.ID, "has no submodules")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := mod.Submodules[s.rnd.IntN(len(mod.Submodules))]
	if len(sub.SchemaIDs) == 0 {
		return Pick{}, apperr.Configf(fmt.Sprintf("submodule %s/%s", mod.ID, sub.ID), "supports no interaction schemas")
	}
	schemaID := sub.SchemaIDs[s.rnd.IntN(len(sub.SchemaIDs))]

	return Pick{SubmoduleID: sub.ID, SchemaID: schemaID}, nil
}

// AdaptiveStrategy is reserved for history-driven selection. It currently
// behaves exactly like the strategy it wraps.
type AdaptiveStrategy struct {
	fallback Strategy
}

// NewAdaptiveStrategy wraps fallback.
func NewAdaptiveStrategy(fallback Strategy) *AdaptiveStrategy {
	return &AdaptiveStrategy{fallback: fallback}
}

// PickNext implements Strategy.
func (s *AdaptiveStrategy) PickNext(ctx context.Context, pc PickContext) (Pick, error) {
	return s.fallback.PickNext(ctx, pc)
}

// Strategy names registered by NewDefaultRegistry.
const (
	StrategyRandom   = "random"
	StrategyAdaptive = "adaptive"
)

// Registry maps names to strategies and dispatches to the active one. It
// is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	active     string
}

// NewRegistry creates a registry whose default strategy is def, registered
// under name.
func NewRegistry(name string, def Strategy) *Registry {
	return &Registry{
		strategies: map[string]Strategy{name: def},
		active:     name,
	}
}

// NewDefaultRegistry registers the random and adaptive strategies with
// random active.
func NewDefaultRegistry(modules ModuleSource, rnd Rand) *Registry {
	random := NewRandomStrategy(modules, rnd)
	r := NewRegistry(StrategyRandom, random)
	r.Register(StrategyAdaptive, NewAdaptiveStrategy(random))
	return r
}

// Register adds or replaces a named strategy.
func (r *Registry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = s
}

// Use makes the named strategy active for subsequent picks.
func (r *Registry) Use(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[name]; !ok {
		return apperr.Configf("picker strategy "+name, "not registered")
	}
	r.active = name
	return nil
}

// Active returns the name of the active strategy.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PickNext dispatches to the active strategy.
func (r *Registry) PickNext(ctx context.Context, pc PickContext) (Pick, error) {
	r.mu.RLock()
	s := r.strategies[r.active]
	r.mu.RUnlock()
	return s.PickNext(ctx, pc)
}
