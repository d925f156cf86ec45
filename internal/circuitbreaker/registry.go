package circuitbreaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry hands out one circuit breaker per delivery provider so that
// fallback chains share failure state across notifications.
type Registry struct {
	mu       sync.Mutex
	logger   *zap.Logger
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker for a provider, creating it with defaults on
// first use.
func (r *Registry) For(provider string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[provider]
	if !ok {
		cb = New(DefaultConfig(provider), r.logger)
		r.breakers[provider] = cb
	}
	return cb
}

// Lookup returns the breaker for a provider without creating one.
func (r *Registry) Lookup(provider string) (*CircuitBreaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[provider]
	return cb, ok
}

// AllStats snapshots every registered breaker for the admin endpoint.
func (r *Registry) AllStats() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]Stats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		stats = append(stats, cb.Stats())
	}
	return stats
}
