// Package circuitbreaker keeps failing delivery providers out of the
// fallback chain. Each provider gets its own breaker; when one trips,
// sends skip straight to the next provider instead of burning a
// delivery attempt on a service that is already down.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker's position in its lifecycle.
//
//	Closed    -> Open      after MaxFailures consecutive failures
//	Open      -> HalfOpen  once RecoveryTimeout has elapsed
//	HalfOpen  -> Closed    when the probe send succeeds
//	HalfOpen  -> Open      when the probe send fails
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen signals that a provider is being skipped because its
// breaker has tripped.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config tunes a single provider's breaker.
type Config struct {
	// Name is the provider key ("postmark", "twilio", "fcm", ...).
	Name string

	// MaxFailures trips the breaker after this many failures in a row.
	MaxFailures int

	// RecoveryTimeout is how long the provider stays benched before a
	// probe send is let through.
	RecoveryTimeout time.Duration

	// HalfOpenMaxRequests caps concurrent probes while half-open.
	HalfOpenMaxRequests int
}

// DefaultConfig covers typical messaging-provider outages: five strikes,
// thirty seconds on the bench, one probe at a time.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxFailures:         5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// CircuitBreaker tracks consecutive failures for one provider and
// decides whether the fallback chain should bother calling it.
type CircuitBreaker struct {
	mu     sync.RWMutex
	config Config
	logger *zap.Logger
	now    func() time.Time

	state     State
	failures  int
	lastFail  time.Time
	changedAt time.Time
	probes    int

	seen      int64
	succeeded int64
	failed    int64
	rejected  int64
}

// New builds a breaker, filling zero config fields from DefaultConfig.
func New(cfg Config, logger *zap.Logger) *CircuitBreaker {
	def := DefaultConfig(cfg.Name)
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}

	return &CircuitBreaker{
		config:    cfg,
		logger:    logger,
		now:       time.Now,
		state:     StateClosed,
		changedAt: time.Now(),
	}
}

// Name returns the provider key this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Allow reports whether the next send may go to this provider. While
// open it also handles the open->half-open transition once the
// recovery timeout has passed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.seen++

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.now().Sub(cb.lastFail) < cb.config.RecoveryTimeout {
			cb.rejected++
			return false
		}
		cb.setState(StateHalfOpen)
		cb.probes = 1
		cb.logger.Info("letting probe send through to benched provider",
			zap.String("provider", cb.config.Name),
		)
		return true

	case StateHalfOpen:
		if cb.probes >= cb.config.HalfOpenMaxRequests {
			cb.rejected++
			return false
		}
		cb.probes++
		return true
	}

	return false
}

// RecordSuccess clears the failure streak. A success while half-open
// means the provider is back, so the breaker closes.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.succeeded++
	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
		cb.logger.Info("provider recovered, breaker closed",
			zap.String("provider", cb.config.Name),
		)
	}
}

// RecordFailure extends the failure streak. Hitting MaxFailures while
// closed trips the breaker; any failure while half-open re-trips it.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failed++
	cb.failures++
	cb.lastFail = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
			cb.logger.Warn("provider tripped breaker, benching it",
				zap.String("provider", cb.config.Name),
				zap.Int("consecutive_failures", cb.failures),
				zap.Int("threshold", cb.config.MaxFailures),
				zap.Duration("bench_for", cb.config.RecoveryTimeout),
			)
		}

	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.Warn("probe send failed, provider stays benched",
			zap.String("provider", cb.config.Name),
		)
	}
}

// GetState returns the breaker's current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats is a point-in-time snapshot for the admin endpoint.
type Stats struct {
	Name            string `json:"name"`
	State           string `json:"state"`
	FailureCount    int    `json:"failure_count"`
	TotalRequests   int64  `json:"total_requests"`
	TotalFailures   int64  `json:"total_failures"`
	TotalSuccesses  int64  `json:"total_successes"`
	TotalRejected   int64  `json:"total_rejected"`
	LastFailure     string `json:"last_failure,omitempty"`
	LastStateChange string `json:"last_state_change"`
}

// Stats snapshots the breaker's counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	s := Stats{
		Name:            cb.config.Name,
		State:           cb.state.String(),
		FailureCount:    cb.failures,
		TotalRequests:   cb.seen,
		TotalFailures:   cb.failed,
		TotalSuccesses:  cb.succeeded,
		TotalRejected:   cb.rejected,
		LastStateChange: cb.changedAt.Format(time.RFC3339),
	}
	if !cb.lastFail.IsZero() {
		s.LastFailure = cb.lastFail.Format(time.RFC3339)
	}
	return s
}

// Reset forces the breaker closed. Operator override for when a
// provider incident is known to be over.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.failures = 0
	cb.probes = 0

	cb.logger.Info("breaker reset by operator",
		zap.String("provider", cb.config.Name),
	)
}

// setState records a transition. Caller holds cb.mu.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}

	prev := cb.state
	cb.state = next
	cb.changedAt = cb.now()
	cb.probes = 0

	cb.logger.Debug("breaker state change",
		zap.String("provider", cb.config.Name),
		zap.Stringer("from", prev),
		zap.Stringer("to", next),
	)
}
