// Package channel contains the per-channel delivery adapters and the
// provider fallback chains behind them.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketfleet/courier/internal/db"
)

// Result is the outcome of dispatching one channel of a notification.
type Result struct {
	Success           bool
	Provider          string
	ProviderMessageID string
	Error             string
	ErrorCode         string

	// Transient marks failures worth retrying (provider outage,
	// timeout). Validation failures such as a missing address are
	// permanent: retrying cannot fix them.
	Transient bool
}

// Adapter dispatches notifications on a single channel.
type Adapter interface {
	Channel() db.Channel
	Configured() bool
	Send(ctx context.Context, n *db.Notification) Result
}

// Registry routes a channel to its adapter.
type Registry struct {
	adapters map[db.Channel]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[db.Channel]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Channel()] = a
	}
	return &Registry{adapters: m}
}

// For returns the adapter for a channel.
func (r *Registry) For(ch db.Channel) (Adapter, bool) {
	a, ok := r.adapters[ch]
	return a, ok
}

// SendError carries provider failure details through the fallback chain.
type SendError struct {
	Code      string
	Transient bool
	Err       error
}

func (e *SendError) Error() string {
	return e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// permanentErr builds a non-retryable provider error.
func permanentErr(code string, err error) *SendError {
	return &SendError{Code: code, Transient: false, Err: err}
}

// transientErr builds a retryable provider error.
func transientErr(code string, err error) *SendError {
	return &SendError{Code: code, Transient: true, Err: err}
}

// classify extracts code and transience from a provider error. Plain
// errors (transport failures, timeouts) count as transient.
func classify(err error) (code string, transient bool) {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code, se.Transient
	}
	return "provider_error", true
}

func success(provider, messageID string) Result {
	return Result{Success: true, Provider: provider, ProviderMessageID: messageID}
}

func failure(provider string, err error) Result {
	code, transient := classify(err)
	return Result{
		Provider:  provider,
		Error:     err.Error(),
		ErrorCode: code,
		Transient: transient,
	}
}

// invalid builds a non-retryable validation failure for a channel that
// never reached a provider.
func invalid(provider, code, format string, args ...any) Result {
	return Result{
		Provider:  provider,
		Error:     fmt.Sprintf(format, args...),
		ErrorCode: code,
		Transient: false,
	}
}
