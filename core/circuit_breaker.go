// Package core: CircuitBreaker is the fault-tolerance contract used when a
// worker's router wraps a provider round trip. States: closed (requests pass
// through), open (requests fail immediately), half-open (limited probes).
package core

import (
	"context"
	"time"
)

// CircuitBreaker protects a downstream call from cascading failures by
// tracking its error rate and temporarily rejecting calls once a threshold
// is crossed.
type CircuitBreaker interface {
	// Execute runs fn with circuit breaker protection. Returns
	// ErrCircuitBreakerOpen immediately if the circuit is open.
	Execute(ctx context.Context, fn func() error) error

	// ExecuteWithTimeout runs fn with both circuit breaker protection and a
	// timeout, useful for provider calls that might hang.
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error

	// GetState returns "closed", "open", or "half-open".
	GetState() string

	// GetMetrics returns current success/failure counts and state.
	GetMetrics() map[string]interface{}

	// Reset manually returns the breaker to the closed state.
	Reset()

	// CanExecute reports whether the breaker would currently allow a call,
	// without actually executing one.
	CanExecute() bool
}
