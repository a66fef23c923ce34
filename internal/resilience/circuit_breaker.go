// Package resilience wraps outbound calls (HTTP reports, event publishing)
// with circuit breakers and retry logic.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Trip thresholds used by DefaultReadyToTrip.
const (
	minRequestsToTrip  = 5
	failureRatioToTrip = 0.5
)

// CircuitBreakerConfig configures a breaker. Zero values fall back to the
// defaults of DefaultCircuitBreakerConfig where noted.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests allowed through while half-open. Default 1.
	MaxRequests uint32

	// Interval clears counts while closed. Zero never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open. Default 60s.
	Timeout time.Duration

	// ReadyToTrip decides when to open. Default DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// IsSuccessful classifies call errors. Default IgnoreCanceled.
	IsSuccessful func(err error) bool

	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the defaults for a breaker named name.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Timeout:      60 * time.Second,
		ReadyToTrip:  DefaultReadyToTrip,
		IsSuccessful: IgnoreCanceled,
	}
}

// DefaultReadyToTrip opens once at least five calls were made and half of
// them failed.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < minRequestsToTrip {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= failureRatioToTrip
}

// ConsecutiveFailures opens after n failures in a row, regardless of volume.
// Suits low-rate callers such as a tracker reporting every few minutes.
func ConsecutiveFailures(n uint32) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

// IgnoreCanceled treats nil and caller cancellation as success, so a
// shutting-down caller cannot trip the breaker.
func IgnoreCanceled(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// LogStateChanges returns an OnStateChange hook that logs transitions,
// at warn level when the breaker opens and info otherwise.
func LogStateChanges(log zerolog.Logger) func(string, gobreaker.State, gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		ev := log.Info()
		if to == gobreaker.StateOpen {
			ev = log.Warn()
		}
		ev.Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit state changed")
	}
}

// IsRejected reports whether err means the breaker refused the call.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// NewCircuitBreaker builds a breaker from cfg, filling unset policy hooks
// with the defaults.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = DefaultReadyToTrip
	}
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = IgnoreCanceled
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		IsSuccessful:  cfg.IsSuccessful,
		OnStateChange: cfg.OnStateChange,
	})
}
