package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Call when the breaker rejects the call without running it.
var ErrOpen = errors.New("circuit breaker open")

// State is the circuit breaker state (Closed, Open, HalfOpen).
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
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// MaxRequests is the number of probe calls allowed while half-open.
	MaxRequests int
	// Interval is the closed-state period after which failure counts reset. 0 never resets.
	Interval time.Duration
	// Timeout is how long the circuit stays open before probing.
	Timeout   time.Duration
	Component string
	// IsFailure decides whether an error counts against the circuit. nil counts every error.
	IsFailure     func(err error) bool
	OnStateChange func(from, to State)
}

// CircuitBreaker protects upstream calls by opening after repeated failures
// and allowing probe requests in half-open state.
type CircuitBreaker struct {
	cb        *gobreaker.CircuitBreaker
	component string
}

// New creates a CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cfg.Component,
		MaxRequests: uint32(cfg.MaxRequests),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if cfg.IsFailure != nil {
		isFailure := cfg.IsFailure
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !isFailure(err)
		}
	}
	if cfg.OnStateChange != nil {
		onChange := cfg.OnStateChange
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onChange(fromGobreaker(from), fromGobreaker(to))
		}
	}
	return &CircuitBreaker{
		cb:        gobreaker.NewCircuitBreaker(settings),
		component: cfg.Component,
	}
}

// Call runs fn when the circuit allows it. When open (or half-open with all
// probe slots taken) it returns an error wrapping ErrOpen without calling fn.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := cb.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrOpen, cb.component)
	}
	return err
}

// State returns the current state (for metrics and health).
func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.cb.State())
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
