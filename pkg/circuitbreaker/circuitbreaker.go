// Package circuitbreaker implements the circuit breaker pattern for the
// storage gateway: while the store is down, calls fail fast instead of
// queueing on the connection pool. No external dependencies.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed - normal operation, requests pass through.
	StateClosed State = iota

	// StateOpen - circuit is open, requests fail fast.
	StateOpen

	// StateHalfOpen - testing whether the store recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
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

// ErrOpen is returned when the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// Config contains configuration for the circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before moving to half-open.
	Timeout time.Duration

	// HalfOpenMaxRequests limits probe traffic in half-open state.
	HalfOpenMaxRequests int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	mu sync.Mutex

	config Config

	state            State
	failures         int
	successes        int
	halfOpenRequests int
	lastFailureAt    time.Time
	lastStateChange  time.Time
}

// New creates a Breaker with the given configuration.
func New(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = DefaultConfig().HalfOpenMaxRequests
	}
	return &Breaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Allow checks whether a request should pass through. Returns ErrOpen when
// the circuit is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.lastStateChange) > b.config.Timeout {
			b.toHalfOpen()
			b.halfOpenRequests++
			return nil
		}
		return ErrOpen

	case StateHalfOpen:
		if b.halfOpenRequests < b.config.HalfOpenMaxRequests {
			b.halfOpenRequests++
			return nil
		}
		return ErrOpen
	}

	return nil
}

// RecordSuccess records a successful request.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.toClosed()
		}
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure records a failed request.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureAt = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.toOpen()
		}
	case StateHalfOpen:
		b.toOpen()
	}
}

// State returns the current state of the circuit.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the circuit back to closed. Used by the health monitor after
// a confirmed recovery.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toClosed()
}

// State transitions, called with the lock held.

func (b *Breaker) toClosed() {
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.halfOpenRequests = 0
	b.lastStateChange = time.Now()
}

func (b *Breaker) toOpen() {
	b.state = StateOpen
	b.lastStateChange = time.Now()
}

func (b *Breaker) toHalfOpen() {
	b.state = StateHalfOpen
	b.successes = 0
	b.halfOpenRequests = 0
	b.lastStateChange = time.Now()
}
