package agent

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting model calls.
var ErrCircuitOpen = errors.New("model circuit breaker is open")

// CircuitState is the breaker's position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = map[CircuitState]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if name, ok := circuitStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CircuitBreakerConfig configures the breaker around model calls.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before tripping
	SuccessThreshold int           // consecutive probe successes to close
	Timeout          time.Duration // open duration before probing
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// CircuitBreaker protects the model provider from hammering during an
// outage. One breaker covers all sessions; provider failures are not
// session-scoped.
//
// streak counts consecutive failures while closed and consecutive probe
// successes while half-open; any transition resets it.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig

	state    CircuitState
	streak   int
	openedAt time.Time
	now      func() time.Time
}

// NewCircuitBreaker creates a breaker, applying defaults to zero values.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg: cfg.withDefaults(),
		now: time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}

// Allow reports whether a call may proceed. An open breaker whose
// timeout has elapsed moves to half-open and admits the call as a probe;
// the lock is held across that transition so only one caller makes it.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.now().Sub(cb.openedAt) <= cb.cfg.Timeout {
		return ErrCircuitOpen
	}
	cb.state = CircuitHalfOpen
	cb.streak = 0
	return nil
}

// Success records a successful call. Enough consecutive probe successes
// close the breaker.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.streak++
		if cb.streak >= cb.cfg.SuccessThreshold {
			cb.state = CircuitClosed
			cb.streak = 0
		}
		return
	}
	cb.streak = 0
}

// Failure records a failed call. A half-open probe failure reopens
// immediately; while closed, the breaker trips after the configured run
// of consecutive failures.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.trip()
		return
	}
	cb.streak++
	if cb.streak >= cb.cfg.FailureThreshold {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.streak = 0
	cb.openedAt = cb.now()
}

// State returns the current position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset returns the breaker to closed. Primarily for tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.streak = 0
	cb.openedAt = time.Time{}
}
