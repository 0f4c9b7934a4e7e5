package ai

import (
	"sync"
	"time"

	"github.com/Nomadcxx/jellysort/internal/config"
)

type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Rejecting requests
	CircuitHalfOpen                     // Testing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling providers after threshold failures within
// window, and lets one probe through once cooldown has elapsed.
type CircuitBreaker struct {
	mu sync.Mutex

	state     CircuitState
	failures  []time.Time // timestamps of recent failures
	openedAt  time.Time
	lastError string
	probing   bool

	failureThreshold int
	failureWindow    time.Duration
	cooldownPeriod   time.Duration

	now func() time.Time
}

func NewCircuitBreaker(threshold int, window, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failures:         make([]time.Time, 0, threshold),
		failureThreshold: threshold,
		failureWindow:    window,
		cooldownPeriod:   cooldown,
		now:              time.Now,
	}
}

// NewCircuitBreakerFromConfig applies defaults for zero values.
func NewCircuitBreakerFromConfig(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	window := time.Duration(cfg.FailureWindowSeconds) * time.Second
	if window == 0 {
		window = 2 * time.Minute
	}
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}
	return NewCircuitBreaker(threshold, window, cooldown)
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed. In the half-open state only one
// probe is admitted until it records a result.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cooldownPeriod {
			cb.state = CircuitHalfOpen
			cb.probing = true
			return true
		}
		return false
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordFailure(errMsg string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.lastError = errMsg
	cb.probing = false

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.openedAt = now
		return
	}

	cutoff := now.Add(-cb.failureWindow)
	valid := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	cb.failures = append(valid, now)

	if len(cb.failures) >= cb.failureThreshold {
		cb.state = CircuitOpen
		cb.openedAt = now
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = cb.failures[:0]
	cb.lastError = ""
	cb.probing = false
}

func (cb *CircuitBreaker) LastError() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastError
}

func (cb *CircuitBreaker) CooldownRemaining() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return 0
	}
	remaining := cb.cooldownPeriod - cb.now().Sub(cb.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return len(cb.failures)
}
