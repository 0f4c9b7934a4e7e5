package ai

import (
	"testing"
	"time"

	"github.com/Nomadcxx/jellysort/internal/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, window, cooldown time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(threshold, window, cooldown)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := NewCircuitBreaker(5, 2*time.Minute, 30*time.Second)

	if cb.State() != CircuitClosed {
		t.Errorf("expected initial state CircuitClosed, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Error("expected Allow() to return true when circuit is closed")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute, 100*time.Millisecond)

	cb.RecordFailure("error 1")
	cb.RecordFailure("error 2")
	cb.RecordFailure("error 3")

	if cb.State() != CircuitOpen {
		t.Errorf("expected CircuitOpen after 3 failures, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("expected Allow() to return false when circuit is open")
	}
	if cb.LastError() != "error 3" {
		t.Errorf("LastError = %q", cb.LastError())
	}
}

func TestCircuitBreaker_FailuresOutsideWindowExpire(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute, time.Second)

	cb.RecordFailure("old")
	clock.advance(2 * time.Minute)
	cb.RecordFailure("new")

	if cb.State() != CircuitClosed {
		t.Errorf("expected CircuitClosed, got %v", cb.State())
	}
	if cb.FailureCount() != 1 {
		t.Errorf("expected 1 failure in window, got %d", cb.FailureCount())
	}
}

func TestCircuitBreaker_RecoverAfterCooldown(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute, 50*time.Millisecond)

	cb.RecordFailure("error 1")
	cb.RecordFailure("error 2")

	if cb.State() != CircuitOpen {
		t.Fatalf("expected CircuitOpen, got %v", cb.State())
	}
	if cb.CooldownRemaining() != 50*time.Millisecond {
		t.Errorf("CooldownRemaining = %v", cb.CooldownRemaining())
	}

	clock.advance(60 * time.Millisecond)

	if !cb.Allow() {
		t.Error("expected Allow() to return true after cooldown")
	}
	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected CircuitHalfOpen, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("only one probe may pass while half-open")
	}

	cb.RecordSuccess()

	if cb.State() != CircuitClosed {
		t.Errorf("expected CircuitClosed after success, got %v", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute, time.Second)

	cb.RecordFailure("down")
	clock.advance(2 * time.Second)
	if !cb.Allow() {
		t.Fatal("expected probe after cooldown")
	}
	cb.RecordFailure("still down")

	if cb.State() != CircuitOpen {
		t.Errorf("expected CircuitOpen after failed probe, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("expected a fresh cooldown after a failed probe")
	}
}

func TestNewCircuitBreakerFromConfig_Defaults(t *testing.T) {
	cb := NewCircuitBreakerFromConfig(config.CircuitBreakerConfig{})
	if cb.failureThreshold != 5 || cb.failureWindow != 2*time.Minute || cb.cooldownPeriod != 30*time.Second {
		t.Errorf("unexpected defaults: %d %v %v", cb.failureThreshold, cb.failureWindow, cb.cooldownPeriod)
	}
}

func TestCircuitState_String(t *testing.T) {
	for state, want := range map[CircuitState]string{
		CircuitClosed: "closed", CircuitOpen: "open", CircuitHalfOpen: "half-open", CircuitState(9): "unknown",
	} {
		if state.String() != want {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), want)
		}
	}
}
