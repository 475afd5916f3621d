package provenance

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	// BreakerClosed is the normal state: attempts flow through.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen blocks all attempts until the recovery timeout elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen probes the store with a bounded number of attempts;
	// the first success closes the circuit, any failure reopens it.
	BreakerHalfOpen BreakerState = "half_open"
)

// String returns the string representation of the BreakerState.
func (s BreakerState) String() string {
	return string(s)
}

// BreakerSettings configures a CircuitBreaker. Zero values fall back to the
// defaults (threshold 5, recovery 30s, 3 half-open probes).
type BreakerSettings struct {
	// Enabled controls whether the breaker gates attempts at all. When
	// false, Allow always returns true and records are ignored.
	Enabled bool

	// FailureThreshold is the consecutive-failure count that trips the
	// breaker from closed to open.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open after the most
	// recent failure before probing again.
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls bounds the number of probe attempts allowed while
	// half-open before the next success or failure decides the state.
	HalfOpenMaxCalls int

	// OnStateChange is invoked after every state transition, outside the
	// breaker's lock. Used for metrics and logging.
	OnStateChange func(from, to BreakerState)
}

// CircuitBreaker protects the backing store from being hammered while it is
// failing. Failures accumulate in the closed state; at the threshold the
// breaker opens and rejects attempts until the recovery timeout elapses,
// then probes half-open. Successes in the closed state decay the failure
// count one step at a time so transient noise does not creep toward the
// threshold. Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	enabled          bool
	state            BreakerState
	failureCount     int
	failureThreshold int
	recoveryTimeout  time.Duration
	lastFailureTime  time.Time
	halfOpenCalls    int
	halfOpenMaxCalls int

	onStateChange func(from, to BreakerState)
	now           func() time.Time
}

// stateTransition carries a completed transition out of the lock so the
// notification hook never runs under it.
type stateTransition struct {
	from BreakerState
	to   BreakerState
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(settings BreakerSettings) *CircuitBreaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.RecoveryTimeout <= 0 {
		settings.RecoveryTimeout = 30 * time.Second
	}
	if settings.HalfOpenMaxCalls <= 0 {
		settings.HalfOpenMaxCalls = 3
	}

	return &CircuitBreaker{
		enabled:          settings.Enabled,
		state:            BreakerClosed,
		failureThreshold: settings.FailureThreshold,
		recoveryTimeout:  settings.RecoveryTimeout,
		halfOpenMaxCalls: settings.HalfOpenMaxCalls,
		onStateChange:    settings.OnStateChange,
		now:              time.Now,
	}
}

// Allow reports whether an attempt may proceed right now.
//
// Closed always allows. Open allows only once the recovery timeout has
// elapsed since the last failure; that first allowed call moves the breaker
// to half-open and consumes the first probe slot. Half-open allows while
// probe slots remain.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()

	if !cb.enabled {
		cb.mu.Unlock()
		return true
	}

	allowed := false
	var t *stateTransition

	switch cb.state {
	case BreakerClosed:
		allowed = true
	case BreakerOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.recoveryTimeout {
			t = cb.setStateLocked(BreakerHalfOpen)
			cb.halfOpenCalls++
			allowed = true
		}
	case BreakerHalfOpen:
		if cb.halfOpenCalls < cb.halfOpenMaxCalls {
			cb.halfOpenCalls++
			allowed = true
		}
	}

	cb.mu.Unlock()
	cb.notify(t)
	return allowed
}

// RecordSuccess reports a successful attempt. A half-open success closes the
// circuit and clears the counters. A closed success decrements the failure
// count toward zero so isolated failures age out.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()

	if !cb.enabled {
		cb.mu.Unlock()
		return
	}

	var t *stateTransition

	switch cb.state {
	case BreakerHalfOpen:
		t = cb.setStateLocked(BreakerClosed)
	case BreakerClosed:
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	}

	cb.mu.Unlock()
	cb.notify(t)
}

// RecordFailure reports a failed attempt. The failure timestamp and count
// always update. A half-open failure reopens immediately; a closed failure
// opens the circuit once the count reaches the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()

	if !cb.enabled {
		cb.mu.Unlock()
		return
	}

	cb.lastFailureTime = cb.now()
	cb.failureCount++

	var t *stateTransition

	switch cb.state {
	case BreakerHalfOpen:
		t = cb.setStateLocked(BreakerOpen)
	case BreakerClosed:
		if cb.failureCount >= cb.failureThreshold {
			t = cb.setStateLocked(BreakerOpen)
		}
	}

	cb.mu.Unlock()
	cb.notify(t)
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerStats is a point-in-time snapshot of the breaker internals.
type BreakerStats struct {
	State            BreakerState `json:"state"`
	Enabled          bool         `json:"enabled"`
	FailureCount     int          `json:"failure_count"`
	FailureThreshold int          `json:"failure_threshold"`
	LastFailureTime  time.Time    `json:"last_failure_time,omitempty"`
	HalfOpenCalls    int          `json:"half_open_calls"`
	HalfOpenMaxCalls int          `json:"half_open_max_calls"`
}

// Stats returns a snapshot of the breaker state and counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerStats{
		State:            cb.state,
		Enabled:          cb.enabled,
		FailureCount:     cb.failureCount,
		FailureThreshold: cb.failureThreshold,
		LastFailureTime:  cb.lastFailureTime,
		HalfOpenCalls:    cb.halfOpenCalls,
		HalfOpenMaxCalls: cb.halfOpenMaxCalls,
	}
}

// Reset forces the breaker back to closed with cleared counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()

	var t *stateTransition
	if cb.state != BreakerClosed {
		t = cb.setStateLocked(BreakerClosed)
	} else {
		cb.failureCount = 0
		cb.halfOpenCalls = 0
	}

	cb.mu.Unlock()
	cb.notify(t)
}

// SetEnabled toggles the breaker at runtime. Disabling does not reset the
// state; re-enabling resumes from where the breaker left off.
func (cb *CircuitBreaker) SetEnabled(enabled bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.enabled = enabled
}

// setStateLocked performs a transition and resets the counters the new state
// starts from. Caller holds the lock; the returned transition is fired after
// unlock.
func (cb *CircuitBreaker) setStateLocked(to BreakerState) *stateTransition {
	from := cb.state
	if from == to {
		return nil
	}

	cb.state = to
	switch to {
	case BreakerClosed:
		cb.failureCount = 0
		cb.halfOpenCalls = 0
	case BreakerHalfOpen:
		cb.halfOpenCalls = 0
	}

	return &stateTransition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(t *stateTransition) {
	if t != nil && cb.onStateChange != nil {
		cb.onStateChange(t.from, t.to)
	}
}
