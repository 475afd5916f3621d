package provenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// breakerClock drives a breaker with a controllable time source.
type breakerClock struct {
	current time.Time
}

func (c *breakerClock) now() time.Time          { return c.current }
func (c *breakerClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestBreaker(threshold int, recovery time.Duration, halfOpenMax int) (*CircuitBreaker, *breakerClock) {
	cb := NewCircuitBreaker(BreakerSettings{
		Enabled:          true,
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		HalfOpenMaxCalls: halfOpenMax,
	})
	clock := &breakerClock{current: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
	cb.now = clock.now
	return cb, clock
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second, 3)

	for i := 0; i < 4; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, BreakerClosed, cb.State(), "failure %d must not trip", i+1)
	}

	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.Allow())
	assert.Equal(t, 5, cb.Stats().FailureCount)
}

func TestBreakerSuccessDecaysFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second, 3)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, 3, cb.Stats().FailureCount)

	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, 1, cb.Stats().FailureCount)

	// The floor is zero: extra successes must not go negative and later
	// failures still count up from zero.
	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.Stats().FailureCount)

	cb.RecordFailure()
	assert.Equal(t, 1, cb.Stats().FailureCount)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerRecoveryProbesHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(2, 30*time.Second, 3)

	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, BreakerOpen, cb.State())

	// Still inside the recovery window.
	clock.advance(29 * time.Second)
	assert.False(t, cb.Allow())
	assert.Equal(t, BreakerOpen, cb.State())

	// Recovery elapsed: the next Allow transitions to half-open and consumes
	// the first probe slot.
	clock.advance(1 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, BreakerHalfOpen, cb.State())
	assert.Equal(t, 1, cb.Stats().HalfOpenCalls)

	// Two more probe slots, then the gate shuts until an outcome lands.
	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow())
	assert.Equal(t, 3, cb.Stats().HalfOpenCalls)
	assert.Equal(t, BreakerHalfOpen, cb.State())
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	cb, clock := newTestBreaker(2, 30*time.Second, 3)

	cb.RecordFailure()
	cb.RecordFailure()
	clock.advance(30 * time.Second)
	require.True(t, cb.Allow())
	require.Equal(t, BreakerHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, BreakerClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().FailureCount)
	assert.Equal(t, 0, cb.Stats().HalfOpenCalls)
	assert.True(t, cb.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(2, 30*time.Second, 3)

	cb.RecordFailure()
	cb.RecordFailure()
	clock.advance(30 * time.Second)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.Allow())

	// The reopen restarted the recovery window from the new failure.
	clock.advance(30 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, BreakerHalfOpen, cb.State())
}

func TestBreakerOpenIgnoresSuccess(t *testing.T) {
	cb, _ := newTestBreaker(1, 30*time.Second, 3)

	cb.RecordFailure()
	require.Equal(t, BreakerOpen, cb.State())

	// A success report while open (a straggling in-flight attempt) must not
	// short-circuit the recovery timeout.
	cb.RecordSuccess()
	assert.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(BreakerSettings{Enabled: false, FailureThreshold: 1})

	for i := 0; i < 10; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
	}
	assert.Equal(t, BreakerClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().FailureCount)
}

func TestBreakerSetEnabled(t *testing.T) {
	cb, _ := newTestBreaker(1, 30*time.Second, 3)

	cb.RecordFailure()
	require.Equal(t, BreakerOpen, cb.State())

	// Disabling opens the gate without resetting the state.
	cb.SetEnabled(false)
	assert.True(t, cb.Allow())
	assert.Equal(t, BreakerOpen, cb.State())

	// Re-enabling resumes where the breaker left off.
	cb.SetEnabled(true)
	assert.False(t, cb.Allow())
}

func TestBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(1, 30*time.Second, 3)

	cb.RecordFailure()
	require.Equal(t, BreakerOpen, cb.State())

	cb.Reset()
	assert.Equal(t, BreakerClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().FailureCount)
	assert.True(t, cb.Allow())
}

func TestBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerSettings{Enabled: true})
	stats := cb.Stats()

	assert.Equal(t, 5, stats.FailureThreshold)
	assert.Equal(t, 3, stats.HalfOpenMaxCalls)
	assert.Equal(t, BreakerClosed, stats.State)
	assert.True(t, stats.Enabled)
}

func TestBreakerStateChangeHook(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(BreakerSettings{
		Enabled:          true,
		FailureThreshold: 1,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 1,
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, string(from)+"->"+string(to))
		},
	})
	clock := &breakerClock{current: time.Now()}
	cb.now = clock.now

	cb.RecordFailure()
	clock.advance(30 * time.Second)
	require.True(t, cb.Allow())
	cb.RecordSuccess()

	assert.Equal(t, []string{
		"closed->open",
		"open->half_open",
		"half_open->closed",
	}, transitions)
}
