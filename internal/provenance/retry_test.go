package provenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// pinnedJitter returns a source whose [0.8, 1.2] factor is exactly 1.0, so
// delay laws can be asserted without tolerance.
func pinnedJitter() JitterSource {
	return func() float64 { return 0.5 }
}

func retryOp(strategy RetryStrategy, base, max time.Duration) *Operation {
	return &Operation{
		Strategy:  strategy,
		BaseDelay: base,
		MaxDelay:  max,
	}
}

func TestDelayExponential(t *testing.T) {
	s := NewRetryScheduler(pinnedJitter())
	op := retryOp(StrategyExponential, 100*time.Millisecond, 30*time.Second)

	assert.Equal(t, 100*time.Millisecond, s.Delay(op, 0))
	assert.Equal(t, 200*time.Millisecond, s.Delay(op, 1))
	assert.Equal(t, 400*time.Millisecond, s.Delay(op, 2))
	assert.Equal(t, 800*time.Millisecond, s.Delay(op, 3))
}

func TestDelayLinear(t *testing.T) {
	s := NewRetryScheduler(pinnedJitter())
	op := retryOp(StrategyLinear, 100*time.Millisecond, 30*time.Second)

	assert.Equal(t, 100*time.Millisecond, s.Delay(op, 0))
	assert.Equal(t, 200*time.Millisecond, s.Delay(op, 1))
	assert.Equal(t, 300*time.Millisecond, s.Delay(op, 2))
	assert.Equal(t, 400*time.Millisecond, s.Delay(op, 3))
}

func TestDelayFixed(t *testing.T) {
	s := NewRetryScheduler(pinnedJitter())
	op := retryOp(StrategyFixed, 250*time.Millisecond, 30*time.Second)

	for attempt := 0; attempt < 6; attempt++ {
		assert.Equal(t, 250*time.Millisecond, s.Delay(op, attempt))
	}
}

func TestDelayFibonacci(t *testing.T) {
	s := NewRetryScheduler(pinnedJitter())
	op := retryOp(StrategyFibonacci, 100*time.Millisecond, time.Minute)

	want := []time.Duration{
		100 * time.Millisecond, // fib 1
		100 * time.Millisecond, // fib 1
		200 * time.Millisecond, // fib 2
		300 * time.Millisecond, // fib 3
		500 * time.Millisecond, // fib 5
		800 * time.Millisecond, // fib 8
		1300 * time.Millisecond,
		2100 * time.Millisecond,
		3400 * time.Millisecond,
		5500 * time.Millisecond, // fib 55, end of the table
	}
	for attempt, expected := range want {
		assert.Equal(t, expected, s.Delay(op, attempt), "attempt %d", attempt)
	}

	// Attempts beyond the table reuse the last multiplier.
	assert.Equal(t, 5500*time.Millisecond, s.Delay(op, 12))
}

// Exponential backoff with the default random jitter stays inside the
// [0.8, 1.2) band around the raw delay.
func TestDelayJitterBounds(t *testing.T) {
	s := NewRetryScheduler(nil)
	op := retryOp(StrategyExponential, 100*time.Millisecond, 30*time.Second)

	for i := 0; i < 200; i++ {
		d0 := s.Delay(op, 0)
		assert.GreaterOrEqual(t, d0, 80*time.Millisecond)
		assert.Less(t, d0, 120*time.Millisecond)

		d2 := s.Delay(op, 2)
		assert.GreaterOrEqual(t, d2, 320*time.Millisecond)
		assert.Less(t, d2, 480*time.Millisecond)
	}
}

func TestDelayJitterExtremes(t *testing.T) {
	low := NewRetryScheduler(func() float64 { return 0 })
	high := NewRetryScheduler(func() float64 { return 0.999999 })
	op := retryOp(StrategyFixed, 100*time.Millisecond, 30*time.Second)

	assert.Equal(t, 80*time.Millisecond, low.Delay(op, 0))
	assert.InDelta(t, float64(120*time.Millisecond), float64(high.Delay(op, 0)),
		float64(time.Millisecond))
}

func TestDelayCappedAtMaxDelay(t *testing.T) {
	s := NewRetryScheduler(pinnedJitter())
	op := retryOp(StrategyExponential, 100*time.Millisecond, 30*time.Second)

	// 100ms * 2^20 is far past the cap.
	assert.Equal(t, 30*time.Second, s.Delay(op, 20))

	// The cap applies after jitter, so a jittered-up delay cannot escape it.
	high := NewRetryScheduler(func() float64 { return 0.999999 })
	opTight := retryOp(StrategyFixed, 100*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, high.Delay(opTight, 0))
}

func TestDelayNegativeAttemptClamped(t *testing.T) {
	s := NewRetryScheduler(pinnedJitter())
	op := retryOp(StrategyExponential, 100*time.Millisecond, 30*time.Second)

	assert.Equal(t, s.Delay(op, 0), s.Delay(op, -5))
}

func TestDelayUnknownStrategyFallsBackToExponential(t *testing.T) {
	s := NewRetryScheduler(pinnedJitter())
	op := retryOp(RetryStrategy("quadratic"), 100*time.Millisecond, 30*time.Second)

	assert.Equal(t, 400*time.Millisecond, s.Delay(op, 2))
}
