package provenance

import (
	"math"
	"math/rand"
	"time"
)

// JitterSource returns a uniform random value in [0, 1). The scheduler maps
// it onto the [0.8, 1.2] jitter band. Injectable so tests can pin the factor.
type JitterSource func() float64

// Multipliers for StrategyFibonacci, indexed by zero-based attempt. Attempts
// beyond the table reuse the last entry.
var fibonacciMultipliers = [...]int64{1, 1, 2, 3, 5, 8, 13, 21, 34, 55}

// RetryScheduler computes the in-place delay before a retry attempt. Every
// strategy's raw delay is jittered by a uniform factor in [0.8, 1.2] to
// spread retries from operations that failed together, then capped at the
// operation's MaxDelay.
type RetryScheduler struct {
	jitter JitterSource
}

// NewRetryScheduler creates a scheduler. A nil jitter source falls back to
// math/rand.
func NewRetryScheduler(jitter JitterSource) *RetryScheduler {
	if jitter == nil {
		jitter = rand.Float64
	}
	return &RetryScheduler{jitter: jitter}
}

// Delay returns how long to wait before the next attempt of op. attempt is
// zero-based: the delay after the first failed attempt is Delay(op, 0).
//
//	exponential: base * 2^attempt
//	linear:      base * (attempt+1)
//	fixed:       base
//	fibonacci:   base * fib(attempt), fib = 1,1,2,3,5,8,13,21,34,55
func (s *RetryScheduler) Delay(op *Operation, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := float64(op.BaseDelay)
	var raw float64

	switch op.Strategy {
	case StrategyLinear:
		raw = base * float64(attempt+1)
	case StrategyFixed:
		raw = base
	case StrategyFibonacci:
		idx := attempt
		if idx >= len(fibonacciMultipliers) {
			idx = len(fibonacciMultipliers) - 1
		}
		raw = base * float64(fibonacciMultipliers[idx])
	default:
		// Exponential, also the fallback for unvalidated strategies.
		raw = base * math.Pow(2, float64(attempt))
	}

	raw *= 0.8 + 0.4*s.jitter()

	if op.MaxDelay > 0 && raw > float64(op.MaxDelay) {
		raw = float64(op.MaxDelay)
	}
	return time.Duration(raw)
}
