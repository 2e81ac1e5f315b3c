// Package backoff computes retry delays for transient step failures.
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n. Attempts are
// 1-indexed: attempt 1 is the first retry after the initial failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant waits the same interval before every retry.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a fixed-interval strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay with every attempt:
// Delay(n) = Initial << (n-1), capped at Max when Max > 0.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates a doubling strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial << (attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Shifting past 62 bits would wrap; treat it as saturated.
	shift := attempt - 1
	if shift > 62 || e.Initial<<shift < e.Initial {
		if e.Max > 0 {
			return e.Max
		}
		return e.Initial << 62
	}
	d := e.Initial << shift
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ExponentialWithJitter spreads retries with equal jitter: half the
// exponential base is kept, the other half is randomized, so delays stay
// ordered across attempts while herds still decorrelate.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates a doubling strategy with equal jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns base/2 + rand[0, base/2) where base is the capped
// exponential delay for the attempt.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := (&Exponential{Initial: e.Initial, Max: e.Max}).Delay(attempt)
	half := base / 2
	return half + time.Duration(rand.Int64N(int64(half)+1)) //nolint:gosec // jitter does not need crypto rand
}

// Default returns the strategy the step executor uses when none is
// configured: pure doubling from 2s (2s, 4s, 8s, ...), capped at an hour.
func Default() Strategy {
	return NewExponential(2*time.Second, time.Hour)
}
