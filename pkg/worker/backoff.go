package worker

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the delay before retrying a failed work item.
// Attempt starts at 1 for the first retry.
type BackoffStrategy interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff grows the delay geometrically with optional jitter.
// Jitter spreads retries so failed webhook dispatches from one outage do
// not all come back in the same tick.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextInterval returns min(Initial * Multiplier^(attempt-1) * (1 ± Jitter), Max).
func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = 30 * time.Second
	}
	max := e.MaxInterval
	if max == 0 {
		max = time.Hour
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	if e.JitterFactor > 0 {
		randomJitter := (rand.Float64()*2 - 1) * e.JitterFactor
		interval *= 1 + randomJitter
	}

	if interval > float64(max) {
		interval = float64(max)
	}
	return time.Duration(interval)
}

// FixedBackoff retries on a constant delay.
type FixedBackoff struct {
	Interval time.Duration
}

// NextInterval always returns the configured interval.
func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}
