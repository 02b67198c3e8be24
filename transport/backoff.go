package transport

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig defines the delay between dial attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Jitter spreads each delay uniformly over ±Jitter of its value (0..1) so
	// clients waiting on the same endpoint do not poll in lockstep.
	Jitter float64
}

// Delay returns the wait before dial attempt n+1, counting attempts from 1.
func (b BackoffConfig) Delay(attempt int) time.Duration {
	return b.delay(attempt, rand.Float64)
}

func (b BackoffConfig) delay(attempt int, unit func() float64) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	mult := max(b.Multiplier, 1.0)
	d := float64(b.InitialDelay) * math.Pow(mult, float64(max(attempt, 1)-1))
	if b.MaxDelay > 0 {
		d = min(d, float64(b.MaxDelay))
	}
	if j := min(b.Jitter, 1.0); j > 0 {
		d *= 1 - j + 2*j*unit()
	}
	return time.Duration(d)
}
