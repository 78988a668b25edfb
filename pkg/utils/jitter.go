package utils

import (
	"math/rand/v2"
	"time"
)

// Jitter spreads base by up to ±fraction so parts retried together do not
// hit the store in lockstep. Jitter(time.Second, 0.2) is 800ms-1.2s.
func Jitter(base time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return base
	}
	if fraction > 1 {
		fraction = 1
	}
	jitterRange := float64(base) * fraction
	jitter := (rand.Float64()*2 - 1) * jitterRange
	return base + time.Duration(jitter)
}

// Backoff returns the exponential delay before retry number attempt (1-based),
// doubling from base and capped at maxDelay, without jitter.
func Backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if maxDelay > 0 && d >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
