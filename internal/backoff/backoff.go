// Package backoff computes the delay between successive poll iterations of a
// task. The default "fixed" policy keeps the historical 2s cadence; the growth
// policies trade poll latency for fewer status calls on long-running flows.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

const (
	PolicyFixed         = "fixed"
	PolicyLinear        = "linear"
	PolicyExponential   = "exponential"
	PolicyExpEqualJit   = "exp_equal_jitter"
	PolicyExpFullJitter = "exp_full_jitter"
)

// Delay returns the wait before poll iteration n (n >= 0). base is the first
// delay, max caps growth. Unknown policies fall back to fixed.
func Delay(policy string, base, max time.Duration, n int, rng *rand.Rand) time.Duration {
	if n < 0 {
		n = 0
	}
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	switch policy {
	case PolicyLinear:
		return capDur(base*time.Duration(n+1), max)
	case PolicyExponential:
		return expDelay(base, max, n)
	case PolicyExpEqualJit:
		d := expDelay(base, max, n)
		half := d / 2
		return half + time.Duration(rng.Int63n(int64(half)+1))
	case PolicyExpFullJitter:
		d := expDelay(base, max, n)
		return time.Duration(rng.Int63n(int64(d) + 1))
	default:
		return capDur(base, max)
	}
}

func expDelay(base, max time.Duration, n int) time.Duration {
	f := float64(base) * math.Pow(2, float64(n))
	if f > float64(max) || f < 0 {
		return max
	}
	return time.Duration(f)
}

func capDur(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}
