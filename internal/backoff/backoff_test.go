package backoff

import (
	"math/rand"
	"testing"
	"time"
)

func TestDelayFixed(t *testing.T) {
	tests := []struct {
		name string
		base time.Duration
		max  time.Duration
		n    int
		want time.Duration
	}{
		{"default cadence", 2 * time.Second, time.Minute, 0, 2 * time.Second},
		{"stays fixed over iterations", 2 * time.Second, time.Minute, 500, 2 * time.Second},
		{"base capped by max", 20 * time.Second, 10 * time.Second, 0, 10 * time.Second},
		{"zero base defaults to 1s", 0, time.Minute, 0, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Delay(PolicyFixed, tt.base, tt.max, tt.n, nil)
			if got != tt.want {
				t.Errorf("Delay(fixed) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDelayLinear(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{4, 10 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		got := Delay(PolicyLinear, 2*time.Second, 30*time.Second, tt.n, nil)
		if got != tt.want {
			t.Errorf("Delay(linear, n=%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestDelayExponential(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{3, 16 * time.Second},
		{30, time.Minute},
	}
	for _, tt := range tests {
		got := Delay(PolicyExponential, 2*time.Second, time.Minute, tt.n, nil)
		if got != tt.want {
			t.Errorf("Delay(exponential, n=%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 8; n++ {
		full := Delay(PolicyExpFullJitter, 2*time.Second, time.Minute, n, rng)
		if full < 0 || full > time.Minute {
			t.Fatalf("full jitter out of range: %v", full)
		}
		eq := Delay(PolicyExpEqualJit, 2*time.Second, time.Minute, n, rng)
		lo := expDelay(2*time.Second, time.Minute, n) / 2
		if eq < lo || eq > time.Minute {
			t.Fatalf("equal jitter out of range: %v (lo %v)", eq, lo)
		}
	}
}

func TestDelayUnknownPolicyIsFixed(t *testing.T) {
	got := Delay("bogus", 3*time.Second, time.Minute, 7, nil)
	if got != 3*time.Second {
		t.Errorf("Delay(bogus) = %v, want 3s", got)
	}
}
