package core

import (
	"testing"
	"time"
)

func TestFixedBackoffDelay(t *testing.T) {
	p := FixedBackoff(10 * time.Millisecond)
	for attempt := 0; attempt < 5; attempt++ {
		if d := p.Delay(attempt); d != 10*time.Millisecond {
			t.Errorf("attempt %d: expected 10ms, got %v", attempt, d)
		}
	}
}

func TestExponentialBackoffDelay(t *testing.T) {
	p := BackoffPolicy{
		Kind:         BackoffExponential,
		InitialDelay: 100 * time.Microsecond,
		MaxDelay:     time.Millisecond,
		Ratio:        2.0,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Microsecond},
		{1, 200 * time.Microsecond},
		{2, 400 * time.Microsecond},
		{3, 800 * time.Microsecond},
		{4, time.Millisecond},
		{10, time.Millisecond},
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Errorf("attempt %d: expected %v, got %v", c.attempt, c.want, got)
		}
	}
}

func TestExponentialBackoffWithoutCapStaysFixed(t *testing.T) {
	// An uncapped exponential policy must not grow without bound: repeated
	// doubling would overflow the Duration conversion and could go negative,
	// turning parked workers into a busy spin.
	p := BackoffPolicy{
		Kind:         BackoffExponential,
		InitialDelay: 100 * time.Microsecond,
		Ratio:        2.0,
	}
	for _, attempt := range []int{0, 1, 10, 64, 4096} {
		d := p.Delay(attempt)
		if d != 100*time.Microsecond {
			t.Errorf("attempt %d: expected InitialDelay fallback, got %v", attempt, d)
		}
		if d < 0 {
			t.Fatalf("attempt %d: negative delay %v", attempt, d)
		}
	}
}

func TestZeroInitialDelayMeansNoParking(t *testing.T) {
	p := BackoffPolicy{Kind: BackoffExponential, InitialDelay: 0, MaxDelay: time.Second, Ratio: 2.0}
	if d := p.Delay(5); d != 0 {
		t.Errorf("expected 0 delay, got %v", d)
	}
}

func TestDefaultBackoffPolicyShape(t *testing.T) {
	p := DefaultBackoffPolicy()
	if p.Kind != BackoffExponential {
		t.Error("default policy should be exponential")
	}
	if p.Delay(0) != p.InitialDelay {
		t.Errorf("first delay should equal InitialDelay, got %v", p.Delay(0))
	}
	if d := p.Delay(100); d != p.MaxDelay {
		t.Errorf("large attempts should cap at MaxDelay, got %v", d)
	}
}
