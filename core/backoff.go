package core

import "time"

// =============================================================================
// Steal backoff
// =============================================================================

type BackoffKind int

const (
	// BackoffFixed waits the same interval between failed steal rounds.
	BackoffFixed BackoffKind = iota

	// BackoffExponential grows the interval by Ratio each failed round,
	// capped at MaxDelay.
	BackoffExponential
)

// BackoffPolicy controls how long an idle worker parks between steal rounds
// that found nothing. Fixed at pool construction.
type BackoffPolicy struct {
	Kind BackoffKind

	// InitialDelay is the park interval after the first empty round.
	InitialDelay time.Duration

	// MaxDelay caps the interval for the exponential kind.
	MaxDelay time.Duration

	// Ratio is the multiplier applied after each empty round (exponential
	// kind only), e.g. 2.0 to double.
	Ratio float64
}

// DefaultBackoffPolicy returns an exponential policy tuned for idle workers:
// short enough to pick up new work quickly, long enough not to burn a core
// spinning.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Kind:         BackoffExponential,
		InitialDelay: 50 * time.Microsecond,
		MaxDelay:     2 * time.Millisecond,
		Ratio:        2.0,
	}
}

// FixedBackoff returns a fixed-interval policy.
func FixedBackoff(d time.Duration) BackoffPolicy {
	return BackoffPolicy{
		Kind:         BackoffFixed,
		InitialDelay: d,
		MaxDelay:     d,
		Ratio:        1.0,
	}
}

// Delay returns the park interval for the given consecutive empty round.
// attempt is 0-indexed.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if p.InitialDelay == 0 {
		return 0
	}
	// Without a positive cap the exponential growth would overflow the float
	// and the Duration conversion; degrade to fixed instead.
	if p.Kind == BackoffFixed || p.MaxDelay <= 0 {
		return p.InitialDelay
	}

	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.Ratio
		if delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}
