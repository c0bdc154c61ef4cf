package collector

import "time"

// BackoffPolicy computes retry delays. It is a pure function of the attempt
// number so the schedule can be tested without any I/O.
type BackoffPolicy struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor.
	Multiplier float64
}

// DefaultBackoffPolicy returns the default retry schedule.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// DelayFor returns the delay before retry attempt n (1-based).
// Attempt 1 waits InitialDelay, each further attempt multiplies by
// Multiplier, capped at MaxDelay. Non-positive attempts return 0.
func (p BackoffPolicy) DelayFor(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}

	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
