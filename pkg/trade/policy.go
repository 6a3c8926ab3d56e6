package trade

import (
	"fmt"
	"time"
)

// BackoffKind selects how the wait between attempts grows
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// Policy bounds the retry loop
type Policy struct {
	MaxAttempts int           // Total attempts including the first; 0 means unbounded
	Delay       time.Duration // Wait after the first retryable failure
	MaxDelay    time.Duration // Cap for exponential growth; 0 means no cap
	Backoff     BackoffKind
}

// DefaultPolicy retries a handful of times with a fixed delay
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Delay:       3 * time.Second,
		MaxDelay:    time.Minute,
		Backoff:     BackoffFixed,
	}
}

// Validate checks the policy ranges
func (p Policy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative")
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("max retry delay cannot be negative")
	}
	switch p.Backoff {
	case BackoffFixed, BackoffExponential, "":
	default:
		return fmt.Errorf("backoff must be 'fixed' or 'exponential', got %q", p.Backoff)
	}
	return nil
}

// Exhausted reports whether no attempt may follow the given one
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Wait returns the delay after the given failed attempt (1-based)
func (p Policy) Wait(attempt int) time.Duration {
	if p.Backoff != BackoffExponential || attempt <= 1 {
		return p.capped(p.Delay)
	}

	d := p.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
		if d <= 0 {
			// overflow
			return p.MaxDelay
		}
	}
	return p.capped(d)
}

func (p Policy) capped(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
