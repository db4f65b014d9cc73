// Package broker retry policy.
// This file defines the redelivery schedule for failed tasks and the
// Permanent marker that opts an error out of retrying.
package broker

import (
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry policy defaults
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 60 * time.Second
	DefaultMaxBackoff     = 600 * time.Second
	DefaultJitterPercent  = 10
)

// RetryPolicy controls how failed tasks are redelivered. Delays grow
// exponentially from InitialBackoff, are jittered to spread thundering
// herds, and are capped at MaxBackoff.
type RetryPolicy struct {
	// MaxRetries is the number of redeliveries after the first attempt
	MaxRetries int

	// InitialBackoff is the delay before the first retry
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries
	MaxBackoff time.Duration

	// JitterPercent randomizes each delay by up to this percentage
	JitterPercent uint64
}

// DefaultRetryPolicy returns the standard task retry schedule:
// three retries at roughly 60s, 120s and 240s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterPercent:  DefaultJitterPercent,
	}
}

// Exhausted reports whether a task that already failed retryCount times
// has used up its retry budget.
func (p RetryPolicy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}

// Delay returns the backoff before the given retry attempt. Attempts
// count from 1: Delay(1) is the wait before the first redelivery.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	initial := p.InitialBackoff
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}

	b := retry.NewExponential(initial)
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}

// permanentError marks an error as not worth retrying
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal: redelivery would fail the same way,
// so the worker fails the task immediately instead of spending retry
// budget. Auth failures after a credential refresh and rejected inputs
// are the typical cases.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked
// with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
