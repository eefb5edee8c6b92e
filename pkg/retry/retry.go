// Package retry runs an operation a bounded number of times with a linear
// backoff (base delay × attempt number) and a per-attempt deadline.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultAttempts       = 3
	DefaultBaseDelay      = 5 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// Policy bounds how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// BaseDelay is multiplied by the attempt number to get the wait after it.
	BaseDelay time.Duration
	// AttemptTimeout bounds each try. Zero disables the per-attempt deadline.
	AttemptTimeout time.Duration
	// NewTimer overrides the timer used between attempts. Nil uses real time.
	NewTimer func() backoff.Timer
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       DefaultAttempts,
		BaseDelay:      DefaultBaseDelay,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Notify is called after a failed attempt that will be retried.
type Notify func(attempt int, err error, wait time.Duration)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted, or ctx is done. The error of the last attempt is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, notify Notify) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	operation := func() error {
		attempt++
		actx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		defer cancel()
		return op(actx)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&Linear{Base: p.BaseDelay}, uint64(attempts-1)),
		ctx,
	)

	var timer backoff.Timer
	if p.NewTimer != nil {
		timer = p.NewTimer()
	}

	return backoff.RetryNotifyWithTimer(operation, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	}, timer)
}

// Linear is a backoff.BackOff whose n-th wait is Base × n.
type Linear struct {
	Base    time.Duration
	attempt int
}

// NextBackOff implements backoff.BackOff.
func (l *Linear) NextBackOff() time.Duration {
	l.attempt++
	return l.Base * time.Duration(l.attempt)
}

// Reset implements backoff.BackOff.
func (l *Linear) Reset() {
	l.attempt = 0
}
