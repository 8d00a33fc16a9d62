package index

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("searchsync.index")

const (
	// DefaultRetryDelay is the pause before the second attempt of a call.
	DefaultRetryDelay = 100 * time.Millisecond
)

// RetryPolicy bounds how a single backend call is retried. Only failures
// tagged BackendUnavailable are retried; anything else ends the call at once.
// The zero value makes exactly one attempt.
type RetryPolicy struct {
	// Attempts is the total number of attempts, including the first one.
	Attempts int

	// Delay is the pause before the second attempt; it doubles on every
	// further attempt up to MaxDelay.
	Delay time.Duration

	// MaxDelay caps the pause between attempts. Zero means no cap.
	MaxDelay time.Duration

	// Clock drives the pauses. Defaults to the wall clock.
	Clock clock.Clock
}

// Validate ensures that the policy values are valid.
func (p RetryPolicy) Validate() error {
	if p.Attempts < 0 {
		return errors.NotValidf("negative retry attempts %d", p.Attempts)
	}
	if p.Delay < 0 {
		return errors.NotValidf("negative retry delay %v", p.Delay)
	}
	if p.MaxDelay != 0 && p.MaxDelay < p.Delay {
		return errors.NotValidf("retry max delay %v below delay %v", p.MaxDelay, p.Delay)
	}
	return nil
}

// Call runs fn under the policy. The returned error is the last error seen,
// with its kind preserved.
func Call(policy RetryPolicy, op string, fn func() error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := policy.Delay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	clk := policy.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	err := retry.Call(retry.CallArgs{
		Func: fn,
		IsFatalError: func(err error) bool {
			return !errors.Is(err, BackendUnavailable)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("%s attempt %d failed: %v", op, attempt, err)
		},
		Attempts:    attempts,
		Delay:       delay,
		MaxDelay:    policy.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clk,
	})
	if retry.IsAttemptsExceeded(err) {
		return retry.LastError(err)
	}
	return err
}
