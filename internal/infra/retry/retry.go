// internal/infra/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrAttemptsExhausted  = errors.New("retry attempts exhausted")
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")
)

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts          int // transient attempts, the first one included
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	DefaultRateLimitWait time.Duration
	MaxRateLimitRetries  int
}

// DefaultPolicy mirrors the provider documentation: three attempts, doubling from one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:          3,
		BaseDelay:            time.Second,
		MaxDelay:             30 * time.Second,
		DefaultRateLimitWait: 5 * time.Second,
		MaxRateLimitRetries:  5,
	}
}

// Backoff returns the wait after the n-th consecutive transient failure (1-based):
// BaseDelay doubled n-1 times, never above MaxDelay.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay/2 {
			d = p.MaxDelay
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// RateLimitError marks a failure the caller should wait out. Wait <= 0 means unknown.
type RateLimitError struct {
	Wait time.Duration
	Err  error
}

func (e *RateLimitError) Error() string { return fmt.Sprintf("rate limited: %v", e.Err) }
func (e *RateLimitError) Unwrap() error { return e.Err }

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// RateLimited wraps err as a rate-limit signal.
func RateLimited(wait time.Duration, err error) error {
	return &RateLimitError{Wait: wait, Err: err}
}

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Runner executes operations under a Policy.
type Runner struct {
	policy Policy
	sleep  SleepFunc
	logger *logrus.Entry
}

func NewRunner(policy Policy, sleep SleepFunc, logger *logrus.Entry) *Runner {
	if sleep == nil {
		sleep = Sleep
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Runner{policy: policy, sleep: sleep, logger: logger}
}

// Policy returns the runner's policy.
func (r *Runner) Policy() Policy { return r.policy }

// Do calls op until it succeeds, returns a PermanentError, or a budget runs out.
// Rate-limit waits are budgeted separately from transient attempts.
func (r *Runner) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	var transient, limited int
	for attempt := 1; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}

		logCtx := r.logger.WithField("attempt", attempt).WithError(err)

		var rl *RateLimitError
		if errors.As(err, &rl) {
			limited++
			if limited > r.policy.MaxRateLimitRetries {
				return fmt.Errorf("%w after %d waits: %w", ErrRateLimitExhausted, limited-1, rl.Err)
			}
			wait := rl.Wait
			if wait <= 0 {
				wait = r.policy.DefaultRateLimitWait
			}
			logCtx.WithField("wait", wait.String()).Warn("Rate limited, waiting before retry")
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		transient++
		if transient >= r.policy.MaxAttempts {
			return fmt.Errorf("%w (%d attempts): %w", ErrAttemptsExhausted, transient, err)
		}
		delay := r.policy.Backoff(transient)
		logCtx.WithField("delay", delay.String()).Warn("Transient failure, backing off")
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}
