package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yungbote/podreach-backend/internal/pkg/httpx"
)

// Policy is an exponential schedule. Attempts counts retries after the first call.
type Policy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	Attempts   int
}

// DownloadPolicy is used for audio fetches: three calls in total, waiting 5s
// then 10s. Longer schedules back off up to 300s.
var DownloadPolicy = Policy{Initial: 5 * time.Second, Multiplier: 2, Max: 300 * time.Second, Attempts: 2}

// APIPolicy is the default for JSON APIs.
var APIPolicy = Policy{Initial: time.Second, Multiplier: 2, Max: 10 * time.Second, Attempts: 4}

// Delay returns the wait before retry n (0-based), ignoring jitter.
func (p Policy) Delay(n int) time.Duration {
	d := p.Initial
	for i := 0; i < n; i++ {
		d = time.Duration(float64(d) * p.mult())
		if p.Max > 0 && d > p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

func (p Policy) mult() float64 {
	if p.Multiplier <= 1 {
		return 2
	}
	return p.Multiplier
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.Multiplier = p.mult()
	eb.RandomizationFactor = 0.2
	if p.Max > 0 {
		eb.MaxInterval = p.Max
	}
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if p.Attempts >= 0 {
		b = backoff.WithMaxRetries(b, uint64(p.Attempts))
	}
	return backoff.WithContext(b, ctx)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable regardless of how httpx classifies it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy is
// exhausted. Errors are classified with httpx.IsRetryableError unless already
// wrapped with Permanent. onRetry may be nil.
func Do(ctx context.Context, p Policy, fn func() error, onRetry func(err error, wait time.Duration)) error {
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		var tr *transientError
		if errors.As(err, &tr) {
			return err
		}
		if !httpx.IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if onRetry != nil {
		notify = func(err error, d time.Duration) { onRetry(err, d) }
	}
	err := backoff.RetryNotify(op, p.backOff(ctx), notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if tr, ok := err.(*transientError); ok {
		return tr.err
	}
	return err
}
