// Package retry runs outbound calls under a per-attempt deadline and a bounded
// exponential backoff budget.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultAttempts = 3
	defaultInitial  = 200 * time.Millisecond
	defaultMax      = 2 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Policy bounds a retried call. Zero fields take package defaults; Attempts
// of 1 disables retries.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Timeout  time.Duration
}

// Normalise fills unset fields with defaults.
func (p Policy) Normalise() Policy {
	if p.Attempts <= 0 {
		p.Attempts = defaultAttempts
	}
	if p.Initial <= 0 {
		p.Initial = defaultInitial
	}
	if p.Max <= 0 {
		p.Max = defaultMax
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	return p
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do invokes op until it succeeds, returns a permanent error, the attempt
// budget is spent or ctx is done. Each attempt gets its own deadline.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p = p.Normalise()
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Attempts-1)), ctx)

	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()
		err := op(callCtx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
