// Package retry provides a small exponential-backoff combinator used by the
// lifecycle manager when re-invoking machine operations after a restart.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultAttempts   = 4
	DefaultBase       = time.Second
	DefaultMultiplier = 2.0
)

type Options struct {
	// Attempts is the total number of invocations, including the first.
	Attempts int
	// Base is the delay before the first retry; retry i waits Base·Multiplierⁱ.
	Base       time.Duration
	Multiplier float64
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Base <= 0 {
		o.Base = DefaultBase
	}
	if o.Multiplier <= 0 {
		o.Multiplier = DefaultMultiplier
	}
	return o
}

// Do invokes op until it succeeds, shouldRetry rejects its error, the attempt
// budget is exhausted, or ctx is done. The returned error is op's last error.
func Do[T any](ctx context.Context, opts Options, op func() (T, error), shouldRetry func(error) bool) (T, error) {
	opts = opts.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.Base
	b.Multiplier = opts.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64) // never clamp the delay sequence
	b.MaxElapsedTime = 0

	wrapped := backoff.WithContext(backoff.WithMaxRetries(b, uint64(opts.Attempts-1)), ctx)

	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !shouldRetry(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, wrapped)
}

// DoAll is Do with every error treated as retryable.
func DoAll[T any](ctx context.Context, opts Options, op func() (T, error)) (T, error) {
	return Do(ctx, opts, op, func(error) bool { return true })
}
