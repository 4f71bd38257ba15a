// Package retry implements the gateway's retry/fallback executor: it
// walks an ordered provider chain, retrying a transient failure against
// the same provider with exponential backoff before giving up on that
// provider and moving to the next fallback link.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/blueberrycongee/aihub/internal/router"
	aerrors "github.com/blueberrycongee/aihub/pkg/errors"
)

// Config holds the backoff schedule and retry budget.
type Config struct {
	Base        time.Duration
	Growth      float64
	MaxAttempts int
}

// DefaultConfig returns base 1s, growth 5, three attempts: sleeps of 1s
// and then 5s between them.
func DefaultConfig() Config {
	return Config{Base: time.Second, Growth: 5, MaxAttempts: 3}
}

// Backoff returns the sleep duration before attempt n+1, where n is
// the attempt number that just failed (1-indexed).
func (c Config) Backoff(n int) time.Duration {
	return time.Duration(float64(c.Base) * math.Pow(c.Growth, float64(n-1)))
}

// AttemptFunc performs a single call against one provider chain entry.
// Implementations are expected to return a *aerrors.Error classified by
// the provider adapter's MapError.
type AttemptFunc[T any] func(ctx context.Context, entry router.Entry) (T, error)

// Result describes which link in the chain ultimately served the request.
type Result[T any] struct {
	Response     T
	Provider     string
	Original     string
	Attempts     int
	UsedFallback bool
}

// Run walks chain, retrying each entry up to cfg.MaxAttempts times per
// the classification rules (auth/bad_request fail fast to the next
// provider; rate_limited/transient back off and retry) before moving
// on. It returns the first success, or the last observed error if
// every entry in the chain is exhausted. Cancellation is honoured
// before every attempt and before every sleep.
func Run[T any](ctx context.Context, chain []router.Entry, cfg Config, attempt AttemptFunc[T]) (*Result[T], error) {
	if len(chain) == 0 {
		return nil, aerrors.NewProviderNotConfigured("")
	}
	original := chain[0].Family
	var lastErr error = aerrors.NewInternal("retry: no provider attempted")

providerLoop:
	for _, entry := range chain {
		for n := 1; n <= cfg.MaxAttempts; n++ {
			if err := ctx.Err(); err != nil {
				return nil, aerrors.NewCancelled(err.Error())
			}

			resp, err := attempt(ctx, entry)
			if err == nil {
				return &Result[T]{
					Response:     resp,
					Provider:     entry.Family,
					Original:     original,
					Attempts:     n,
					UsedFallback: entry.Family != original,
				}, nil
			}
			lastErr = err

			ae, ok := aerrors.As(err)
			if !ok {
				continue providerLoop
			}

			switch ae.Kind {
			case aerrors.KindUpstreamRateLimited, aerrors.KindUpstreamTransient:
				if n == cfg.MaxAttempts {
					continue providerLoop
				}
				wait := cfg.Backoff(n)
				if ae.Kind == aerrors.KindUpstreamRateLimited {
					if retryAfter, ok := ae.Metadata["retry_after"].(time.Duration); ok && retryAfter > wait {
						wait = retryAfter
					}
				}
				if !sleep(ctx, wait) {
					return nil, aerrors.NewCancelled("cancelled during backoff")
				}
			default:
				// auth, bad_request, and anything unclassified fail
				// fast to the next provider without consuming retries.
				continue providerLoop
			}
		}
	}

	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
