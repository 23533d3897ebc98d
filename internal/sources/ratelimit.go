package sources

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests to the search API. It is shared by both transports
// because they draw from the same upstream quota. A nil *RateLimiter never waits.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a token bucket limiter. A non-positive rate disables pacing.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if ratePerSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a request is allowed or the context is canceled
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
