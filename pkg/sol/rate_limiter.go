package sol

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter provides rate limiting functionality for RPC calls
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter with the specified requests per second.
// A non-positive rate disables limiting.
func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// Wait blocks until the rate limiter allows the request
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// Allow returns true if the request is allowed without waiting
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}
