// Package resilience provides the gateway's per-process request
// governor: a token-bucket limiter that caps the rate of inbound HTTP
// requests the server accepts before they ever reach the pipeline.
package resilience

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket rate limiter backed by
// golang.org/x/time/rate. It allows bursting up to the configured
// burst size while maintaining a long-term rate limit.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
// rateLimit: requests per second allowed.
// burst: maximum burst size (bucket capacity).
func NewRateLimiter(rateLimit float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rateLimit), burst)}
}

// Allow checks if a single request should be allowed.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// AllowN checks if n requests should be allowed at once.
func (rl *RateLimiter) AllowN(n int) bool {
	return rl.limiter.AllowN(time.Now(), n)
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	return rl.limiter.Tokens()
}

// Rate returns the rate limit (tokens per second).
func (rl *RateLimiter) Rate() float64 {
	return float64(rl.limiter.Limit())
}

// Burst returns the burst size.
func (rl *RateLimiter) Burst() int {
	return rl.limiter.Burst()
}

// SetRate updates the rate limit.
func (rl *RateLimiter) SetRate(rateLimit float64) {
	rl.limiter.SetLimit(rate.Limit(rateLimit))
}

// SetBurst updates the burst size.
func (rl *RateLimiter) SetBurst(burst int) {
	rl.limiter.SetBurst(burst)
}
