package transport

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles an adapter's outbound calls (Send/SendTyping) to a
// steady rate with a small burst allowance, so a single noisy channel can't
// trip the remote platform's own 429/retry_after limits.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter returns a RateLimiter allowing ratePerSecond steady-state
// requests with burst allowed immediately. A non-positive ratePerSecond
// disables limiting (Wait always returns immediately).
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if ratePerSecond <= 0 {
		return &RateLimiter{lim: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.lim.Wait(ctx)
}
