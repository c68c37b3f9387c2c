// Package ratelimiter throttles connection acceptance with a token bucket.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// unlimitedRate stands in for "no limit". rate.Inf disables Tokens()
// accounting, which the reactor reports in debug logs.
const unlimitedRate = 1_000_000_000

// RateLimiter wraps golang.org/x/time/rate.
//
// The reactor consumes one token per accepted socket. Sockets accepted
// while the bucket is empty are closed immediately, which keeps an accept
// storm from flooding the dispatcher queue with work it would refuse anyway.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter   *rate.Limiter
	unlimited bool
}

// New creates a limiter allowing perSecond sustained events with a bucket of
// burst tokens. perSecond = 0 means unlimited. A zero burst with a non-zero
// rate defaults to perSecond.
func New(perSecond, burst uint) *RateLimiter {
	unlimited := perSecond == 0
	if unlimited {
		perSecond = unlimitedRate
		burst = unlimitedRate
	}
	if burst == 0 {
		burst = perSecond
	}

	return &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(perSecond), int(burst)),
		unlimited: unlimited,
	}
}

// Allow consumes a token if one is available and reports whether it did.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. 0 means unlimited. The burst follows
// the new rate when it was tracking the old one.
func (r *RateLimiter) SetLimit(perSecond uint) {
	r.unlimited = perSecond == 0
	if r.unlimited {
		perSecond = unlimitedRate
	}

	oldRate := uint(r.limiter.Limit())
	oldBurst := uint(r.limiter.Burst())
	r.limiter.SetLimit(rate.Limit(perSecond))

	if oldBurst <= oldRate {
		r.limiter.SetBurst(int(perSecond))
	}
}

// SetBurst changes the bucket capacity.
func (r *RateLimiter) SetBurst(burst uint) {
	r.limiter.SetBurst(int(burst))
}

// Tokens returns the number of tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// Unlimited reports whether the limiter was configured without a limit.
func (r *RateLimiter) Unlimited() bool {
	return r.unlimited
}
