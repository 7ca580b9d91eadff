// Package ratelimit paces operations against external services. It wraps a
// token bucket implementation behind an interface so rate limiting can be
// applied wherever needed, from individual requests to connection attempts,
// and swapped out in tests.
//
// The session write path uses it to keep outbound request frequency under
// the server's limits.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/ratelimit"
)

// Rate is a rate limit: Limit operations per Interval.
type Rate struct {
	Limit    int
	Interval time.Duration
}

// RateLimiter controls the pace of operations by forcing callers to wait
// when the configured rate would otherwise be exceeded.
type RateLimiter interface {
	// Wait blocks until an operation is permitted or ctx is cancelled
	Wait(ctx context.Context) error

	// SetLimit replaces the rate limit at runtime
	SetLimit(limit Rate) error
}

// uberLimiter implements RateLimiter using Uber's token bucket
type uberLimiter struct {
	limiter ratelimit.Limiter
	rate    Rate
}

// NewTokenBucketLimiter creates a rate limiter allowing rate.Limit
// operations per rate.Interval.
func NewTokenBucketLimiter(rate Rate) RateLimiter {
	rps := float64(rate.Limit) / rate.Interval.Seconds()
	return &uberLimiter{
		limiter: ratelimit.New(int(rps)),
		rate:    rate,
	}
}

// Wait implements the RateLimiter interface
func (l *uberLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
	default:
		l.limiter.Take()
		return nil
	}
}

// SetLimit implements the RateLimiter interface
func (l *uberLimiter) SetLimit(rate Rate) error {
	if rate.Limit <= 0 || rate.Interval <= 0 {
		return fmt.Errorf("invalid rate limit: %+v", rate)
	}
	rps := float64(rate.Limit) / rate.Interval.Seconds()
	l.limiter = ratelimit.New(int(rps))
	l.rate = rate
	return nil
}
