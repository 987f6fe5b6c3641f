package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Block-Logic/ping-thing-client/internal/metrics"
)

// Limiter paces probe submissions to an RPC provider's quota.
type Limiter struct {
	limiter *rate.Limiter
}

// PerMinute allows n probes per minute, with a burst of one so probes
// stay evenly spaced rather than front-loaded. n <= 0 disables pacing.
func PerMinute(n int) *Limiter {
	if n <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)}
}

// Wait blocks until the limiter allows one probe, or ctx is done.
// Uses Reserve() to guarantee exactly one token is consumed per call.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay > 0 {
		metrics.RateLimitWaits.Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}
