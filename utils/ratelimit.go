package utils

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"msgfetch/internal"
)

// RequestLimiter paces API requests to a fixed rate. A rate of zero disables pacing.
type RequestLimiter struct {
	mutex   sync.RWMutex
	limiter *rate.Limiter
	rps     float64
}

// NewRequestLimiter creates a limiter allowing requestsPerSecond requests with a burst of one
func NewRequestLimiter(requestsPerSecond float64) internal.RateLimiter {
	r := &RequestLimiter{}
	r.SetRate(requestsPerSecond)
	return r
}

// Wait blocks until the next request may be sent or ctx is done
func (r *RequestLimiter) Wait(ctx context.Context) error {
	r.mutex.RLock()
	limiter := r.limiter
	r.mutex.RUnlock()

	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

// SetRate changes the pacing rate. Values <= 0 disable pacing.
func (r *RequestLimiter) SetRate(requestsPerSecond float64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.rps = requestsPerSecond
	if requestsPerSecond <= 0 {
		r.limiter = nil
		return
	}
	if r.limiter == nil {
		r.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
		return
	}
	r.limiter.SetLimit(rate.Limit(requestsPerSecond))
}

// Rate returns the configured requests per second
func (r *RequestLimiter) Rate() float64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.rps
}
