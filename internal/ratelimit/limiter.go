// Package ratelimit provides token-bucket limiters for platform calls and
// per-shop budgets for write actions.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Call classes understood by ServiceLimiter.
const (
	ClassQuery    = "query"
	ClassMutation = "mutation"
	ClassBulk     = "bulk"
)

// ServiceRates configures per-class request rates (requests per second).
type ServiceRates struct {
	Query    float64
	Mutation float64
	Bulk     float64
}

// DefaultServiceRates stays under the Admin API leaky bucket for a standard plan.
func DefaultServiceRates() ServiceRates {
	return ServiceRates{
		Query:    2,
		Mutation: 2,
		Bulk:     0.5,
	}
}

// ServiceLimiter rate-limits platform calls per class using token buckets.
type ServiceLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func newLimiter(r float64) *rate.Limiter {
	burst := int(r)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r), burst)
}

// NewServiceLimiter creates a limiter with the given per-class rates.
func NewServiceLimiter(rates ServiceRates) *ServiceLimiter {
	return &ServiceLimiter{limiters: map[string]*rate.Limiter{
		ClassQuery:    newLimiter(rates.Query),
		ClassMutation: newLimiter(rates.Mutation),
		ClassBulk:     newLimiter(rates.Bulk),
	}}
}

// Wait blocks until a token is available for the named class, or ctx is cancelled.
func (sl *ServiceLimiter) Wait(ctx context.Context, class string) error {
	sl.mu.RLock()
	limiter, ok := sl.limiters[class]
	sl.mu.RUnlock()
	if !ok {
		return nil // unknown class = no limit
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", class, err)
	}
	return nil
}
