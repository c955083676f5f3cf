// Package ratelimit implements fixed-window request budgets keyed by client.
package ratelimit

import (
	"fmt"
	"time"
)

// Limit defines a request budget per window.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Enabled returns true if both the budget and the window are set.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

// Result is the outcome of a rate limit check.
type Result struct {
	Exceeded   bool
	Current    int
	Limit      int
	RetryAfter time.Duration
	Reason     string
}

// Check compares the current count against the limit.
func Check(count int, limit Limit) Result {
	if !limit.Enabled() {
		return Result{}
	}
	if count >= limit.MaxRequests {
		return Result{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return Result{Current: count, Limit: limit.MaxRequests}
}
