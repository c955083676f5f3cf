package ratelimit

import (
	"sync"
	"time"
)

// sweepThreshold bounds how many idle windows are kept before expired
// ones are dropped.
const sweepThreshold = 1024

type window struct {
	start time.Time
	count int
}

// Limiter tracks one fixed window per key. A nil *Limiter allows everything.
type Limiter struct {
	limit Limit
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// New returns a Limiter enforcing limit, or nil if limit is disabled.
func New(limit Limit) *Limiter {
	if !limit.Enabled() {
		return nil
	}
	return &Limiter{
		limit:   limit,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Limit returns the configured budget.
func (l *Limiter) Limit() Limit {
	if l == nil {
		return Limit{}
	}
	return l.limit
}

// Allow records a request for key. When the budget is spent the request is
// not counted and the result carries the time until the window resets.
func (l *Limiter) Allow(key string) Result {
	if l == nil {
		return Result{}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.snapshot(key, now)
	res := Check(w.count, l.limit)
	if res.Exceeded {
		res.RetryAfter = w.start.Add(l.limit.Window).Sub(now)
		return res
	}
	w.count++
	res.Current = w.count
	return res
}

// snapshot returns the live window for key, resetting it if it expired.
func (l *Limiter) snapshot(key string, now time.Time) *window {
	w, ok := l.windows[key]
	if ok && now.Sub(w.start) < l.limit.Window {
		return w
	}
	if !ok && len(l.windows) >= sweepThreshold {
		l.sweep(now)
	}
	w = &window{start: now}
	l.windows[key] = w
	return w
}

func (l *Limiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.limit.Window {
			delete(l.windows, k)
		}
	}
}
