package quotes

import (
	"sync"
	"time"
)

// Limit is a per-provider fixed-window request budget.
type Limit struct {
	Requests int
	Window   time.Duration
}

type window struct {
	start time.Time
	count int
}

// RateLimiter tracks fixed-window counters per provider. Check-and-increment
// is atomic across concurrent workers.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	windows map[string]*window
	now     func() time.Time
}

// NewRateLimiter constructs a limiter from per-provider limits. Providers
// without an entry are unlimited.
func NewRateLimiter(limits map[string]Limit) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Acquire records a request if the provider's window has budget, returning
// false when the caller must back off or fall back to another provider.
func (l *RateLimiter) Acquire(provider string) bool {
	limit, ok := l.limits[provider]
	if !ok || limit.Requests <= 0 || limit.Window <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[provider]
	if w == nil || now.Sub(w.start) >= limit.Window {
		w = &window{start: now}
		l.windows[provider] = w
	}

	if w.count >= limit.Requests {
		return false
	}
	w.count++
	return true
}

// Remaining reports the unused budget in the provider's current window.
func (l *RateLimiter) Remaining(provider string) int {
	limit, ok := l.limits[provider]
	if !ok {
		return -1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[provider]
	if w == nil || l.now().Sub(w.start) >= limit.Window {
		return limit.Requests
	}
	remaining := limit.Requests - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
