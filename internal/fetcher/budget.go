package fetcher

import (
	"sync"
	"time"
)

// budgetWindow is the length of the rolling request window.
const budgetWindow = time.Hour

// RateBudget caps upstream requests per hour across all symbols. Concurrent
// callers may overshoot the cap slightly between Allow and Record.
type RateBudget struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	max         int
	now         func() time.Time
}

// NewRateBudget creates a budget allowing max requests per hour.
func NewRateBudget(max int) *RateBudget {
	return newRateBudget(max, time.Now)
}

func newRateBudget(max int, now func() time.Time) *RateBudget {
	return &RateBudget{
		max:         max,
		windowStart: now(),
		now:         now,
	}
}

// Allow reports whether another request fits in the current window.
func (b *RateBudget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	return b.count < b.max
}

// Record counts one successful request.
func (b *RateBudget) Record() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	b.count++
}

// Reset starts a new window if the current one has elapsed.
func (b *RateBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// Used returns the requests counted in the current window.
func (b *RateBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *RateBudget) resetLocked() {
	now := b.now()
	if now.Sub(b.windowStart) >= budgetWindow {
		b.count = 0
		b.windowStart = now
	}
}
