package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExceeded is wrapped by Take when a window is full.
var ErrBudgetExceeded = errors.New("budget exceeded")

type budgetKey struct {
	shop   string
	action string
}

type window struct {
	used int
	ends time.Time
}

// ActionBudget caps how often each (shop, action) pair may run within a
// fixed window. Windows start at the first call.
type ActionBudget struct {
	mu      sync.Mutex
	windows map[budgetKey]*window

	limit int
	size  time.Duration
	now   func() time.Time
}

// NewActionBudget allows limit calls per (shop, action) in each window of size.
func NewActionBudget(limit int, size time.Duration) *ActionBudget {
	return &ActionBudget{
		windows: make(map[budgetKey]*window),
		limit:   limit,
		size:    size,
		now:     time.Now,
	}
}

// current returns the live window for k, opening a fresh one if needed.
// Callers hold mu.
func (b *ActionBudget) current(k budgetKey) *window {
	now := b.now()
	w, ok := b.windows[k]
	if !ok || now.After(w.ends) {
		w = &window{ends: now.Add(b.size)}
		b.windows[k] = w
	}
	return w
}

// Take consumes one call or reports that the window is full.
func (b *ActionBudget) Take(shop, action string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.current(budgetKey{shop, action})
	if w.used >= b.limit {
		return fmt.Errorf("%w: shop %s action %s (%d/%d in window)", ErrBudgetExceeded, shop, action, w.used, b.limit)
	}
	w.used++
	return nil
}

// Remaining reports how many calls are left in the current window.
func (b *ActionBudget) Remaining(shop, action string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return max(b.limit-b.current(budgetKey{shop, action}).used, 0)
}
