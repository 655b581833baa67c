// Package rate throttles mutating API calls with fixed windows per key.
package rate

import (
	"sync"
	"time"
)

// Rule is a budget of Limit calls per Window. A zero Limit disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

func PerMinute(n int) Rule { return Rule{Limit: n, Window: time.Minute} }

type Limiter interface {
	// Allow spends one call from key's budget. When it refuses, the duration
	// is how long until the window resets.
	Allow(key string, rule Rule) (bool, time.Duration)
}

type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	used    int
	resetAt time.Time
	rule    Rule
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window), now: time.Now}
}

func (m *MemoryLimiter) Allow(key string, rule Rule) (bool, time.Duration) {
	if rule.Limit <= 0 {
		return true, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) || w.rule != rule {
		w = &window{resetAt: now.Add(rule.Window), rule: rule}
		m.windows[key] = w
	}
	if w.used >= rule.Limit {
		return false, w.resetAt.Sub(now)
	}
	w.used++
	return true, w.resetAt.Sub(now)
}

// Sweep drops expired windows and reports how many were removed.
func (m *MemoryLimiter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
			n++
		}
	}
	return n
}
