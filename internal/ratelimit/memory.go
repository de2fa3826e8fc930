package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	windowStart time.Time
	window      time.Duration
	count       int
	members     map[string]struct{}
}

func (c *counter) expired(now time.Time) bool {
	return now.Sub(c.windowStart) >= c.window
}

// MemoryCounters is the in-process CounterStore for single-instance
// deployments. Counters are created lazily and reset when their window
// elapses; blocks are plain deadlines.
type MemoryCounters struct {
	mu       sync.Mutex
	counters map[string]*counter
	blocks   map[string]time.Time

	now func() time.Time
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{
		counters: make(map[string]*counter),
		blocks:   make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemoryCounters) armed(key string, window time.Duration, now time.Time) *counter {
	c, ok := m.counters[key]
	if !ok || c.expired(now) {
		c = &counter{windowStart: now, window: window}
		m.counters[key] = c
	}
	return c
}

func (m *MemoryCounters) IncrWindow(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.armed(key, window, m.now())
	c.count++
	return c.count, nil
}

func (m *MemoryCounters) AddDistinct(_ context.Context, key, member string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.armed(key, window, m.now())
	if c.members == nil {
		c.members = make(map[string]struct{})
	}
	c.members[member] = struct{}{}
	return len(c.members), nil
}

func (m *MemoryCounters) Block(_ context.Context, key string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[key] = m.now().Add(d)
	return nil
}

func (m *MemoryCounters) Blocked(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.blocks[key]
	if !ok {
		return false, nil
	}
	if m.now().After(until) {
		delete(m.blocks, key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryCounters) WindowRemaining(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok {
		return 0, nil
	}
	remaining := c.windowStart.Add(c.window).Sub(m.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Prune drops decayed counters and elapsed blocks. Called from the same
// periodic sweep that evicts expired records; purely a memory bound, not
// part of the correctness contract.
func (m *MemoryCounters) Prune() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, c := range m.counters {
		if c.expired(now) {
			delete(m.counters, key)
		}
	}
	for key, until := range m.blocks {
		if now.After(until) {
			delete(m.blocks, key)
		}
	}
}
