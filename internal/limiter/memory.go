package limiter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/and161185/keygate/internal/clock"
)

// Memory is an in-process sliding-window limiter. State resets on restart.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	limits  Limits
	buckets map[string][]time.Time // attempt times, oldest first
}

// NewMemory constructs an in-memory limiter.
func NewMemory(limits Limits, clk clock.Clock) *Memory {
	if limits == nil {
		limits = Limits{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory{clock: clk, limits: limits, buckets: make(map[string][]time.Time)}
}

// Allow prunes attempts at or before now-window, then admits the call if fewer than Max remain.
func (m *Memory) Allow(_ context.Context, userID int64, op string) (bool, time.Duration, error) {
	if op == "" {
		return false, 0, errors.New("operation required")
	}
	lim := m.limits.For(op)
	key := bucketKey(userID, op)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	cutoff := now.Add(-lim.Window)

	ts := m.buckets[key]
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]

	if len(ts) >= lim.Max {
		m.buckets[key] = ts
		return false, ts[0].Add(lim.Window).Sub(now), nil
	}

	m.buckets[key] = append(ts, now)
	return true, 0, nil
}

// trackedWindows reports how many (user, operation) windows are tracked.
func (m *Memory) trackedWindows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Cleanup drops windows with no attempts left inside their window.
func (m *Memory) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	dropped := 0
	for key, ts := range m.buckets {
		op := key[strings.IndexByte(key, ':')+1:]
		if len(ts) == 0 || !ts[len(ts)-1].After(now.Add(-m.limits.For(op).Window)) {
			delete(m.buckets, key)
			dropped++
		}
	}
	return dropped
}
