package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a per-process sliding window limiter.
type MemoryLimiter struct {
	config  Config
	entries sync.Map // identifier -> *window

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type window struct {
	mu         sync.Mutex
	timestamps []time.Time
	// dead is set under mu once the window has been removed from entries.
	dead bool
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// order, so the survivors are a suffix.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	w.timestamps = w.timestamps[i:]
}

// NewMemoryLimiter creates the limiter and starts its janitor goroutine.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	m := &MemoryLimiter{config: cfg, done: make(chan struct{})}
	m.wg.Add(1)
	go m.janitor()
	return m
}

// Allow records a request for identifier if the window has room.
func (m *MemoryLimiter) Allow(ctx context.Context, identifier string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	w := m.lock(identifier)
	defer w.mu.Unlock()

	w.prune(now.Add(-m.config.Window))

	allowed := len(w.timestamps) < m.config.Requests
	if allowed {
		w.timestamps = append(w.timestamps, now)
	}

	var oldest time.Time
	if len(w.timestamps) > 0 {
		oldest = w.timestamps[0]
	}
	return m.config.result(allowed, len(w.timestamps), oldest, now), nil
}

// lock returns the live window for identifier with its mutex held. A window
// removed by sweep or Reset between the load and the lock is skipped.
func (m *MemoryLimiter) lock(identifier string) *window {
	for {
		v, _ := m.entries.LoadOrStore(identifier, &window{})
		w := v.(*window)
		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
	}
}

// remove retires w and deletes it from entries if it is still current.
// The caller holds w.mu.
func (m *MemoryLimiter) remove(key any, w *window) {
	w.dead = true
	m.entries.CompareAndDelete(key, w)
}

// Reset forgets identifier.
func (m *MemoryLimiter) Reset(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v, ok := m.entries.Load(identifier); ok {
		w := v.(*window)
		w.mu.Lock()
		m.remove(identifier, w)
		w.mu.Unlock()
	}
	return nil
}

// Close stops the janitor. It is safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
	return nil
}

func (m *MemoryLimiter) janitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Window)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep removes identifiers with no requests left in the window.
func (m *MemoryLimiter) sweep(now time.Time) {
	cutoff := now.Add(-m.config.Window)
	m.entries.Range(func(key, value any) bool {
		w := value.(*window)
		w.mu.Lock()
		w.prune(cutoff)
		if len(w.timestamps) == 0 {
			m.remove(key, w)
		}
		w.mu.Unlock()
		return true
	})
}
