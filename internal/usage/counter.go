// Package usage tracks how often each API token is used without putting a
// database write on the request path.
package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clusterdeck/clusterdeck/internal/config"
)

// Flusher persists accumulated per-token counts.
type Flusher interface {
	Flush(ctx context.Context, counts map[string]int64) error
}

// Config holds configuration for the Counter.
type Config struct {
	FlushInterval time.Duration
	BatchSize     int // flush once this many uses are pending
	ChannelBuffer int
	FlushTimeout  time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 10 * time.Second,
		BatchSize:     100,
		ChannelBuffer: 10000,
		FlushTimeout:  5 * time.Second,
	}
}

// ConfigFrom converts the environment configuration.
func ConfigFrom(c config.UsageConfig) Config {
	cfg := DefaultConfig()
	if c.FlushInterval > 0 {
		cfg.FlushInterval = c.FlushInterval
	}
	if c.BatchSize > 0 {
		cfg.BatchSize = c.BatchSize
	}
	if c.ChannelBuffer > 0 {
		cfg.ChannelBuffer = c.ChannelBuffer
	}
	return cfg
}

// Counter batches token uses and hands them to a Flusher on an interval,
// when the batch fills, and once more on Stop. Record never blocks; uses
// that arrive while the buffer is full are dropped.
type Counter struct {
	flusher Flusher
	cfg     Config

	uses    chan string
	mu      sync.Mutex
	counts  map[string]int64
	pending int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	stopped  atomic.Bool
	dropped  atomic.Int64
}

// NewCounter starts a Counter.
func NewCounter(cfg Config, flusher Flusher) *Counter {
	def := DefaultConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = def.ChannelBuffer
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}

	c := &Counter{
		flusher: flusher,
		cfg:     cfg,
		uses:    make(chan string, cfg.ChannelBuffer),
		counts:  make(map[string]int64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// Record counts one use of tokenName.
func (c *Counter) Record(tokenName string) {
	if c.stopped.Load() {
		return
	}
	select {
	case c.uses <- tokenName:
	default:
		c.dropped.Add(1)
	}
}

// Stop drains buffered uses, flushes them, and waits for the loop to exit.
// It is safe to call more than once.
func (c *Counter) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stop)
		<-c.done
	})
}

// Pending returns a snapshot of counts not yet flushed.
func (c *Counter) Pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Dropped returns how many uses were discarded because the buffer was full.
func (c *Counter) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Counter) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case name := <-c.uses:
			if c.add(name) {
				c.flush()
			}
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			c.drain()
			c.flush()
			return
		}
	}
}

func (c *Counter) drain() {
	for {
		select {
		case name := <-c.uses:
			c.add(name)
		default:
			return
		}
	}
}

// add counts one use and reports whether the batch is full.
func (c *Counter) add(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
	c.pending++
	return c.pending >= c.cfg.BatchSize
}

func (c *Counter) flush() {
	c.mu.Lock()
	if len(c.counts) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.counts
	c.counts = make(map[string]int64)
	c.pending = 0
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FlushTimeout)
	defer cancel()

	// Failures are logged by the flusher; the batch is not retried.
	_ = c.flusher.Flush(ctx, batch)
}
