// Package events fans cluster change notifications out to WebSocket
// subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/internal/models"
)

// Type names the kind of change.
type Type string

// Event types.
const (
	Created Type = "resource.create"
	Updated Type = "resource.change"
	Removed Type = "resource.remove"
	Ping    Type = "ping"
)

// Event is one message on the subscribe stream.
type Event struct {
	Name         Type            `json:"name"`
	ResourceType string          `json:"resourceType,omitempty"`
	Data         *models.Cluster `json:"data,omitempty"`
	Time         time.Time       `json:"time"`
}

// ClusterEvent builds an event for a cluster change.
func ClusterEvent(t Type, c *models.Cluster) Event {
	return Event{Name: t, ResourceType: "cluster", Data: c, Time: time.Now().UTC()}
}

// Publisher is the write side of a Broadcaster.
type Publisher interface {
	Publish(Event)
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Broadcaster delivers every published event to every subscriber. A
// subscriber whose queue is full misses the event; Publish never blocks.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewBroadcaster creates a Broadcaster. A non-positive buffer uses
// DefaultBuffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscription receives events until it is unsubscribed.
type Subscription struct {
	ch      chan Event
	b       *Broadcaster
	once    sync.Once
	dropped atomic.Int64
}

// Events returns the receive channel. It is closed on Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.b.mu.Lock()
		if _, ok := s.b.subs[s]; ok {
			delete(s.b.subs, s)
			close(s.ch)
		}
		s.b.mu.Unlock()
	})
}

// Subscribe registers a new subscriber. On a closed broadcaster the
// returned subscription's channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan Event, b.buffer), b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers e to all current subscribers.
func (b *Broadcaster) Publish(e Event) {
	metrics.RecordClusterEvent(string(e.Name))

	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
			metrics.RecordEventDropped()
		}
	}
}

// Len returns the number of live subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone. Later Publish calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
}
