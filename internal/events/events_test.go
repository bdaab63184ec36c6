package events

import (
	"sync"
	"testing"

	"github.com/clusterdeck/clusterdeck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_Fanout(t *testing.T) {
	b := NewBroadcaster(4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.Len())

	c := &models.Cluster{ID: "c-abcde", Name: "prod"}
	b.Publish(ClusterEvent(Created, c))

	for _, s := range []*Subscription{s1, s2} {
		e := <-s.Events()
		assert.Equal(t, Created, e.Name)
		assert.Equal(t, "cluster", e.ResourceType)
		assert.Equal(t, "c-abcde", e.Data.ID)
		assert.False(t, e.Time.IsZero())
	}
}

func TestBroadcaster_SlowSubscriberDrops(t *testing.T) {
	b := NewBroadcaster(1)
	s := b.Subscribe()

	b.Publish(Event{Name: Updated})
	b.Publish(Event{Name: Removed})

	assert.Equal(t, int64(1), s.Dropped())
	e := <-s.Events()
	assert.Equal(t, Updated, e.Name)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(0)
	s := b.Subscribe()

	s.Unsubscribe()
	s.Unsubscribe()

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.Zero(t, b.Len())
	assert.NotPanics(t, func() { b.Publish(Event{Name: Ping}) })
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(0)
	s := b.Subscribe()

	b.Close()
	b.Close()

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.NotPanics(t, s.Unsubscribe)

	late := b.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok)
}

func TestBroadcaster_ConcurrentPublish(t *testing.T) {
	b := NewBroadcaster(1000)
	s := b.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(Event{Name: Updated})
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 500, len(s.Events()))
}
