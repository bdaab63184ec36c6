package usage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	got map[string]int64
	err error
}

func (s *stubStore) BatchRecordUsage(_ context.Context, counts map[string]int64) error {
	s.got = counts
	return s.err
}

func TestRepositoryFlusher_Flush(t *testing.T) {
	store := &stubStore{}
	f := NewRepositoryFlusher(store, nil)

	require.NoError(t, f.Flush(context.Background(), map[string]int64{"token-a": 3}))
	assert.Equal(t, map[string]int64{"token-a": 3}, store.got)
}

func TestRepositoryFlusher_EmptySkipsStore(t *testing.T) {
	store := &stubStore{err: errors.New("should not be called")}
	f := NewRepositoryFlusher(store, nil)

	assert.NoError(t, f.Flush(context.Background(), nil))
	assert.Nil(t, store.got)
}

func TestRepositoryFlusher_StoreError(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	f := NewRepositoryFlusher(store, nil)

	err := f.Flush(context.Background(), map[string]int64{"token-a": 1})
	assert.EqualError(t, err, "db down")
}
