package usage

import (
	"context"

	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

// UsageStore persists token usage counts.
type UsageStore interface {
	BatchRecordUsage(ctx context.Context, counts map[string]int64) error
}

// RepositoryFlusher implements Flusher on top of a token repository.
type RepositoryFlusher struct {
	store UsageStore
	log   *logger.Logger
}

// NewRepositoryFlusher creates a RepositoryFlusher.
func NewRepositoryFlusher(store UsageStore, log *logger.Logger) *RepositoryFlusher {
	if log == nil {
		log = logger.Nop()
	}
	return &RepositoryFlusher{store: store, log: log}
}

// Flush writes counts to the store.
func (f *RepositoryFlusher) Flush(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	if err := f.store.BatchRecordUsage(ctx, counts); err != nil {
		f.log.Error("failed to flush token usage", "error", err.Error(), "tokens", len(counts))
		return err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	metrics.RecordTokenUsageFlushed(len(counts))
	f.log.Debug("flushed token usage", "tokens", len(counts), "uses", total)
	return nil
}
