package idgen

import (
	"context"

	"github.com/clusterdeck/clusterdeck/internal/metrics"
)

// ExistenceChecker reports whether an identifier is already taken.
type ExistenceChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// CollisionAwareGenerator retries the base generator until the checker
// reports a free identifier.
type CollisionAwareGenerator struct {
	base       Generator
	checker    ExistenceChecker
	maxRetries int
}

// NewCollisionAwareGenerator creates a collision-aware generator.
// maxRetries of 0 means a single attempt.
func NewCollisionAwareGenerator(base Generator, checker ExistenceChecker, maxRetries int) *CollisionAwareGenerator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &CollisionAwareGenerator{
		base:       base,
		checker:    checker,
		maxRetries: maxRetries,
	}
}

// Generate creates a unique identifier using a background context.
func (g *CollisionAwareGenerator) Generate() (string, error) {
	return g.GenerateWithContext(context.Background())
}

// GenerateWithContext creates a unique identifier, stopping early if ctx is
// cancelled. Each collision is counted in metrics.IDCollisionsTotal.
func (g *CollisionAwareGenerator) GenerateWithContext(ctx context.Context) (string, error) {
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id, err := g.base.Generate()
		if err != nil {
			return "", err
		}

		exists, err := g.checker.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}

		metrics.RecordIDCollision()
	}

	return "", ErrMaxRetriesExceeded
}
