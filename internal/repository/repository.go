// Package repository handles data persistence.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clusterdeck/clusterdeck/internal/models"
)

// ClusterRepository persists clusters.
type ClusterRepository interface {
	// Create stores a cluster in the provisioning state.
	Create(ctx context.Context, create *models.ClusterCreate) (*models.Cluster, error)
	Get(ctx context.Context, id string) (*models.Cluster, error)
	// List returns clusters matching filter, ordered by name.
	List(ctx context.Context, filter models.ClusterFilter) ([]*models.Cluster, error)
	// Update applies update atomically and returns the new state.
	Update(ctx context.Context, id string, update *models.ClusterUpdate) (*models.Cluster, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	HealthCheck(ctx context.Context) error
}

// TokenRepository persists API tokens.
type TokenRepository interface {
	// Create hashes the key and stores the token.
	Create(ctx context.Context, create *models.TokenCreate) (*models.Token, error)
	Get(ctx context.Context, name string) (*models.Token, error)
	// List returns the tokens owned by userID, newest first.
	List(ctx context.Context, userID string) ([]*models.Token, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	// BatchRecordUsage adds counts to usage_count and stamps last_used_at.
	// Unknown names are ignored.
	BatchRecordUsage(ctx context.Context, counts map[string]int64) error
	HealthCheck(ctx context.Context) error
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
