package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clusterdeck/clusterdeck/internal/database"
	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/internal/models"
)

const tokenColumns = `name, key_hash, user_id, description, enabled, expires_at,
	last_used_at, usage_count, created_at`

// PostgresTokenRepository implements TokenRepository using PostgreSQL.
type PostgresTokenRepository struct {
	pool *database.Pool
}

// NewPostgresTokenRepository creates a PostgreSQL-backed token repository.
func NewPostgresTokenRepository(pool *database.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

func scanToken(row pgx.Row) (*models.Token, error) {
	var t models.Token
	err := row.Scan(
		&t.Name,
		&t.KeyHash,
		&t.UserID,
		&t.Description,
		&t.Enabled,
		&t.ExpiresAt,
		&t.LastUsedAt,
		&t.UsageCount,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create stores a new enabled token.
func (r *PostgresTokenRepository) Create(ctx context.Context, create *models.TokenCreate) (*models.Token, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	defer metrics.RecordDBQuery("token_create", time.Now())

	t, err := scanToken(r.pool.QueryRow(ctx, `
		INSERT INTO tokens (name, key_hash, user_id, description, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+tokenColumns,
		create.Name,
		models.HashTokenKey(create.Key),
		create.UserID,
		create.Description,
		create.ExpiresAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("token %s: %w", create.Name, models.ErrTokenExists)
		}
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return t, nil
}

// Get retrieves a token by name.
func (r *PostgresTokenRepository) Get(ctx context.Context, name string) (*models.Token, error) {
	defer metrics.RecordDBQuery("token_get", time.Now())

	t, err := scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// List returns tokens owned by userID.
func (r *PostgresTokenRepository) List(ctx context.Context, userID string) ([]*models.Token, error) {
	defer metrics.RecordDBQuery("token_list", time.Now())

	rows, err := r.pool.Query(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE user_id = $1 ORDER BY created_at DESC, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*models.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Delete removes a token by name.
func (r *PostgresTokenRepository) Delete(ctx context.Context, name string) error {
	defer metrics.RecordDBQuery("token_delete", time.Now())

	result, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrTokenNotFound
	}
	return nil
}

// Exists reports whether a token name is taken.
func (r *PostgresTokenRepository) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tokens WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return exists, nil
}

// BatchRecordUsage applies all counts in one batch inside a transaction.
func (r *PostgresTokenRepository) BatchRecordUsage(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	defer metrics.RecordDBQuery("token_record_usage", time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for name, n := range counts {
		batch.Queue(`UPDATE tokens SET usage_count = usage_count + $2, last_used_at = NOW() WHERE name = $1`, name, n)
	}

	results := tx.SendBatch(ctx, batch)
	for range counts {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to record token usage: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// HealthCheck verifies the database connection is healthy.
func (r *PostgresTokenRepository) HealthCheck(ctx context.Context) error {
	return r.pool.HealthCheck(ctx)
}
