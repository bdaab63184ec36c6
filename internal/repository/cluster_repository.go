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

const clusterColumns = `id, name, description, provider, state, kubernetes_version,
	labels, annotations, creator_id, created_at, updated_at`

// PostgresClusterRepository implements ClusterRepository using PostgreSQL.
type PostgresClusterRepository struct {
	pool *database.Pool
}

// NewPostgresClusterRepository creates a PostgreSQL-backed cluster repository.
func NewPostgresClusterRepository(pool *database.Pool) *PostgresClusterRepository {
	return &PostgresClusterRepository{pool: pool}
}

func scanCluster(row pgx.Row) (*models.Cluster, error) {
	var c models.Cluster
	var state string
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Provider,
		&state,
		&c.KubernetesVersion,
		&c.Labels,
		&c.Annotations,
		&c.CreatorID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.State = models.ClusterState(state)
	return &c, nil
}

// nonNil keeps JSONB columns as {} rather than null.
func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Create stores a new cluster.
func (r *PostgresClusterRepository) Create(ctx context.Context, create *models.ClusterCreate) (*models.Cluster, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	defer metrics.RecordDBQuery("cluster_create", time.Now())

	query := `
		INSERT INTO clusters (id, name, description, provider, state, kubernetes_version, labels, annotations, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + clusterColumns

	c, err := scanCluster(r.pool.QueryRow(ctx, query,
		create.ID,
		create.Name,
		create.Description,
		create.Provider,
		string(models.StateProvisioning),
		create.KubernetesVersion,
		nonNil(create.Labels),
		nonNil(create.Annotations),
		create.CreatorID,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrClusterExists
		}
		return nil, fmt.Errorf("failed to create cluster: %w", err)
	}
	return c, nil
}

// Get retrieves a cluster by ID.
func (r *PostgresClusterRepository) Get(ctx context.Context, id string) (*models.Cluster, error) {
	defer metrics.RecordDBQuery("cluster_get", time.Now())
	query := `SELECT ` + clusterColumns + ` FROM clusters WHERE id = $1`
	c, err := scanCluster(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrClusterNotFound
		}
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}
	return c, nil
}

// List returns clusters matching filter. Label selectors use JSONB
// containment.
func (r *PostgresClusterRepository) List(ctx context.Context, filter models.ClusterFilter) ([]*models.Cluster, error) {
	defer metrics.RecordDBQuery("cluster_list", time.Now())

	query := `
		SELECT ` + clusterColumns + `
		FROM clusters
		WHERE ($1 = '' OR name = $1)
		  AND ($2 = '' OR state = $2)
		  AND labels @> $3
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query, filter.Name, string(filter.State), nonNil(filter.Labels))
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	defer rows.Close()

	clusters := make([]*models.Cluster, 0)
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// Update locks the row, applies update and writes it back.
func (r *PostgresClusterRepository) Update(ctx context.Context, id string, update *models.ClusterUpdate) (*models.Cluster, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	defer metrics.RecordDBQuery("cluster_update", time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := scanCluster(tx.QueryRow(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrClusterNotFound
		}
		return nil, fmt.Errorf("failed to load cluster: %w", err)
	}

	update.Apply(c)

	c, err = scanCluster(tx.QueryRow(ctx, `
		UPDATE clusters
		SET description = $2, state = $3, kubernetes_version = $4,
		    labels = $5, annotations = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+clusterColumns,
		id, c.Description, string(c.State), c.KubernetesVersion, nonNil(c.Labels), nonNil(c.Annotations)))
	if err != nil {
		return nil, fmt.Errorf("failed to update cluster: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cluster update: %w", err)
	}
	return c, nil
}

// Delete removes a cluster by ID.
func (r *PostgresClusterRepository) Delete(ctx context.Context, id string) error {
	defer metrics.RecordDBQuery("cluster_delete", time.Now())

	result, err := r.pool.Exec(ctx, `DELETE FROM clusters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrClusterNotFound
	}
	return nil
}

// Exists reports whether a cluster ID is taken.
func (r *PostgresClusterRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM clusters WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return exists, nil
}

// HealthCheck verifies the database connection is healthy.
func (r *PostgresClusterRepository) HealthCheck(ctx context.Context) error {
	return r.pool.HealthCheck(ctx)
}
