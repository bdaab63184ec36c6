package repository

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/clusterdeck/clusterdeck/internal/models"
)

// MemoryClusterRepository is a ClusterRepository kept in process memory.
// It backs the server when no database is configured.
type MemoryClusterRepository struct {
	mu       sync.RWMutex
	clusters map[string]*models.Cluster
	now      func() time.Time
}

// NewMemoryClusterRepository creates an empty in-memory cluster repository.
func NewMemoryClusterRepository() *MemoryClusterRepository {
	return &MemoryClusterRepository{
		clusters: make(map[string]*models.Cluster),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func cloneCluster(c *models.Cluster) *models.Cluster {
	out := *c
	out.Labels = maps.Clone(c.Labels)
	out.Annotations = maps.Clone(c.Annotations)
	return &out
}

func (r *MemoryClusterRepository) Create(_ context.Context, create *models.ClusterCreate) (*models.Cluster, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clusters[create.ID]; ok {
		return nil, models.ErrClusterExists
	}
	for _, c := range r.clusters {
		if c.Name == create.Name {
			return nil, models.ErrClusterExists
		}
	}

	now := r.now()
	c := &models.Cluster{
		ID:                create.ID,
		Name:              create.Name,
		Description:       create.Description,
		Provider:          create.Provider,
		State:             models.StateProvisioning,
		KubernetesVersion: create.KubernetesVersion,
		Labels:            maps.Clone(create.Labels),
		Annotations:       maps.Clone(create.Annotations),
		CreatorID:         create.CreatorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	r.clusters[c.ID] = c
	return cloneCluster(c), nil
}

func (r *MemoryClusterRepository) Get(_ context.Context, id string) (*models.Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clusters[id]
	if !ok {
		return nil, models.ErrClusterNotFound
	}
	return cloneCluster(c), nil
}

func (r *MemoryClusterRepository) List(_ context.Context, filter models.ClusterFilter) ([]*models.Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Cluster, 0, len(r.clusters))
	for _, c := range r.clusters {
		if filter.Matches(c) {
			out = append(out, cloneCluster(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryClusterRepository) Update(_ context.Context, id string, update *models.ClusterUpdate) (*models.Cluster, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clusters[id]
	if !ok {
		return nil, models.ErrClusterNotFound
	}
	next := cloneCluster(c)
	update.Apply(next)
	next.Labels = maps.Clone(next.Labels)
	next.Annotations = maps.Clone(next.Annotations)
	next.UpdatedAt = r.now()
	r.clusters[id] = next
	return cloneCluster(next), nil
}

func (r *MemoryClusterRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clusters[id]; !ok {
		return models.ErrClusterNotFound
	}
	delete(r.clusters, id)
	return nil
}

func (r *MemoryClusterRepository) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clusters[id]
	return ok, nil
}

func (r *MemoryClusterRepository) HealthCheck(context.Context) error { return nil }

// MemoryTokenRepository is a TokenRepository kept in process memory.
type MemoryTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]*models.Token
	now    func() time.Time
}

// NewMemoryTokenRepository creates an empty in-memory token repository.
func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{
		tokens: make(map[string]*models.Token),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func cloneToken(t *models.Token) *models.Token {
	out := *t
	return &out
}

func (r *MemoryTokenRepository) Create(_ context.Context, create *models.TokenCreate) (*models.Token, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[create.Name]; ok {
		return nil, fmt.Errorf("token %s: %w", create.Name, models.ErrTokenExists)
	}
	t := &models.Token{
		Name:        create.Name,
		KeyHash:     models.HashTokenKey(create.Key),
		UserID:      create.UserID,
		Description: create.Description,
		Enabled:     true,
		ExpiresAt:   create.ExpiresAt,
		CreatedAt:   r.now(),
	}
	r.tokens[t.Name] = t
	return cloneToken(t), nil
}

func (r *MemoryTokenRepository) Get(_ context.Context, name string) (*models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[name]
	if !ok {
		return nil, models.ErrTokenNotFound
	}
	return cloneToken(t), nil
}

func (r *MemoryTokenRepository) List(_ context.Context, userID string) ([]*models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Token, 0)
	for _, t := range r.tokens {
		if t.UserID == userID {
			out = append(out, cloneToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemoryTokenRepository) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[name]; !ok {
		return models.ErrTokenNotFound
	}
	delete(r.tokens, name)
	return nil
}

func (r *MemoryTokenRepository) Exists(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[name]
	return ok, nil
}

func (r *MemoryTokenRepository) BatchRecordUsage(_ context.Context, counts map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for name, n := range counts {
		t, ok := r.tokens[name]
		if !ok {
			continue
		}
		t.UsageCount += n
		used := now
		t.LastUsedAt = &used
	}
	return nil
}

func (r *MemoryTokenRepository) HealthCheck(context.Context) error { return nil }
