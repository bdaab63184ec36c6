// Package services contains business logic.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/clusterdeck/clusterdeck/internal/events"
	"github.com/clusterdeck/clusterdeck/internal/idgen"
	"github.com/clusterdeck/clusterdeck/internal/models"
	"github.com/clusterdeck/clusterdeck/internal/repository"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

// idRetries bounds collision retries when picking an identifier.
const idRetries = 5

// contextGenerator is implemented by generators that consult storage.
type contextGenerator interface {
	GenerateWithContext(ctx context.Context) (string, error)
}

func generate(ctx context.Context, g idgen.Generator) (string, error) {
	if cg, ok := g.(contextGenerator); ok {
		return cg.GenerateWithContext(ctx)
	}
	return g.Generate()
}

// CreateClusterRequest represents the input for creating a cluster.
type CreateClusterRequest struct {
	Name              string
	Description       string
	Provider          string
	KubernetesVersion string
	Labels            map[string]string
	Annotations       map[string]string
	CreatorID         string
}

// ClusterService defines cluster management operations.
type ClusterService interface {
	Create(ctx context.Context, req CreateClusterRequest) (*models.Cluster, error)
	Get(ctx context.Context, id string) (*models.Cluster, error)
	List(ctx context.Context, filter models.ClusterFilter) ([]*models.Cluster, error)
	Update(ctx context.Context, id string, update *models.ClusterUpdate) (*models.Cluster, error)
	Delete(ctx context.Context, id string) error
}

// ClusterServiceImpl implements ClusterService and publishes a change
// event after every successful write.
type ClusterServiceImpl struct {
	repo      repository.ClusterRepository
	ids       idgen.Generator
	publisher events.Publisher
	log       *logger.Logger
}

// NewClusterService creates a ClusterService. publisher may be nil.
func NewClusterService(repo repository.ClusterRepository, publisher events.Publisher, log *logger.Logger) *ClusterServiceImpl {
	ids := idgen.NewCollisionAwareGenerator(idgen.NewClusterIDGenerator(), repo, idRetries)
	return NewClusterServiceWithGenerator(repo, ids, publisher, log)
}

// NewClusterServiceWithGenerator creates a ClusterService with a custom ID
// generator.
func NewClusterServiceWithGenerator(repo repository.ClusterRepository, ids idgen.Generator, publisher events.Publisher, log *logger.Logger) *ClusterServiceImpl {
	if log == nil {
		log = logger.Nop()
	}
	return &ClusterServiceImpl{repo: repo, ids: ids, publisher: publisher, log: log}
}

// Create registers a new cluster in the provisioning state. An empty
// provider means an imported cluster.
func (s *ClusterServiceImpl) Create(ctx context.Context, req CreateClusterRequest) (*models.Cluster, error) {
	if req.Provider == "" {
		req.Provider = models.ProviderImported
	}
	create := &models.ClusterCreate{
		Name:              req.Name,
		Description:       req.Description,
		Provider:          req.Provider,
		KubernetesVersion: req.KubernetesVersion,
		Labels:            req.Labels,
		Annotations:       req.Annotations,
		CreatorID:         req.CreatorID,
	}
	if err := create.Validate(); err != nil {
		return nil, err
	}

	id, err := generate(ctx, s.ids)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cluster id: %w", err)
	}
	create.ID = id

	c, err := s.repo.Create(ctx, create)
	if err != nil {
		return nil, err
	}

	s.log.Info("cluster created", "id", c.ID, "name", c.Name, "creator", c.CreatorID)
	s.publish(events.Created, c)
	return c, nil
}

// Get retrieves a cluster by ID.
func (s *ClusterServiceImpl) Get(ctx context.Context, id string) (*models.Cluster, error) {
	return s.repo.Get(ctx, id)
}

// List returns clusters matching filter.
func (s *ClusterServiceImpl) List(ctx context.Context, filter models.ClusterFilter) ([]*models.Cluster, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, models.ErrInvalidState
	}
	return s.repo.List(ctx, filter)
}

// Update changes the mutable fields of a cluster.
func (s *ClusterServiceImpl) Update(ctx context.Context, id string, update *models.ClusterUpdate) (*models.Cluster, error) {
	if update == nil {
		return nil, errors.New("update cannot be nil")
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	c, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}

	s.log.Info("cluster updated", "id", c.ID, "state", string(c.State))
	s.publish(events.Updated, c)
	return c, nil
}

// Delete removes a cluster. The removal event carries the last known
// state with State set to removing.
func (s *ClusterServiceImpl) Delete(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	c.State = models.StateRemoving
	s.log.Info("cluster removed", "id", c.ID, "name", c.Name)
	s.publish(events.Removed, c)
	return nil
}

func (s *ClusterServiceImpl) publish(t events.Type, c *models.Cluster) {
	if s.publisher != nil {
		s.publisher.Publish(events.ClusterEvent(t, c))
	}
}
