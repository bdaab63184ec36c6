package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterdeck/clusterdeck/internal/models"
)

func newCreate(id, name string, labels map[string]string) *models.ClusterCreate {
	return &models.ClusterCreate{ID: id, Name: name, Provider: models.ProviderImported, Labels: labels}
}

func TestMemoryClusterRepository_CRUD(t *testing.T) {
	repo := NewMemoryClusterRepository()
	ctx := context.Background()

	c, err := repo.Create(ctx, newCreate("c-aaaaa", "prod", map[string]string{"env": "prod"}))
	require.NoError(t, err)
	assert.Equal(t, models.StateProvisioning, c.State)
	assert.False(t, c.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "c-aaaaa")
	require.NoError(t, err)
	assert.Equal(t, "prod", got.Name)

	state := models.StateActive
	updated, err := repo.Update(ctx, "c-aaaaa", &models.ClusterUpdate{State: &state})
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, updated.State)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	exists, err := repo.Exists(ctx, "c-aaaaa")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Delete(ctx, "c-aaaaa"))
	_, err = repo.Get(ctx, "c-aaaaa")
	assert.ErrorIs(t, err, models.ErrClusterNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "c-aaaaa"), models.ErrClusterNotFound)
}

func TestMemoryClusterRepository_Duplicates(t *testing.T) {
	repo := NewMemoryClusterRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, newCreate("c-aaaaa", "prod", nil))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newCreate("c-bbbbb", "prod", nil))
	assert.ErrorIs(t, err, models.ErrClusterExists)

	_, err = repo.Create(ctx, newCreate("c-aaaaa", "other", nil))
	assert.ErrorIs(t, err, models.ErrClusterExists)
}

func TestMemoryClusterRepository_ValidatesInput(t *testing.T) {
	repo := NewMemoryClusterRepository()

	_, err := repo.Create(context.Background(), newCreate("c-aaaaa", "Bad_Name", nil))
	assert.ErrorIs(t, err, models.ErrInvalidClusterName)

	bogus := models.ClusterState("melted")
	_, err = repo.Update(context.Background(), "c-aaaaa", &models.ClusterUpdate{State: &bogus})
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestMemoryClusterRepository_ListFilters(t *testing.T) {
	repo := NewMemoryClusterRepository()
	ctx := context.Background()

	_, _ = repo.Create(ctx, newCreate("c-00001", "zeta", map[string]string{"env": "prod"}))
	_, _ = repo.Create(ctx, newCreate("c-00002", "alpha", map[string]string{"env": "dev"}))
	_, _ = repo.Create(ctx, newCreate("c-00003", "mid", map[string]string{"env": "prod", "tier": "edge"}))

	all, err := repo.List(ctx, models.ClusterFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{all[0].Name, all[1].Name, all[2].Name})

	prod, err := repo.List(ctx, models.ClusterFilter{Labels: map[string]string{"env": "prod"}})
	require.NoError(t, err)
	assert.Len(t, prod, 2)

	byName, err := repo.List(ctx, models.ClusterFilter{Name: "alpha"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "c-00002", byName[0].ID)

	none, err := repo.List(ctx, models.ClusterFilter{State: models.StateError})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestMemoryClusterRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryClusterRepository()
	ctx := context.Background()

	c, err := repo.Create(ctx, newCreate("c-aaaaa", "prod", map[string]string{"env": "prod"}))
	require.NoError(t, err)
	c.Labels["env"] = "tampered"

	got, err := repo.Get(ctx, "c-aaaaa")
	require.NoError(t, err)
	assert.Equal(t, "prod", got.Labels["env"])
}

func TestMemoryTokenRepository_Lifecycle(t *testing.T) {
	repo := NewMemoryTokenRepository()
	ctx := context.Background()

	tok, err := repo.Create(ctx, &models.TokenCreate{Name: "token-a", Key: "secret", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, tok.Enabled)
	assert.NoError(t, tok.Verify("secret"))

	_, err = repo.Create(ctx, &models.TokenCreate{Name: "token-a", Key: "other", UserID: "u1"})
	assert.Error(t, err)

	got, err := repo.Get(ctx, "token-a")
	require.NoError(t, err)
	assert.Equal(t, models.HashTokenKey("secret"), got.KeyHash)

	require.NoError(t, repo.Delete(ctx, "token-a"))
	_, err = repo.Get(ctx, "token-a")
	assert.ErrorIs(t, err, models.ErrTokenNotFound)
}

func TestMemoryTokenRepository_ListByUser(t *testing.T) {
	repo := NewMemoryTokenRepository()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	_, _ = repo.Create(ctx, &models.TokenCreate{Name: "token-old", Key: "k", UserID: "u1"})
	_, _ = repo.Create(ctx, &models.TokenCreate{Name: "token-new", Key: "k", UserID: "u1"})
	_, _ = repo.Create(ctx, &models.TokenCreate{Name: "token-other", Key: "k", UserID: "u2"})

	tokens, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "token-new", tokens[0].Name)
	assert.Equal(t, "token-old", tokens[1].Name)
}

func TestMemoryTokenRepository_BatchRecordUsage(t *testing.T) {
	repo := NewMemoryTokenRepository()
	ctx := context.Background()

	_, _ = repo.Create(ctx, &models.TokenCreate{Name: "token-a", Key: "k", UserID: "u1"})

	require.NoError(t, repo.BatchRecordUsage(ctx, map[string]int64{"token-a": 3, "token-gone": 5}))
	require.NoError(t, repo.BatchRecordUsage(ctx, map[string]int64{"token-a": 2}))

	tok, err := repo.Get(ctx, "token-a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), tok.UsageCount)
	assert.NotNil(t, tok.LastUsedAt)
}
