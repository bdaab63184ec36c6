package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clusterdeck/clusterdeck/internal/idgen"
	"github.com/clusterdeck/clusterdeck/internal/models"
	"github.com/clusterdeck/clusterdeck/internal/repository"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

// ErrInvalidTTL is returned for a negative or unrepresentable token lifetime.
var ErrInvalidTTL = errors.New("token ttl out of range")

// CreateTokenRequest represents the input for creating a token.
type CreateTokenRequest struct {
	UserID      string
	Description string
	// TTL overrides the service default. Zero with no default means the
	// token never expires.
	TTL *time.Duration
}

// CreatedToken is returned once on creation. Secret is the full
// "name:key" value and cannot be recovered later.
type CreatedToken struct {
	Token  *models.Token
	Secret string
}

// TokenService defines API token operations.
type TokenService interface {
	Create(ctx context.Context, req CreateTokenRequest) (*CreatedToken, error)
	List(ctx context.Context, userID string) ([]*models.Token, error)
	Delete(ctx context.Context, userID, name string) error
	Authenticate(ctx context.Context, name, key string) (*models.Token, error)
}

// TokenServiceImpl implements TokenService.
type TokenServiceImpl struct {
	repo       repository.TokenRepository
	names      idgen.Generator
	keys       idgen.Generator
	defaultTTL time.Duration
	log        *logger.Logger
}

// NewTokenService creates a TokenService.
func NewTokenService(repo repository.TokenRepository, defaultTTL time.Duration, log *logger.Logger) *TokenServiceImpl {
	if log == nil {
		log = logger.Nop()
	}
	return &TokenServiceImpl{
		repo:       repo,
		names:      idgen.NewCollisionAwareGenerator(idgen.NewTokenNameGenerator(), repo, idRetries),
		keys:       idgen.NewKeyGenerator(),
		defaultTTL: defaultTTL,
		log:        log,
	}
}

// Create issues a new token for req.UserID.
func (s *TokenServiceImpl) Create(ctx context.Context, req CreateTokenRequest) (*CreatedToken, error) {
	ttl := s.defaultTTL
	if req.TTL != nil {
		ttl = *req.TTL
	}
	if ttl < 0 {
		return nil, ErrInvalidTTL
	}

	name, err := generate(ctx, s.names)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token name: %w", err)
	}
	key, err := s.keys.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token key: %w", err)
	}

	create := &models.TokenCreate{
		Name:        name,
		Key:         key,
		UserID:      req.UserID,
		Description: req.Description,
	}
	if ttl > 0 {
		exp := time.Now().UTC().Add(ttl)
		create.ExpiresAt = &exp
	}

	tok, err := s.repo.Create(ctx, create)
	if err != nil {
		return nil, err
	}

	s.log.Info("token created", "token", tok.Name, "user", tok.UserID)
	return &CreatedToken{Token: tok, Secret: name + ":" + key}, nil
}

// List returns the tokens owned by userID.
func (s *TokenServiceImpl) List(ctx context.Context, userID string) ([]*models.Token, error) {
	return s.repo.List(ctx, userID)
}

// Delete removes a token owned by userID. Tokens of other users are
// reported as not found.
func (s *TokenServiceImpl) Delete(ctx context.Context, userID, name string) error {
	tok, err := s.repo.Get(ctx, name)
	if err != nil {
		return err
	}
	if tok.UserID != userID {
		return models.ErrTokenNotFound
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.log.Info("token deleted", "token", name, "user", userID)
	return nil
}

// Authenticate looks up name and verifies key against it.
func (s *TokenServiceImpl) Authenticate(ctx context.Context, name, key string) (*models.Token, error) {
	tok, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := tok.Verify(key); err != nil {
		return nil, err
	}
	return tok, nil
}

// EnsureBootstrap makes raw ("name:key") a valid token for userID. A token
// of the same name with a different key or owner is replaced.
func (s *TokenServiceImpl) EnsureBootstrap(ctx context.Context, raw, userID string) error {
	name, key, err := models.SplitToken(raw)
	if err != nil {
		return err
	}

	existing, err := s.repo.Get(ctx, name)
	switch {
	case err == nil:
		if existing.UserID == userID && existing.Verify(key) == nil {
			return nil
		}
		if err := s.repo.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to replace bootstrap token: %w", err)
		}
	case !errors.Is(err, models.ErrTokenNotFound):
		return err
	}

	_, err = s.repo.Create(ctx, &models.TokenCreate{
		Name:        name,
		Key:         key,
		UserID:      userID,
		Description: "bootstrap",
	})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap token: %w", err)
	}
	s.log.Info("bootstrap token installed", "token", name, "user", userID)
	return nil
}
