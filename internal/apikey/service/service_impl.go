package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix              = "mg_live_"
	apiKeySecretBytes         = 32
	apiKeyPrefixLen           = 12
	apiKeyRotationGracePeriod = 24 * time.Hour
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      apikeydomain.Repository
	Customers customerdomain.Service
	Resolver  apikeydomain.Resolver
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      apikeydomain.Repository
	customers customerdomain.Service
	resolver  apikeydomain.Resolver
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("apikey.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		customers: p.Customers,
		resolver:  p.Resolver,
	}
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateKeyRequest) (*apikeydomain.SecretResponse, error) {
	customer, err := s.customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, customerdomain.ErrNotFound) || errors.Is(err, customerdomain.ErrInvalidID) {
			return nil, apikeydomain.ErrInvalidCustomer
		}
		return nil, err
	}

	now := time.Now().UTC()
	id := s.genID.Generate()
	plain, hash, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:         id,
		CustomerID: customer.ID,
		KeyHash:    hash,
		Prefix:     displayPrefix(plain),
		Name:       optionalName(req.Name),
		Scopes:     normalizeScopes(req.Scopes),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	return &apikeydomain.SecretResponse{
		ID:     key.ID.String(),
		Prefix: key.Prefix,
		APIKey: plain,
	}, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]apikeydomain.Response, error) {
	customer, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, customerdomain.ErrNotFound) || errors.Is(err, customerdomain.ErrInvalidID) {
			return nil, apikeydomain.ErrInvalidCustomer
		}
		return nil, err
	}

	items, err := s.repo.ListByCustomer(ctx, s.db, customer.ID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

// Rotate grace-expires the current key and issues a replacement in one
// transaction. The old secret keeps working until the grace period lapses so
// callers can roll deployments without a hard cutover.
func (s *Service) Rotate(ctx context.Context, id string) (*apikeydomain.SecretResponse, error) {
	keyID, err := parseKeyID(id)
	if err != nil {
		return nil, err
	}

	var (
		result  *apikeydomain.SecretResponse
		oldHash string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, keyID)
		if err != nil {
			return err
		}
		if current == nil || !current.IsActive || isExpired(current.ExpiresAt) {
			return apikeydomain.ErrNotFound
		}

		now := time.Now().UTC()
		current.ExpiresAt = ptrTime(now.Add(apiKeyRotationGracePeriod))
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}

		plain, hash, err := generateAPIKey()
		if err != nil {
			return err
		}

		rotatedFrom := current.ID
		next := &apikeydomain.APIKey{
			ID:            s.genID.Generate(),
			CustomerID:    current.CustomerID,
			KeyHash:       hash,
			Prefix:        displayPrefix(plain),
			Name:          current.Name,
			Scopes:        current.Scopes,
			IsActive:      true,
			RotatedFromID: &rotatedFrom,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}

		oldHash = current.KeyHash
		result = &apikeydomain.SecretResponse{
			ID:     next.ID.String(),
			Prefix: next.Prefix,
			APIKey: plain,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Drop the cached context so the next resolution picks up the grace
	// expiry. The rotation already committed; a cache failure only delays
	// that by the cache TTL.
	s.invalidate(ctx, oldHash)
	return result, nil
}

func (s *Service) Revoke(ctx context.Context, id string) error {
	keyID, err := parseKeyID(id)
	if err != nil {
		return err
	}

	key, err := s.repo.FindByID(ctx, s.db, keyID)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	now := time.Now().UTC()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	if err := s.repo.Update(ctx, s.db, key); err != nil {
		return err
	}

	s.invalidate(ctx, key.KeyHash)
	return nil
}

func (s *Service) TouchLastUsed(ctx context.Context, ids []snowflake.ID, at time.Time) error {
	return s.repo.TouchLastUsed(ctx, s.db, ids, at)
}

func (s *Service) invalidate(ctx context.Context, keyHash string) {
	if s.resolver == nil || keyHash == "" {
		return
	}
	if err := s.resolver.InvalidateHash(ctx, keyHash); err != nil {
		s.log.Warn("key cache invalidation failed", zap.Error(err))
	}
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	var rotatedFrom *string
	if key.RotatedFromID != nil {
		value := key.RotatedFromID.String()
		rotatedFrom = &value
	}
	return apikeydomain.Response{
		ID:            key.ID.String(),
		CustomerID:    key.CustomerID.String(),
		Prefix:        key.Prefix,
		Name:          key.Name,
		Scopes:        []string(key.Scopes),
		IsActive:      key.IsActive,
		CreatedAt:     key.CreatedAt,
		LastUsedAt:    key.LastUsedAt,
		ExpiresAt:     key.ExpiresAt,
		RotatedFromID: rotatedFrom,
	}
}

func generateAPIKey() (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	plain := apiKeyPrefix + hex.EncodeToString(secret)
	return plain, apikeydomain.HashAPIKey(plain), nil
}

// displayPrefix is the identifying fragment kept in plain text; enough to
// tell keys apart in a list without exposing the secret.
func displayPrefix(plain string) string {
	if len(plain) <= apiKeyPrefixLen {
		return plain
	}
	return plain[:apiKeyPrefixLen]
}

func parseKeyID(raw string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, apikeydomain.ErrInvalidID
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil || id == 0 {
		return 0, apikeydomain.ErrInvalidID
	}
	return id, nil
}

func optionalName(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeScopes(scopes []string) pq.StringArray {
	cleaned := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		trimmed := strings.ToLower(strings.TrimSpace(scope))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	if len(cleaned) == 0 {
		return pq.StringArray{apikeydomain.ScopeProxy}
	}
	return pq.StringArray(cleaned)
}

func isExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*expiresAt)
}

func ptrTime(value time.Time) *time.Time {
	return &value
}
