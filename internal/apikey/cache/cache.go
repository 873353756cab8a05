package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/metergate/metergate/internal/apikey/domain"
	"github.com/metergate/metergate/internal/config"
	obsmetrics "github.com/metergate/metergate/internal/observability/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const keyContextPrefix = "key-context:"

type Params struct {
	fx.In

	DB      *gorm.DB
	Redis   *redis.Client
	Log     *zap.Logger
	Runtime *config.RuntimeConfigHolder
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type resolver struct {
	db      *gorm.DB
	redis   *redis.Client
	log     *zap.Logger
	runtime *config.RuntimeConfigHolder
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

// NewResolver returns the Redis-backed key resolver used on every proxied
// request. A resolution never fails because the cache is down; Redis errors
// fall through to the database.
func NewResolver(p Params) domain.Resolver {
	return &resolver{
		db:      p.DB,
		redis:   p.Redis,
		log:     p.Log.Named("apikey.resolver"),
		runtime: p.Runtime,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (r *resolver) Resolve(ctx context.Context, secret string) (*domain.KeyContext, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, domain.ErrKeyInvalid
	}

	hash := domain.HashAPIKey(secret)
	if kc := r.fromCache(ctx, hash); kc != nil {
		r.metrics.RecordKeyCacheHit(ctx)
		return vetKeyContext(kc)
	}
	r.metrics.RecordKeyCacheMiss(ctx)

	kc, err := r.repo.ResolveByHash(ctx, r.db, hash)
	if err != nil {
		r.log.Error("key context lookup failed", zap.Error(err))
		return nil, err
	}
	if kc == nil {
		return nil, domain.ErrKeyInvalid
	}

	// Rejected keys are never cached, so a revoked key cannot outlive its
	// cache entry through repeated probing.
	if _, err := vetKeyContext(kc); err != nil {
		return nil, err
	}
	r.store(ctx, hash, kc)
	return kc, nil
}

func (r *resolver) Invalidate(ctx context.Context, secret string) error {
	return r.InvalidateHash(ctx, domain.HashAPIKey(strings.TrimSpace(secret)))
}

func (r *resolver) InvalidateHash(ctx context.Context, keyHash string) error {
	if r.redis == nil || keyHash == "" {
		return nil
	}
	if err := r.redis.Del(ctx, keyContextPrefix+keyHash).Err(); err != nil {
		r.log.Warn("key context invalidation failed", zap.Error(err))
		return err
	}
	return nil
}

func (r *resolver) fromCache(ctx context.Context, hash string) *domain.KeyContext {
	if r.redis == nil {
		return nil
	}

	payload, err := r.redis.Get(ctx, keyContextPrefix+hash).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("key context cache read failed", zap.Error(err))
		}
		return nil
	}

	var kc domain.KeyContext
	if err := json.Unmarshal(payload, &kc); err != nil {
		r.log.Warn("key context cache entry unreadable", zap.Error(err))
		return nil
	}
	return &kc
}

func (r *resolver) store(ctx context.Context, hash string, kc *domain.KeyContext) {
	if r.redis == nil {
		return
	}

	payload, err := json.Marshal(kc)
	if err != nil {
		return
	}
	ttl := r.runtime.Get().KeyCacheTTL()
	if err := r.redis.Set(ctx, keyContextPrefix+hash, payload, ttl).Err(); err != nil {
		r.log.Warn("key context cache write failed", zap.Error(err))
	}
}

// vetKeyContext applies the reject rules on every resolution, including cache
// hits, so a key that expires mid-TTL stops working immediately.
func vetKeyContext(kc *domain.KeyContext) (*domain.KeyContext, error) {
	if !kc.KeyActive {
		return nil, domain.ErrKeyInactive
	}
	if kc.ExpiresAt != nil && !kc.ExpiresAt.After(time.Now().UTC()) {
		return nil, domain.ErrKeyExpired
	}
	if !kc.CustomerActive {
		return nil, domain.ErrKeyInactive
	}
	return kc, nil
}
