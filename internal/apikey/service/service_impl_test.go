package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/metergate/metergate/internal/apikey/cache"
	"github.com/metergate/metergate/internal/apikey/domain"
	apikeyrepo "github.com/metergate/metergate/internal/apikey/repository"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	customerrepo "github.com/metergate/metergate/internal/customer/repository"
	customerservice "github.com/metergate/metergate/internal/customer/service"
	developerdomain "github.com/metergate/metergate/internal/developer/domain"
	developerrepo "github.com/metergate/metergate/internal/developer/repository"
	developerservice "github.com/metergate/metergate/internal/developer/service"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	tierrepo "github.com/metergate/metergate/internal/tier/repository"
	tierservice "github.com/metergate/metergate/internal/tier/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type apiKeyFixture struct {
	db        *gorm.DB
	keys      domain.Service
	resolver  domain.Resolver
	customers customerdomain.Service
	tiers     tierdomain.Service
	developer developerdomain.Service
}

func setupAPIKeyService(t *testing.T) apiKeyFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(&tierdomain.Tier{}, &developerdomain.Developer{}, &customerdomain.Customer{}, &domain.APIKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	log := zap.NewNop()
	tiers := tierservice.New(tierservice.Params{DB: db, Log: log, GenID: node, Repo: tierrepo.Provide()})
	developers := developerservice.New(developerservice.Params{DB: db, Log: log, GenID: node, Repo: developerrepo.Provide()})
	customers := customerservice.New(customerservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       customerrepo.Provide(),
		Tiers:      tiers,
		Developers: developers,
	})

	repo := apikeyrepo.Provide()
	// No Redis in these tests; every resolution falls through to the
	// database, which is the path the reject rules live on.
	resolver := cache.NewResolver(cache.Params{DB: db, Log: log, Repo: repo})
	keys := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Repo:      repo,
		Customers: customers,
		Resolver:  resolver,
	})

	return apiKeyFixture{
		db:        db,
		keys:      keys,
		resolver:  resolver,
		customers: customers,
		tiers:     tiers,
		developer: developers,
	}
}

func (f apiKeyFixture) createCustomer(t *testing.T, name, email, tier string) customerdomain.Customer {
	t.Helper()
	customer, err := f.customers.Create(context.Background(), customerdomain.CreateCustomerRequest{
		Name:  name,
		Email: email,
		Tier:  tier,
	})
	if err != nil {
		t.Fatalf("create customer %s: %v", name, err)
	}
	return customer
}

func TestCreateKeyReturnsSecretOnce(t *testing.T) {
	env := setupAPIKeyService(t)
	ctx := context.Background()

	if _, err := env.tiers.Create(ctx, tierdomain.CreateTierRequest{Name: "Free", DailyQuota: 1000}); err != nil {
		t.Fatalf("create tier: %v", err)
	}
	customer := env.createCustomer(t, "Acme", "a@b.c", "")

	secret, err := env.keys.Create(ctx, domain.CreateKeyRequest{CustomerID: customer.ID.String(), Name: "ci"})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if !strings.HasPrefix(secret.APIKey, "mg_live_") {
		t.Fatalf("unexpected key format %q", secret.APIKey)
	}
	if len(secret.APIKey) != len("mg_live_")+64 {
		t.Fatalf("unexpected key length %d", len(secret.APIKey))
	}
	if secret.Prefix != secret.APIKey[:12] {
		t.Fatalf("prefix %q does not match key %q", secret.Prefix, secret.APIKey)
	}

	listed, err := env.keys.ListByCustomer(ctx, customer.ID.String())
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 key, got %d", len(listed))
	}
	if len(listed[0].Scopes) != 1 || listed[0].Scopes[0] != domain.ScopeProxy {
		t.Fatalf("expected default proxy scope, got %v", listed[0].Scopes)
	}
	if name := listed[0].Name; name == nil || *name != "ci" {
		t.Fatalf("expected key name ci, got %v", name)
	}

	if _, err := env.keys.Create(ctx, domain.CreateKeyRequest{CustomerID: "999999"}); !errors.Is(err, domain.ErrInvalidCustomer) {
		t.Fatalf("expected invalid_customer, got %v", err)
	}
}

func TestResolveBuildsFullKeyContext(t *testing.T) {
	env := setupAPIKeyService(t)
	ctx := context.Background()

	if _, err := env.tiers.Create(ctx, tierdomain.CreateTierRequest{
		Name:         "Pro",
		PriceMonthly: decimal.NewFromInt(29),
		DailyQuota:   10000,
	}); err != nil {
		t.Fatalf("create tier: %v", err)
	}
	dev, err := env.developer.Create(ctx, developerdomain.CreateDeveloperRequest{
		Name:            "Weather API",
		UpstreamBaseURL: "https://upstream.weather.dev",
	})
	if err != nil {
		t.Fatalf("create developer: %v", err)
	}
	customer, err := env.customers.Create(ctx, customerdomain.CreateCustomerRequest{
		Name:        "Acme",
		Email:       "a@b.c",
		Tier:        "Pro",
		DeveloperID: dev.ID.String(),
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	secret, err := env.keys.Create(ctx, domain.CreateKeyRequest{CustomerID: customer.ID.String()})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}

	kc, err := env.resolver.Resolve(ctx, secret.APIKey)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if kc.CustomerID != customer.ID || kc.CustomerName != "Acme" {
		t.Fatalf("unexpected customer in context: %+v", kc)
	}
	if kc.TierName != "Pro" || kc.DailyQuota != 10000 {
		t.Fatalf("unexpected tier in context: %+v", kc)
	}
	if !kc.PriceMonthly.Equal(decimal.NewFromInt(29)) {
		t.Fatalf("unexpected price %s", kc.PriceMonthly)
	}
	if kc.UpstreamBaseURL != "https://upstream.weather.dev" {
		t.Fatalf("unexpected upstream %q", kc.UpstreamBaseURL)
	}
	if kc.Unlimited() {
		t.Fatal("pro tier should carry a quota")
	}

	if _, err := env.resolver.Resolve(ctx, "mg_live_"+strings.Repeat("0", 64)); !errors.Is(err, domain.ErrKeyInvalid) {
		t.Fatalf("expected invalid_api_key, got %v", err)
	}
}

func TestRevokedAndExpiredKeysStopResolving(t *testing.T) {
	env := setupAPIKeyService(t)
	ctx := context.Background()

	if _, err := env.tiers.Create(ctx, tierdomain.CreateTierRequest{Name: "Free", DailyQuota: 1000}); err != nil {
		t.Fatalf("create tier: %v", err)
	}
	customer := env.createCustomer(t, "Acme", "a@b.c", "")

	revoked, err := env.keys.Create(ctx, domain.CreateKeyRequest{CustomerID: customer.ID.String()})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if err := env.keys.Revoke(ctx, revoked.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.resolver.Resolve(ctx, revoked.APIKey); !errors.Is(err, domain.ErrKeyInactive) {
		t.Fatalf("expected inactive_api_key, got %v", err)
	}
	if err := env.keys.Revoke(ctx, "1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}

	expired, err := env.keys.Create(ctx, domain.CreateKeyRequest{CustomerID: customer.ID.String()})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	past := time.Now().UTC().Add(-time.Hour)
	if err := env.db.Exec(`UPDATE api_keys SET expires_at = ? WHERE id = ?`, past, expired.ID).Error; err != nil {
		t.Fatalf("age key: %v", err)
	}
	if _, err := env.resolver.Resolve(ctx, expired.APIKey); !errors.Is(err, domain.ErrKeyExpired) {
		t.Fatalf("expected expired_api_key, got %v", err)
	}
}

func TestResolveRejectsSuspendedCustomer(t *testing.T) {
	env := setupAPIKeyService(t)
	ctx := context.Background()

	if _, err := env.tiers.Create(ctx, tierdomain.CreateTierRequest{Name: "Free", DailyQuota: 1000}); err != nil {
		t.Fatalf("create tier: %v", err)
	}
	customer := env.createCustomer(t, "Acme", "a@b.c", "")

	secret, err := env.keys.Create(ctx, domain.CreateKeyRequest{CustomerID: customer.ID.String()})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if _, err := env.customers.SetActive(ctx, customerdomain.SetActiveRequest{ID: customer.ID.String(), IsActive: false}); err != nil {
		t.Fatalf("suspend customer: %v", err)
	}

	if _, err := env.resolver.Resolve(ctx, secret.APIKey); !errors.Is(err, domain.ErrKeyInactive) {
		t.Fatalf("expected inactive_api_key, got %v", err)
	}
}

func TestRotateKeepsOldKeyInGrace(t *testing.T) {
	env := setupAPIKeyService(t)
	ctx := context.Background()

	if _, err := env.tiers.Create(ctx, tierdomain.CreateTierRequest{Name: "Free", DailyQuota: 1000}); err != nil {
		t.Fatalf("create tier: %v", err)
	}
	customer := env.createCustomer(t, "Acme", "a@b.c", "")

	original, err := env.keys.Create(ctx, domain.CreateKeyRequest{CustomerID: customer.ID.String(), Name: "prod"})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}

	rotated, err := env.keys.Rotate(ctx, original.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.ID == original.ID || rotated.APIKey == original.APIKey {
		t.Fatal("rotation must mint a fresh key")
	}

	// Both secrets resolve during the grace window.
	if _, err := env.resolver.Resolve(ctx, original.APIKey); err != nil {
		t.Fatalf("old key should resolve in grace: %v", err)
	}
	if _, err := env.resolver.Resolve(ctx, rotated.APIKey); err != nil {
		t.Fatalf("new key should resolve: %v", err)
	}

	listed, err := env.keys.ListByCustomer(ctx, customer.ID.String())
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(listed))
	}
	var lineage *domain.Response
	for i := range listed {
		if listed[i].RotatedFromID != nil {
			lineage = &listed[i]
		}
	}
	if lineage == nil || *lineage.RotatedFromID != original.ID {
		t.Fatalf("expected rotation lineage to point at %s", original.ID)
	}
	if name := lineage.Name; name == nil || *name != "prod" {
		t.Fatalf("rotation should carry the key name, got %v", name)
	}

	// A second rotation of the retired key is rejected once it is revoked.
	if err := env.keys.Revoke(ctx, original.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.keys.Rotate(ctx, original.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestTouchLastUsedStampsKeys(t *testing.T) {
	env := setupAPIKeyService(t)
	ctx := context.Background()

	if _, err := env.tiers.Create(ctx, tierdomain.CreateTierRequest{Name: "Free", DailyQuota: 1000}); err != nil {
		t.Fatalf("create tier: %v", err)
	}
	customer := env.createCustomer(t, "Acme", "a@b.c", "")

	first, err := env.keys.Create(ctx, domain.CreateKeyRequest{CustomerID: customer.ID.String()})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	firstID, err := snowflake.ParseString(first.ID)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := env.keys.TouchLastUsed(ctx, []snowflake.ID{firstID}, at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := env.keys.TouchLastUsed(ctx, nil, at); err != nil {
		t.Fatalf("touch with no ids: %v", err)
	}

	listed, err := env.keys.ListByCustomer(ctx, customer.ID.String())
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if listed[0].LastUsedAt == nil {
		t.Fatal("expected last_used_at set")
	}
}
