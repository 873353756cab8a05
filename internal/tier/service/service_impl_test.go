package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	"github.com/metergate/metergate/internal/tier/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTierService(t *testing.T) tierdomain.Service {
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
	if err := db.AutoMigrate(&tierdomain.Tier{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
}

func TestCreateAndGetTier(t *testing.T) {
	svc := setupTierService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tierdomain.CreateTierRequest{
		Name:         "Pro",
		PriceMonthly: decimal.NewFromFloat(29.99),
		DailyQuota:   10000,
		Features:     map[string]any{"analytics": true},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Code != "pro" {
		t.Fatalf("expected slug code pro, got %q", created.Code)
	}

	byName, err := svc.GetByName(ctx, "Pro")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName.ID != created.ID {
		t.Fatalf("expected tier %v, got %v", created.ID, byName.ID)
	}

	bySlug, err := svc.GetByName(ctx, "pro")
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if bySlug.ID != created.ID {
		t.Fatalf("expected slug lookup to find the same tier")
	}

	if !bySlug.PriceMonthly.Equal(decimal.NewFromFloat(29.99)) {
		t.Fatalf("expected price 29.99, got %s", bySlug.PriceMonthly)
	}
}

func TestCreateTierRejectsDuplicates(t *testing.T) {
	svc := setupTierService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, tierdomain.CreateTierRequest{Name: "Free"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(ctx, tierdomain.CreateTierRequest{Name: "Free"})
	if !errors.Is(err, tierdomain.ErrNameTaken) {
		t.Fatalf("expected name_taken, got %v", err)
	}
}

func TestCreateTierValidation(t *testing.T) {
	svc := setupTierService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, tierdomain.CreateTierRequest{Name: "  "}); !errors.Is(err, tierdomain.ErrInvalidName) {
		t.Fatalf("expected invalid_name, got %v", err)
	}
	req := tierdomain.CreateTierRequest{Name: "Bad", PriceMonthly: decimal.NewFromInt(-1)}
	if _, err := svc.Create(ctx, req); !errors.Is(err, tierdomain.ErrInvalidPrice) {
		t.Fatalf("expected invalid_price, got %v", err)
	}
	req = tierdomain.CreateTierRequest{Name: "Bad", DailyQuota: -5}
	if _, err := svc.Create(ctx, req); !errors.Is(err, tierdomain.ErrInvalidQuota) {
		t.Fatalf("expected invalid_quota, got %v", err)
	}
}

func TestListTiersOrderedByPrice(t *testing.T) {
	svc := setupTierService(t)
	ctx := context.Background()

	for name, price := range map[string]float64{
		"Enterprise": 299.99,
		"Free":       0,
		"Pro":        29.99,
	} {
		if _, err := svc.Create(ctx, tierdomain.CreateTierRequest{
			Name:         name,
			PriceMonthly: decimal.NewFromFloat(price),
		}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	tiers, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}
	if tiers[0].Name != "Free" || tiers[2].Name != "Enterprise" {
		t.Fatalf("expected price ascending order, got %s..%s", tiers[0].Name, tiers[2].Name)
	}
}

func TestUpdateTier(t *testing.T) {
	svc := setupTierService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tierdomain.CreateTierRequest{
		Name:       "Pro",
		DailyQuota: 10000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	quota := int64(25000)
	price := decimal.NewFromFloat(49.99)
	updated, err := svc.Update(ctx, tierdomain.UpdateTierRequest{
		ID:           created.ID.String(),
		DailyQuota:   &quota,
		PriceMonthly: &price,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DailyQuota != 25000 || !updated.PriceMonthly.Equal(price) {
		t.Fatalf("update not applied: %+v", updated)
	}

	if _, err := svc.Update(ctx, tierdomain.UpdateTierRequest{ID: "999999"}); !errors.Is(err, tierdomain.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}
