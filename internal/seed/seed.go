// Package seed bootstraps the default plans, and in development mode a demo
// developer, customer, and API key, so a fresh install answers requests
// without any manual setup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/lib/pq"
	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	developerdomain "github.com/metergate/metergate/internal/developer/domain"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	demoDeveloperName = "Demo Developer"
	demoDeveloperSlug = "demo-developer"
	demoCustomerName  = "Demo Customer"
	demoCustomerEmail = "demo@metergate.dev"

	// DemoAPIKey is the well-known development secret. Only ever seeded in
	// development mode.
	DemoAPIKey = "mg_live_demo0000000000000000000000000000"
)

type defaultTier struct {
	name  string
	price string
	quota int64
}

// Quota 0 means unlimited.
var defaultTiers = []defaultTier{
	{name: "Free", price: "0.00", quota: 100},
	{name: "Pro", price: "49.00", quota: 10000},
	{name: "Enterprise", price: "499.00", quota: 0},
}

// EnsureDefaultTiers find-or-creates the Free, Pro, and Enterprise plans.
// Existing rows are left untouched so operators can reprice them.
func EnsureDefaultTiers(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range defaultTiers {
			if _, err := ensureTierTx(ctx, tx, node, def); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDemoData seeds a developer, a customer on the Free plan, and a
// well-known API key. Development convenience only; never run in production.
func EnsureDemoData(db *gorm.DB, upstreamURL string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		free, err := ensureTierTx(ctx, tx, node, defaultTiers[0])
		if err != nil {
			return err
		}
		developer, err := ensureDemoDeveloperTx(ctx, tx, node, upstreamURL)
		if err != nil {
			return err
		}
		customer, err := ensureDemoCustomerTx(ctx, tx, node, free, developer)
		if err != nil {
			return err
		}
		return ensureDemoKeyTx(ctx, tx, node, customer)
	})
}

func ensureTierTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, def defaultTier) (tierdomain.Tier, error) {
	var tier tierdomain.Tier
	err := tx.WithContext(ctx).Where("name = ?", def.name).First(&tier).Error
	if err == nil {
		return tier, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return tierdomain.Tier{}, err
	}

	now := time.Now().UTC()
	tier = tierdomain.Tier{
		ID:           node.Generate(),
		Name:         def.name,
		Code:         slug.Make(def.name),
		PriceMonthly: decimal.RequireFromString(def.price),
		DailyQuota:   def.quota,
		Features:     datatypes.JSONMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&tier).Error; err != nil {
		return tierdomain.Tier{}, err
	}
	return tier, nil
}

func ensureDemoDeveloperTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, upstreamURL string) (developerdomain.Developer, error) {
	var developer developerdomain.Developer
	err := tx.WithContext(ctx).Where("slug = ?", demoDeveloperSlug).First(&developer).Error
	if err == nil {
		return developer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return developerdomain.Developer{}, err
	}

	now := time.Now().UTC()
	developer = developerdomain.Developer{
		ID:              node.Generate(),
		Name:            demoDeveloperName,
		Slug:            demoDeveloperSlug,
		UpstreamBaseURL: upstreamURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.WithContext(ctx).Create(&developer).Error; err != nil {
		return developerdomain.Developer{}, err
	}
	return developer, nil
}

func ensureDemoCustomerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tier tierdomain.Tier, developer developerdomain.Developer) (customerdomain.Customer, error) {
	var customer customerdomain.Customer
	err := tx.WithContext(ctx).Where("email = ?", demoCustomerEmail).First(&customer).Error
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return customerdomain.Customer{}, err
	}

	now := time.Now().UTC()
	customer = customerdomain.Customer{
		ID:          node.Generate(),
		Email:       demoCustomerEmail,
		Name:        demoCustomerName,
		TierID:      tier.ID,
		DeveloperID: developer.ID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&customer).Error; err != nil {
		return customerdomain.Customer{}, err
	}
	return customer, nil
}

func ensureDemoKeyTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, customer customerdomain.Customer) error {
	hash := apikeydomain.HashAPIKey(DemoAPIKey)

	var key apikeydomain.APIKey
	err := tx.WithContext(ctx).Where("key_hash = ?", hash).First(&key).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	name := "demo"
	now := time.Now().UTC()
	key = apikeydomain.APIKey{
		ID:         node.Generate(),
		CustomerID: customer.ID,
		KeyHash:    hash,
		Prefix:     DemoAPIKey[:12],
		Name:       &name,
		Scopes:     pq.StringArray{apikeydomain.ScopeProxy},
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return tx.WithContext(ctx).Create(&key).Error
}
