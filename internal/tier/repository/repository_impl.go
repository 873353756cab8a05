package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tierdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tier *tierdomain.Tier) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tiers (id, name, code, price_monthly, daily_quota, features, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tier.ID,
		tier.Name,
		tier.Code,
		tier.PriceMonthly,
		tier.DailyQuota,
		tier.Features,
		tier.CreatedAt,
		tier.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tier *tierdomain.Tier) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tiers
		 SET name = ?, code = ?, price_monthly = ?, daily_quota = ?, features = ?, updated_at = ?
		 WHERE id = ?`,
		tier.Name,
		tier.Code,
		tier.PriceMonthly,
		tier.DailyQuota,
		tier.Features,
		tier.UpdatedAt,
		tier.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tierdomain.Tier, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*tierdomain.Tier, error) {
	return r.findOne(ctx, db, "name = ?", name)
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*tierdomain.Tier, error) {
	return r.findOne(ctx, db, "code = ?", code)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, cond string, value any) (*tierdomain.Tier, error) {
	var tier tierdomain.Tier
	err := db.WithContext(ctx).
		Model(&tierdomain.Tier{}).
		Where(cond, value).
		Limit(1).
		Find(&tier).Error
	if err != nil {
		return nil, err
	}
	if tier.ID == 0 {
		return nil, nil
	}
	return &tier, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]tierdomain.Tier, error) {
	var tiers []tierdomain.Tier
	err := db.WithContext(ctx).
		Model(&tierdomain.Tier{}).
		Order("price_monthly asc, id asc").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}
