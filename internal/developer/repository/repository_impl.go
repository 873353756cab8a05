package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	developerdomain "github.com/metergate/metergate/internal/developer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() developerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, developer *developerdomain.Developer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO developers (id, name, slug, upstream_base_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		developer.ID,
		developer.Name,
		developer.Slug,
		developer.UpstreamBaseURL,
		developer.CreatedAt,
		developer.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, developer *developerdomain.Developer) error {
	return db.WithContext(ctx).Exec(
		`UPDATE developers
		 SET name = ?, slug = ?, upstream_base_url = ?, updated_at = ?
		 WHERE id = ?`,
		developer.Name,
		developer.Slug,
		developer.UpstreamBaseURL,
		developer.UpdatedAt,
		developer.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*developerdomain.Developer, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*developerdomain.Developer, error) {
	return r.findOne(ctx, db, "slug = ?", slug)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, cond string, value any) (*developerdomain.Developer, error) {
	var developer developerdomain.Developer
	err := db.WithContext(ctx).
		Model(&developerdomain.Developer{}).
		Where(cond, value).
		Limit(1).
		Find(&developer).Error
	if err != nil {
		return nil, err
	}
	if developer.ID == 0 {
		return nil, nil
	}
	return &developer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]developerdomain.Developer, error) {
	var developers []developerdomain.Developer
	err := db.WithContext(ctx).
		Model(&developerdomain.Developer{}).
		Order("created_at asc, id asc").
		Find(&developers).Error
	if err != nil {
		return nil, err
	}
	return developers, nil
}
