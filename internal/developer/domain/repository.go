package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, developer *Developer) error
	Update(ctx context.Context, db *gorm.DB, developer *Developer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Developer, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Developer, error)
	List(ctx context.Context, db *gorm.DB) ([]Developer, error)
}
