package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	Update(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*APIKey, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]APIKey, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error

	// ResolveByHash joins key, customer, tier and developer in one query.
	// It returns the context regardless of active/expiry state; the
	// resolver decides how to reject.
	ResolveByHash(ctx context.Context, db *gorm.DB, keyHash string) (*KeyContext, error)
}
