package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the durable side of usage capture. BulkInsert must skip
// records whose ID already exists so a drain batch can be retried safely.
type Repository interface {
	BulkInsert(ctx context.Context, db *gorm.DB, records []UsageRecord) (int64, error)
	CountInRange(ctx context.Context, db *gorm.DB, customerID snowflake.ID, start, end time.Time) (int64, error)
	ListRecent(ctx context.Context, db *gorm.DB, customerID snowflake.ID, limit int) ([]UsageRecord, error)
	StatsByCustomer(ctx context.Context, db *gorm.DB) ([]CustomerUsageStats, error)
}
