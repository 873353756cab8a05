package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

// BulkInsert writes a drain batch in one statement. Conflicting IDs are
// skipped so a batch that partially landed before a failure can be replayed.
func (r *repo) BulkInsert(ctx context.Context, db *gorm.DB, records []usagedomain.UsageRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) CountInRange(ctx context.Context, db *gorm.DB, customerID snowflake.ID, start, end time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM usage_records
		 WHERE customer_id = ? AND timestamp >= ? AND timestamp < ?`,
		customerID,
		start,
		end,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, customerID snowflake.ID, limit int) ([]usagedomain.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, api_key_id, endpoint, method, status_code, response_time_ms, timestamp, created_at
		 FROM usage_records
		 WHERE customer_id = ?
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		customerID,
		limit,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) StatsByCustomer(ctx context.Context, db *gorm.DB) ([]usagedomain.CustomerUsageStats, error) {
	var stats []usagedomain.CustomerUsageStats
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id,
		        COUNT(1) AS total_requests,
		        SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END) AS error_requests,
		        MAX(timestamp) AS last_seen
		 FROM usage_records
		 GROUP BY customer_id
		 ORDER BY total_requests DESC`,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}
