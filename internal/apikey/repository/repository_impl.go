package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (id, customer_id, key_hash, prefix, name, scopes, is_active, last_used_at, expires_at, rotated_from_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.CustomerID,
		key.KeyHash,
		key.Prefix,
		key.Name,
		key.Scopes,
		key.IsActive,
		key.LastUsedAt,
		key.ExpiresAt,
		key.RotatedFromID,
		key.CreatedAt,
		key.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys
		 SET name = ?, scopes = ?, is_active = ?, last_used_at = ?, expires_at = ?, rotated_from_id = ?, updated_at = ?
		 WHERE id = ?`,
		key.Name,
		key.Scopes,
		key.IsActive,
		key.LastUsedAt,
		key.ExpiresAt,
		key.RotatedFromID,
		key.UpdatedAt,
		key.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, key_hash, prefix, name, scopes, is_active, last_used_at, expires_at, rotated_from_id, created_at, updated_at
		 FROM api_keys WHERE id = ?`,
		id,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, key_hash, prefix, name, scopes, is_active, last_used_at, expires_at, rotated_from_id, created_at, updated_at
		 FROM api_keys WHERE customer_id = ? ORDER BY created_at DESC`,
		customerID,
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET last_used_at = ? WHERE id IN ?`,
		at,
		ids,
	).Error
}

// keyContextRow is the flat shape of the resolve join. Scopes needs the pq
// scanner, so the row cannot be the KeyContext itself.
type keyContextRow struct {
	KeyID           snowflake.ID
	KeyActive       bool
	ExpiresAt       *time.Time
	Scopes          pq.StringArray `gorm:"type:text[]"`
	CustomerID      snowflake.ID
	CustomerName    string
	CustomerActive  bool
	TierName        string
	DailyQuota      int64
	PriceMonthly    decimal.Decimal
	DeveloperID     snowflake.ID
	UpstreamBaseURL string
}

func (r *repo) ResolveByHash(ctx context.Context, db *gorm.DB, keyHash string) (*apikeydomain.KeyContext, error) {
	var row keyContextRow
	err := db.WithContext(ctx).Raw(
		`SELECT k.id AS key_id,
		        k.is_active AS key_active,
		        k.expires_at,
		        k.scopes,
		        c.id AS customer_id,
		        c.name AS customer_name,
		        c.is_active AS customer_active,
		        t.name AS tier_name,
		        t.daily_quota,
		        t.price_monthly,
		        COALESCE(d.id, 0) AS developer_id,
		        COALESCE(d.upstream_base_url, '') AS upstream_base_url
		 FROM api_keys k
		 JOIN customers c ON c.id = k.customer_id
		 JOIN tiers t ON t.id = c.tier_id
		 LEFT JOIN developers d ON d.id = c.developer_id
		 WHERE k.key_hash = ?`,
		keyHash,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.KeyID == 0 {
		return nil, nil
	}

	return &apikeydomain.KeyContext{
		KeyID:           row.KeyID,
		KeyActive:       row.KeyActive,
		ExpiresAt:       row.ExpiresAt,
		Scopes:          []string(row.Scopes),
		CustomerID:      row.CustomerID,
		CustomerName:    row.CustomerName,
		CustomerActive:  row.CustomerActive,
		TierName:        row.TierName,
		DailyQuota:      row.DailyQuota,
		PriceMonthly:    row.PriceMonthly,
		DeveloperID:     row.DeveloperID,
		UpstreamBaseURL: row.UpstreamBaseURL,
	}, nil
}
