package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// APIKey stores hashed credentials for a customer. The raw secret is never
// persisted; only its SHA-256 hex digest.
type APIKey struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	CustomerID    snowflake.ID   `gorm:"column:customer_id;not null;index"`
	KeyHash       string         `gorm:"column:key_hash;type:text;not null;uniqueIndex"`
	Prefix        string         `gorm:"type:text;not null"`
	Name          *string        `gorm:"type:text"`
	Scopes        pq.StringArray `gorm:"type:text[];not null"`
	IsActive      bool           `gorm:"column:is_active;not null;default:true"`
	LastUsedAt    *time.Time     `gorm:"column:last_used_at"`
	ExpiresAt     *time.Time     `gorm:"column:expires_at"`
	RotatedFromID *snowflake.ID  `gorm:"column:rotated_from_id"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }
