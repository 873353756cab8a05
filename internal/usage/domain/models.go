// Package domain contains persistence models for gateway usage capture.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord is one proxied request. Records are append-only: the gateway
// buffers them in Redis and the drain worker batch-inserts them here; nothing
// ever updates or deletes a row.
type UsageRecord struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID     snowflake.ID  `gorm:"column:customer_id;not null;index:idx_usage_customer_ts,priority:1" json:"customer_id"`
	APIKeyID       *snowflake.ID `gorm:"column:api_key_id" json:"api_key_id,omitempty"`
	Endpoint       string        `gorm:"type:text;not null" json:"endpoint"`
	Method         string        `gorm:"type:text;not null" json:"method"`
	StatusCode     int           `gorm:"column:status_code;not null" json:"status_code"`
	ResponseTimeMs int64         `gorm:"column:response_time_ms;not null" json:"response_time_ms"`
	Timestamp      time.Time     `gorm:"not null;index;index:idx_usage_customer_ts,priority:2" json:"timestamp"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// CustomerUsageStats is the per-customer aggregate served on the admin
// surface.
type CustomerUsageStats struct {
	CustomerID    snowflake.ID `json:"customer_id"`
	TotalRequests int64        `json:"total_requests"`
	ErrorRequests int64        `json:"error_requests"`
	LastSeen      *time.Time   `json:"last_seen,omitempty"`
}
