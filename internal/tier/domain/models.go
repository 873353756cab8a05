package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Tier is a subscription plan. A DailyQuota of 0 means unlimited.
type Tier struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Code         string            `gorm:"type:text;not null;uniqueIndex" json:"code"`
	PriceMonthly decimal.Decimal   `gorm:"type:decimal(10,2);not null;default:0" json:"price_monthly"`
	DailyQuota   int64             `gorm:"not null;default:0" json:"daily_quota"`
	Features     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"features,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Tier) TableName() string { return "tiers" }

// Unlimited reports whether the tier has no daily quota.
func (t Tier) Unlimited() bool { return t.DailyQuota <= 0 }
