package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer is a billed API consumer. Inactive customers keep their data but
// their keys stop resolving at the gateway.
type Customer struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Email       string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	TierID      snowflake.ID `gorm:"column:tier_id;not null;index" json:"tier_id"`
	DeveloperID snowflake.ID `gorm:"column:developer_id;index" json:"developer_id,omitempty"`
	IsActive    bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
