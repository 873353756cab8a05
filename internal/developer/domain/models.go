package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Developer owns an upstream API that the gateway fronts. Customers and
// their keys are attached to exactly one developer.
type Developer struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"type:text;not null" json:"name"`
	Slug            string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	UpstreamBaseURL string       `gorm:"column:upstream_base_url;type:text" json:"upstream_base_url"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Developer) TableName() string { return "developers" }
