// Package domain defines pricing estimates and tier change previews.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TierPricing is the cost shape of one plan. EffectivePerCall spreads the
// monthly price over a 30-day quota; unlimited tiers have no meaningful
// per-call rate and report zero.
type TierPricing struct {
	TierName         string          `json:"tier_name"`
	PriceMonthly     decimal.Decimal `json:"price_monthly"`
	DailyQuota       int64           `json:"daily_quota"`
	Unlimited        bool            `json:"unlimited"`
	EffectivePerCall decimal.Decimal `json:"effective_per_call"`
}

// MonthlyEstimate prices the customer's current plan and, when a target
// tier is named, positions it against the target. Savings and
// AdditionalCost are one-sided: savings when the target is cheaper,
// additional cost when it is dearer, never both. The target fields are
// absent when no target was asked for or it equals the current plan.
type MonthlyEstimate struct {
	CurrentTier    string           `json:"current_tier"`
	CurrentPrice   decimal.Decimal  `json:"current_price"`
	TargetTier     string           `json:"target_tier,omitempty"`
	TargetPrice    *decimal.Decimal `json:"target_price,omitempty"`
	Savings        *decimal.Decimal `json:"savings,omitempty"`
	AdditionalCost *decimal.Decimal `json:"additional_cost,omitempty"`
}

// TierChangePreview is what switching plans mid-period would cost.
// ProratedAmount covers only the remaining days and never goes below zero;
// downgrades are settled at the next invoice instead of refunded.
type TierChangePreview struct {
	CurrentTier    string          `json:"current_tier"`
	NewTier        string          `json:"new_tier"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	NewPrice       decimal.Decimal `json:"new_price"`
	ProratedAmount decimal.Decimal `json:"prorated_amount"`
	IsUpgrade      bool            `json:"is_upgrade"`
	DaysRemaining  int             `json:"days_remaining"`
	FeaturesGained []string        `json:"features_gained"`
	FeaturesLost   []string        `json:"features_lost"`
}

type Service interface {
	CalculateUsageForPeriod(ctx context.Context, customerID snowflake.ID, start, end time.Time) (int64, error)
	TierPricing(ctx context.Context, tierName string) (TierPricing, error)
	EstimateMonthlyCost(ctx context.Context, customerID snowflake.ID, targetTier string) (MonthlyEstimate, error)
	PreviewTierChange(ctx context.Context, customerID snowflake.ID, newTierName string) (TierChangePreview, error)
}

var (
	ErrCustomerNotFound = errors.New("customer_not_found")
	ErrTierNotFound     = errors.New("tier_not_found")
	ErrInvalidPeriod    = errors.New("invalid_period")
)
