package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type CreateTierRequest struct {
	Name         string          `json:"name"`
	PriceMonthly decimal.Decimal `json:"price_monthly"`
	DailyQuota   int64           `json:"daily_quota"`
	Features     map[string]any  `json:"features"`
}

type UpdateTierRequest struct {
	ID           string           `json:"-"`
	PriceMonthly *decimal.Decimal `json:"price_monthly"`
	DailyQuota   *int64           `json:"daily_quota"`
	Features     map[string]any   `json:"features"`
}

type Service interface {
	List(ctx context.Context) ([]Tier, error)
	GetByID(ctx context.Context, id string) (Tier, error)
	GetByName(ctx context.Context, name string) (Tier, error)
	Create(ctx context.Context, req CreateTierRequest) (Tier, error)
	Update(ctx context.Context, req UpdateTierRequest) (Tier, error)
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidPrice = errors.New("invalid_price")
	ErrInvalidQuota = errors.New("invalid_quota")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNameTaken    = errors.New("name_taken")
	ErrNotFound     = errors.New("not_found")
)
