package domain

import (
	"context"
	"errors"
	"time"
)

// Service exposes the usage views consumed by the billing and admin
// surfaces. Durable counts come from the database; recent entries come from
// the Redis buffer and may include records not yet drained.
type Service interface {
	CountForPeriod(ctx context.Context, customerID string, start, end time.Time) (int64, error)
	ListRecent(ctx context.Context, customerID string, limit int) ([]UsageRecord, error)
	RecentBuffered(ctx context.Context, limit int) ([]UsageRecord, error)
	RecentBufferedForCustomer(ctx context.Context, customerID string, limit int) ([]UsageRecord, error)
	StatsByCustomer(ctx context.Context) ([]CustomerUsageStats, error)
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidPeriod   = errors.New("invalid_period")
)
