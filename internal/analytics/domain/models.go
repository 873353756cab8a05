// Package domain defines customer-facing usage analytics.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type TrendBucket string

const (
	BucketHour TrendBucket = "hour"
	BucketDay  TrendBucket = "day"
)

type Window string

const (
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowAll   Window = "all"
)

// TrendPoint is one bucket on a request-volume series. Label is the bucket
// key ("2026-02-05 14:00" for hours, "2026-02-05" for days); buckets with no
// traffic are present with a zero count.
type TrendPoint struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

type EndpointStat struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
	Count    int64  `json:"count"`
}

type ErrorRateReport struct {
	TotalRequests int64   `json:"total_requests"`
	ErrorRequests int64   `json:"error_requests"`
	ErrorRate     float64 `json:"error_rate"`
}

// GrowthReport compares the trailing seven days against the seven before
// them.
type GrowthReport struct {
	ThisWeek      int64   `json:"this_week"`
	LastWeek      int64   `json:"last_week"`
	GrowthPercent float64 `json:"growth_percent"`
}

type Service interface {
	Count(ctx context.Context, customerID snowflake.ID, from, to time.Time) (int64, error)
	Trends(ctx context.Context, customerID snowflake.ID, bucket TrendBucket) ([]TrendPoint, error)
	TopEndpoints(ctx context.Context, customerID snowflake.ID, window Window, limit int) ([]EndpointStat, error)
	ErrorRate(ctx context.Context, customerID snowflake.ID, window Window) (ErrorRateReport, error)
	Growth(ctx context.Context, customerID snowflake.ID) (GrowthReport, error)
}

var (
	ErrInvalidBucket = errors.New("invalid_bucket")
	ErrInvalidWindow = errors.New("invalid_window")
	ErrInvalidRange  = errors.New("invalid_range")
)
