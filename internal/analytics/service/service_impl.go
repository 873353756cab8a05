package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/internal/analytics/domain"
	"github.com/metergate/metergate/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	hourTrendSpan = 24 * time.Hour
	dayTrendSpan  = 30 * 24 * time.Hour

	defaultTopLimit = 10
	maxTopLimit     = 100
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("analytics.service"),
		clock: p.Clock,
	}
}

func (s *Service) Count(ctx context.Context, customerID snowflake.ID, from, to time.Time) (int64, error) {
	if to.IsZero() {
		to = s.clock.Now()
	}
	if from.IsZero() {
		from = to.Add(-30 * 24 * time.Hour)
	}
	if !to.After(from) {
		return 0, domain.ErrInvalidRange
	}

	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM usage_records
		 WHERE customer_id = ? AND timestamp >= ? AND timestamp < ?`,
		customerID,
		from,
		to,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Trends returns a gap-filled series: 24 hourly buckets or 30 daily buckets
// ending at now. Grouping happens in SQL with a per-dialect bucket
// expression; gap filling happens here.
func (s *Service) Trends(ctx context.Context, customerID snowflake.ID, bucket domain.TrendBucket) ([]domain.TrendPoint, error) {
	expr, layout, step, span, err := s.bucketSpec(bucket)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	from := now.Add(-span)

	var rows []struct {
		Label string
		Count int64
	}
	err = s.db.WithContext(ctx).Raw(
		fmt.Sprintf(
			`SELECT %s AS label, COUNT(1) AS count
			 FROM usage_records
			 WHERE customer_id = ? AND timestamp >= ? AND timestamp < ?
			 GROUP BY label`,
			expr,
		),
		customerID,
		from,
		now,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Label] = row.Count
	}

	// Walk bucket boundaries from the first full bucket in the window.
	cursor := from.UTC().Truncate(step)
	if cursor.Before(from.UTC()) {
		cursor = cursor.Add(step)
	}
	var points []domain.TrendPoint
	for !cursor.After(now.UTC()) {
		label := cursor.Format(layout)
		points = append(points, domain.TrendPoint{Label: label, Count: counts[label]})
		cursor = cursor.Add(step)
	}
	return points, nil
}

// bucketSpec maps a trend bucket to the SQL grouping expression for the
// connected dialect plus the matching Go-side label layout.
func (s *Service) bucketSpec(bucket domain.TrendBucket) (expr, layout string, step, span time.Duration, err error) {
	dialect := s.db.Dialector.Name()
	switch bucket {
	case domain.BucketHour:
		switch dialect {
		case "postgres":
			expr = `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:00')`
		case "mysql":
			expr = `DATE_FORMAT(timestamp, '%Y-%m-%d %H:00')`
		default:
			expr = `strftime('%Y-%m-%d %H:00', timestamp)`
		}
		return expr, "2006-01-02 15:00", time.Hour, hourTrendSpan, nil
	case domain.BucketDay:
		switch dialect {
		case "postgres":
			expr = `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD')`
		case "mysql":
			expr = `DATE_FORMAT(timestamp, '%Y-%m-%d')`
		default:
			expr = `strftime('%Y-%m-%d', timestamp)`
		}
		return expr, "2006-01-02", 24 * time.Hour, dayTrendSpan, nil
	default:
		return "", "", 0, 0, domain.ErrInvalidBucket
	}
}

func (s *Service) TopEndpoints(ctx context.Context, customerID snowflake.ID, window domain.Window, limit int) ([]domain.EndpointStat, error) {
	from, err := s.windowStart(window)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	var stats []domain.EndpointStat
	err = s.db.WithContext(ctx).Raw(
		`SELECT endpoint, method, COUNT(1) AS count
		 FROM usage_records
		 WHERE customer_id = ? AND timestamp >= ?
		 GROUP BY endpoint, method
		 ORDER BY count DESC, endpoint ASC
		 LIMIT ?`,
		customerID,
		from,
		limit,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Service) ErrorRate(ctx context.Context, customerID snowflake.ID, window domain.Window) (domain.ErrorRateReport, error) {
	from, err := s.windowStart(window)
	if err != nil {
		return domain.ErrorRateReport{}, err
	}

	var report domain.ErrorRateReport
	err = s.db.WithContext(ctx).Raw(
		`SELECT
			COUNT(1) AS total_requests,
			COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0) AS error_requests
		 FROM usage_records
		 WHERE customer_id = ? AND timestamp >= ?`,
		customerID,
		from,
	).Scan(&report).Error
	if err != nil {
		return domain.ErrorRateReport{}, err
	}
	if report.TotalRequests > 0 {
		report.ErrorRate = float64(report.ErrorRequests) / float64(report.TotalRequests)
	}
	return report, nil
}

// Growth compares the trailing seven days to the seven before them. A quiet
// previous week with traffic now reads as 100% growth.
func (s *Service) Growth(ctx context.Context, customerID snowflake.ID) (domain.GrowthReport, error) {
	now := s.clock.Now()
	weekAgo := now.Add(-7 * 24 * time.Hour)
	twoWeeksAgo := now.Add(-14 * 24 * time.Hour)

	thisWeek, err := s.Count(ctx, customerID, weekAgo, now)
	if err != nil {
		return domain.GrowthReport{}, err
	}
	lastWeek, err := s.Count(ctx, customerID, twoWeeksAgo, weekAgo)
	if err != nil {
		return domain.GrowthReport{}, err
	}

	report := domain.GrowthReport{ThisWeek: thisWeek, LastWeek: lastWeek}
	switch {
	case lastWeek > 0:
		report.GrowthPercent = float64(thisWeek-lastWeek) / float64(lastWeek) * 100
	case thisWeek > 0:
		report.GrowthPercent = 100
	}
	return report, nil
}

func (s *Service) windowStart(window domain.Window) (time.Time, error) {
	now := s.clock.Now()
	switch window {
	case domain.WindowDay:
		return now.Add(-24 * time.Hour), nil
	case domain.WindowWeek:
		return now.Add(-7 * 24 * time.Hour), nil
	case domain.WindowMonth:
		return now.Add(-30 * 24 * time.Hour), nil
	case domain.WindowAll, "":
		return time.Time{}, nil
	default:
		return time.Time{}, domain.ErrInvalidWindow
	}
}
