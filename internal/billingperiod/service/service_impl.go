package service

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/internal/billingperiod/domain"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxPeriodWalk bounds the forward walk from the anchor date. 120 months of
// missing invoices means the data is broken, not that we should keep looping.
const maxPeriodWalk = 120

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	loc   *time.Location
}

func New(p Params) domain.Calculator {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billingperiod.calculator"),
		clock: p.Clock,
		loc:   p.Cfg.Location(),
	}
}

// CurrentPeriod resolves the billing window covering now. The anchor is the
// day after the newest invoiced period_end when one exists, otherwise the
// customer's signup date; from there the window advances whole calendar
// months until it covers now.
func (s *Service) CurrentPeriod(ctx context.Context, customerID snowflake.ID) (domain.Period, error) {
	now := s.clock.Now().In(s.loc)

	createdAt, err := s.customerCreatedAt(ctx, customerID)
	if err != nil {
		return domain.Period{}, err
	}
	if createdAt == nil {
		return domain.Period{}, domain.ErrCustomerNotFound
	}

	anchor := createdAt.In(s.loc)
	cycleDay := anchor.Day()

	lastEnd, err := s.newestInvoicedPeriodEnd(ctx, customerID)
	if err != nil {
		return domain.Period{}, err
	}
	if lastEnd != nil {
		if lastEnd.After(now) {
			// Invoiced ahead of the clock. Fall back to the signup anchor
			// rather than projecting a period that has not started.
			s.log.Warn("newest invoice period_end is in the future",
				zap.String("customer_id", customerID.String()),
				zap.Time("period_end", *lastEnd),
				zap.Time("now", now),
			)
		} else {
			// The cycle day stays the day of month the last invoice closed
			// on, even though the next period starts the day after.
			cycleDay = lastEnd.In(s.loc).Day()
			anchor = lastEnd.In(s.loc).AddDate(0, 0, 1)
		}
	}

	start := anchor
	end := addMonths(anchor, 1)
	steps := 0
	for !end.After(now) {
		steps++
		if steps > maxPeriodWalk {
			s.log.Error("billing period walk exceeded bound",
				zap.String("customer_id", customerID.String()),
				zap.Time("anchor", anchor),
				zap.Time("now", now),
			)
			return domain.Period{}, domain.ErrPeriodOverflow
		}
		start = addMonths(anchor, steps)
		end = addMonths(anchor, steps+1)
	}

	return domain.Period{
		Start:         start,
		End:           end,
		CycleDay:      cycleDay,
		DaysRemaining: daysRemaining(now, end),
	}, nil
}

func (s *Service) customerCreatedAt(ctx context.Context, customerID snowflake.ID) (*time.Time, error) {
	var row struct {
		ID        snowflake.ID
		CreatedAt time.Time
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, created_at FROM customers WHERE id = ?`,
		customerID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row.CreatedAt, nil
}

func (s *Service) newestInvoicedPeriodEnd(ctx context.Context, customerID snowflake.ID) (*time.Time, error) {
	var row struct {
		ID        snowflake.ID
		PeriodEnd time.Time
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, period_end
		 FROM invoices
		 WHERE customer_id = ?
		 ORDER BY period_end DESC
		 LIMIT 1`,
		customerID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row.PeriodEnd, nil
}

// addMonths advances the anchor by whole calendar months, clamping the day
// so a Jan 31 anchor lands on Feb 28/29 instead of spilling into March.
// Indexing from the anchor (rather than chaining month by month) keeps a day
// 31 cycle on the 31st in the months that have one.
func addMonths(anchor time.Time, months int) time.Time {
	year, month, day := anchor.Date()
	hour, min, sec := anchor.Clock()

	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, anchor.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, anchor.Nanosecond(), anchor.Location())
}

func daysRemaining(now, end time.Time) int {
	remaining := int(math.Ceil(end.Sub(now).Hours() / 24))
	if remaining < 0 {
		return 0
	}
	return remaining
}
