// Package domain defines the customer billing period.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Period is a customer's billing window, anchored to the day of month the
// customer signed up (or the day after their last invoiced period). End is
// exclusive: usage at exactly End belongs to the next period.
type Period struct {
	Start         time.Time `json:"period_start"`
	End           time.Time `json:"period_end"`
	CycleDay      int       `json:"cycle_day"`
	DaysRemaining int       `json:"days_remaining"`
}

// Days is the period length in whole days, used for proration.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours() / 24)
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

type Calculator interface {
	CurrentPeriod(ctx context.Context, customerID snowflake.ID) (Period, error)
}

var (
	ErrCustomerNotFound = errors.New("customer_not_found")
	ErrPeriodOverflow   = errors.New("period_overflow")
)
