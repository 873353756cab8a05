package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/metergate/metergate/internal/billingperiod/domain"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/config"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	invoicedomain "github.com/metergate/metergate/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCalculator(t *testing.T, now time.Time) (*gorm.DB, *snowflake.Node, domain.Calculator) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(&customerdomain.Customer{}, &invoicedomain.Invoice{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	calc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(now),
		Cfg:   config.Config{BillingTimezone: "UTC"},
	})
	return db, node, calc
}

func insertCustomer(t *testing.T, db *gorm.DB, node *snowflake.Node, createdAt time.Time) snowflake.ID {
	t.Helper()
	id := node.Generate()
	customer := customerdomain.Customer{
		ID:        id,
		Email:     fmt.Sprintf("%s@example.com", id),
		Name:      "Test Customer",
		TierID:    node.Generate(),
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	return id
}

func insertInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, customerID snowflake.ID, periodStart, periodEnd time.Time) {
	t.Helper()
	invoice := invoicedomain.Invoice{
		ID:          node.Generate(),
		Number:      fmt.Sprintf("INV-%s", node.Generate()),
		CustomerID:  customerID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      invoicedomain.InvoiceStatusPending,
		DueDate:     periodEnd.AddDate(0, 0, 7),
		CreatedAt:   periodEnd,
		UpdatedAt:   periodEnd,
	}
	if err := db.Create(&invoice).Error; err != nil {
		t.Fatalf("insert invoice: %v", err)
	}
}

func TestCurrentPeriodFromSignupDate(t *testing.T) {
	now := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	db, node, calc := setupCalculator(t, now)
	customerID := insertCustomer(t, db, node, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))

	period, err := calc.CurrentPeriod(context.Background(), customerID)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}

	wantStart := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)
	if !period.Start.Equal(wantStart) || !period.End.Equal(wantEnd) {
		t.Fatalf("unexpected window: %v .. %v", period.Start, period.End)
	}
	if period.CycleDay != 15 {
		t.Fatalf("expected cycle day 15, got %d", period.CycleDay)
	}
	if period.DaysRemaining != 5 {
		t.Fatalf("expected 5 days remaining, got %d", period.DaysRemaining)
	}
}

func TestCurrentPeriodWalksForwardFromSignup(t *testing.T) {
	now := time.Date(2024, time.June, 20, 12, 0, 0, 0, time.UTC)
	db, node, calc := setupCalculator(t, now)
	customerID := insertCustomer(t, db, node, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))

	period, err := calc.CurrentPeriod(context.Background(), customerID)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}

	wantStart := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, time.July, 15, 0, 0, 0, 0, time.UTC)
	if !period.Start.Equal(wantStart) || !period.End.Equal(wantEnd) {
		t.Fatalf("unexpected window: %v .. %v", period.Start, period.End)
	}
}

func TestCurrentPeriodClampsMonthEnd(t *testing.T) {
	now := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	db, node, calc := setupCalculator(t, now)
	customerID := insertCustomer(t, db, node, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC))

	period, err := calc.CurrentPeriod(context.Background(), customerID)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}

	// 2024 is a leap year: Jan 31 anchor clamps to Feb 29.
	wantEnd := time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)
	if !period.End.Equal(wantEnd) {
		t.Fatalf("expected clamped end %v, got %v", wantEnd, period.End)
	}
	if period.CycleDay != 31 {
		t.Fatalf("expected cycle day 31, got %d", period.CycleDay)
	}

	// The day 31 cycle comes back in months that have one.
	laterDB, laterNode, laterCalc := setupCalculator(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))
	laterCustomer := insertCustomer(t, laterDB, laterNode, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC))
	later, err := laterCalc.CurrentPeriod(context.Background(), laterCustomer)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}
	if !later.Start.Equal(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", later.Start)
	}
	if !later.End.Equal(time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", later.End)
	}
	if later.CycleDay != 31 {
		t.Fatalf("cycle day tracks the signup day even in clamped months, got %d", later.CycleDay)
	}
}

func TestCurrentPeriodAnchorsOnNewestInvoice(t *testing.T) {
	now := time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC)
	db, node, calc := setupCalculator(t, now)
	customerID := insertCustomer(t, db, node, time.Date(2023, time.November, 3, 0, 0, 0, 0, time.UTC))

	insertInvoice(t, db, node, customerID,
		time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC),
	)

	period, err := calc.CurrentPeriod(context.Background(), customerID)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}

	wantStart := time.Date(2024, time.February, 16, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, time.March, 16, 0, 0, 0, 0, time.UTC)
	if !period.Start.Equal(wantStart) || !period.End.Equal(wantEnd) {
		t.Fatalf("unexpected window: %v .. %v", period.Start, period.End)
	}
	if period.DaysRemaining != 25 {
		t.Fatalf("expected 25 days remaining, got %d", period.DaysRemaining)
	}
	// The cycle day follows the invoiced close date, not the day after it.
	if period.CycleDay != 15 {
		t.Fatalf("expected cycle day 15 from the invoice close, got %d", period.CycleDay)
	}
}

func TestCurrentPeriodFutureInvoiceFallsBackToSignup(t *testing.T) {
	now := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	db, node, calc := setupCalculator(t, now)
	customerID := insertCustomer(t, db, node, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))

	insertInvoice(t, db, node, customerID,
		time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
	)

	period, err := calc.CurrentPeriod(context.Background(), customerID)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}
	if !period.Start.Equal(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected signup anchor, got start %v", period.Start)
	}
}

func TestCurrentPeriodUnknownCustomer(t *testing.T) {
	_, node, calc := setupCalculator(t, time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC))

	_, err := calc.CurrentPeriod(context.Background(), node.Generate())
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestAddMonthsClamping(t *testing.T) {
	anchor := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		months int
		want   time.Time
	}{
		{0, anchor},
		{1, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{2, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)},
		{3, time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC)},
		{13, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := addMonths(anchor, tc.months); !got.Equal(tc.want) {
			t.Fatalf("addMonths(%d) = %v, want %v", tc.months, got, tc.want)
		}
	}
}
