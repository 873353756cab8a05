package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingperioddomain "github.com/metergate/metergate/internal/billingperiod/domain"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/cloudmetrics"
	"github.com/metergate/metergate/internal/invoice/domain"
	obsmetrics "github.com/metergate/metergate/internal/observability/metrics"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	pkgdb "github.com/metergate/metergate/pkg/db"
	"github.com/metergate/metergate/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// Invoices fall due a week after generation.
	dueDateOffset = 7 * 24 * time.Hour

	// Number allocation retries when two generations race onto the same
	// monthly sequence slot.
	numberAttempts = 3
)

// Transitions allowed by UpdateStatus. PAID and CANCELLED are terminal.
var validTransitions = map[domain.InvoiceStatus][]domain.InvoiceStatus{
	domain.InvoiceStatusPending: {
		domain.InvoiceStatusPaid,
		domain.InvoiceStatusOverdue,
		domain.InvoiceStatusCancelled,
	},
	domain.InvoiceStatusOverdue: {
		domain.InvoiceStatusPaid,
	},
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Periods   billingperioddomain.Calculator
	Repo      domain.Repository
	UsageRepo usagedomain.Repository
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	periods   billingperioddomain.Calculator
	repo      domain.Repository
	usageRepo usagedomain.Repository
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		periods:   p.Periods,
		repo:      p.Repo,
		usageRepo: p.UsageRepo,
		metrics:   p.Metrics,
	}
}

// Generate creates the invoice for one customer billing period. The customer
// row is locked for the duration of the transaction so per-customer
// generation is serialized; racing generations for other customers on the
// same monthly number sequence are absorbed by a bounded retry.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (domain.Invoice, error) {
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}

	start, end := req.PeriodStart, req.PeriodEnd
	if start.IsZero() != end.IsZero() {
		return domain.Invoice{}, domain.ErrInvalidPeriod
	}
	if start.IsZero() {
		period, err := s.periods.CurrentPeriod(ctx, customerID)
		if err != nil {
			if errors.Is(err, billingperioddomain.ErrCustomerNotFound) {
				return domain.Invoice{}, domain.ErrCustomerNotFound
			}
			return domain.Invoice{}, err
		}
		start, end = period.Start, period.End
	}
	if !end.After(start) {
		return domain.Invoice{}, domain.ErrInvalidPeriod
	}

	var lastErr error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		invoice, err := s.generateOnce(ctx, customerID, start, end)
		if err == nil {
			s.metrics.RecordInvoiceGenerated(ctx, string(domain.InvoiceStatusPending))
			cloudmetrics.RecordInvoiceGenerated(customerID.String())
			s.log.Info("invoice generated",
				zap.String("customer_id", customerID.String()),
				zap.String("number", invoice.Number),
				zap.Time("period_start", start),
				zap.Time("period_end", end),
			)
			return invoice, nil
		}
		if !pkgdb.IsDuplicateKeyErr(err) {
			return domain.Invoice{}, err
		}
		// Unique violation: either the period got invoiced under our feet
		// (surfaces as ErrDuplicateInvoice on the rescan) or another
		// customer claimed the number. Rescan and retry.
		lastErr = err
	}

	s.log.Error("invoice number allocation kept colliding",
		zap.String("customer_id", customerID.String()),
		zap.Error(lastErr),
	)
	return domain.Invoice{}, domain.ErrNumberContention
}

func (s *Service) generateOnce(ctx context.Context, customerID snowflake.ID, start, end time.Time) (domain.Invoice, error) {
	var out domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.lockCustomerWithTier(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrCustomerNotFound
		}

		existing, err := s.repo.FindByPeriod(ctx, tx, customerID, start, end)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateInvoice
		}

		totalUsage, err := s.usageRepo.CountInRange(ctx, tx, customerID, start, end)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		number, err := s.allocateNumber(ctx, tx, now)
		if err != nil {
			return err
		}

		invoice := domain.Invoice{
			ID:          s.genID.Generate(),
			Number:      number,
			CustomerID:  customerID,
			PeriodStart: start,
			PeriodEnd:   end,
			Status:      domain.InvoiceStatusPending,
			Amount:      customer.PriceMonthly,
			TotalUsage:  totalUsage,
			DueDate:     now.Add(dueDateOffset),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}

		items := []domain.LineItem{
			{
				ID:          s.genID.Generate(),
				InvoiceID:   invoice.ID,
				Description: fmt.Sprintf("%s Plan - %s", customer.TierName, start.Format("January 2006")),
				Quantity:    1,
				UnitPrice:   customer.PriceMonthly,
				Amount:      customer.PriceMonthly,
				CreatedAt:   now,
			},
			{
				// Informational line: usage is already covered by the flat
				// plan price.
				ID:          s.genID.Generate(),
				InvoiceID:   invoice.ID,
				Description: fmt.Sprintf("API Calls: %d requests", totalUsage),
				Quantity:    totalUsage,
				UnitPrice:   decimal.Zero,
				Amount:      decimal.Zero,
				CreatedAt:   now,
			},
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		invoice.Items = items
		out = invoice
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return out, nil
}

// allocateNumber claims the next slot on this month's INV-YYYY-MM- sequence.
func (s *Service) allocateNumber(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("INV-%04d-%02d-", now.Year(), int(now.Month()))
	seq, err := s.repo.NextSequence(ctx, tx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

type customerBillingRow struct {
	ID           snowflake.ID
	Name         string
	Email        string
	IsActive     bool
	TierName     string
	PriceMonthly decimal.Decimal
}

func (s *Service) lockCustomerWithTier(ctx context.Context, tx *gorm.DB, customerID snowflake.ID) (*customerBillingRow, error) {
	var row customerBillingRow
	err := tx.WithContext(ctx).Raw(
		`SELECT c.id, c.name, c.email, c.is_active, t.name AS tier_name, t.price_monthly
		 FROM customers c
		 JOIN tiers t ON t.id = c.tier_id
		 WHERE c.id = ?`+pkgdb.RowLock(tx),
		customerID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	items, err := s.repo.FindItems(ctx, s.db, invoice.ID)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice.Items = items
	return *invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	if req.Status != nil && !domain.ValidStatus(*req.Status) {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidStatus
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListInvoiceFilter{
		CustomerID: req.CustomerID,
		Status:     req.Status,
		From:       req.From,
		To:         req.To,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := domain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Summary(ctx context.Context, customerID snowflake.ID) (domain.Summary, error) {
	return s.repo.Summary(ctx, s.db, customerID)
}

func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (domain.Invoice, error) {
	if !domain.ValidStatus(req.Status) {
		return domain.Invoice{}, domain.ErrInvalidStatus
	}

	invoiceID, err := parseID(req.ID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	if !transitionAllowed(invoice.Status, req.Status) {
		return domain.Invoice{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	invoice.Status = req.Status
	invoice.UpdatedAt = now
	if req.Status == domain.InvoiceStatusPaid {
		invoice.PaidAt = &now
	} else {
		invoice.PaidAt = nil
	}
	if err := s.repo.Update(ctx, s.db, invoice); err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

// MarkPaid is idempotent: paying an already paid invoice returns it
// unchanged, external ref included.
func (s *Service) MarkPaid(ctx context.Context, req domain.MarkPaidRequest) (domain.Invoice, error) {
	invoiceID, err := parseID(req.ID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	if invoice.Status == domain.InvoiceStatusPaid {
		return *invoice, nil
	}
	if !transitionAllowed(invoice.Status, domain.InvoiceStatusPaid) {
		return domain.Invoice{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	invoice.Status = domain.InvoiceStatusPaid
	invoice.PaidAt = &now
	invoice.UpdatedAt = now
	if ref := strings.TrimSpace(req.ExternalPaymentRef); ref != "" {
		invoice.ExternalPaymentRef = &ref
	}
	if err := s.repo.Update(ctx, s.db, invoice); err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) MarkOverdueInvoices(ctx context.Context) (int64, error) {
	count, err := s.repo.MarkOverdue(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("invoices marked overdue", zap.Int64("count", count))
	}
	return count, nil
}

// GenerateMonthlyInvoices runs invoice generation over every active
// customer. A customer whose current period still has more than
// maxDaysRemaining days to run is skipped, as is one whose period is already
// invoiced. One customer failing does not stop the run.
func (s *Service) GenerateMonthlyInvoices(ctx context.Context, maxDaysRemaining int) (domain.GenerateRunResult, error) {
	customerIDs, err := s.listActiveCustomerIDs(ctx)
	if err != nil {
		return domain.GenerateRunResult{}, err
	}
	cloudmetrics.UpdateActiveCustomers(len(customerIDs))

	var result domain.GenerateRunResult
	for _, customerID := range customerIDs {
		period, err := s.periods.CurrentPeriod(ctx, customerID)
		if err != nil {
			result.Failed = append(result.Failed, domain.GenerateRunFailure{
				CustomerID: customerID,
				Error:      err.Error(),
			})
			continue
		}
		if period.DaysRemaining > maxDaysRemaining {
			result.Skipped++
			continue
		}

		_, err = s.Generate(ctx, domain.GenerateRequest{
			CustomerID:  customerID.String(),
			PeriodStart: period.Start,
			PeriodEnd:   period.End,
		})
		switch {
		case err == nil:
			result.Generated++
		case errors.Is(err, domain.ErrDuplicateInvoice):
			result.Skipped++
		default:
			s.log.Warn("monthly invoice generation failed for customer",
				zap.String("customer_id", customerID.String()),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, domain.GenerateRunFailure{
				CustomerID: customerID,
				Error:      err.Error(),
			})
		}
	}

	s.log.Info("monthly invoice run finished",
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *Service) listActiveCustomerIDs(ctx context.Context) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM customers WHERE is_active = ? ORDER BY id ASC`,
		true,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func transitionAllowed(from, to domain.InvoiceStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
