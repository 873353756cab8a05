package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type GenerateRequest struct {
	CustomerID string `json:"customer_id"`
	// Optional explicit window; both zero means "the customer's current
	// billing period".
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

type ListInvoiceRequest struct {
	PageToken  string
	PageSize   int32
	CustomerID snowflake.ID
	Status     *InvoiceStatus
	From       *time.Time
	To         *time.Time
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type UpdateStatusRequest struct {
	ID     string        `json:"-"`
	Status InvoiceStatus `json:"status"`
}

type MarkPaidRequest struct {
	ID                 string `json:"-"`
	ExternalPaymentRef string `json:"external_payment_ref"`
}

// Summary aggregates a customer's invoices by lifecycle state.
type Summary struct {
	TotalCount    int64           `json:"total_count"`
	PendingCount  int64           `json:"pending_count"`
	PaidCount     int64           `json:"paid_count"`
	OverdueCount  int64           `json:"overdue_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	OverdueAmount decimal.Decimal `json:"overdue_amount"`
}

// GenerateRunFailure records one customer a bulk generation run could not
// invoice. The run itself keeps going.
type GenerateRunFailure struct {
	CustomerID snowflake.ID `json:"customer_id"`
	Error      string       `json:"error"`
}

type GenerateRunResult struct {
	Generated int                  `json:"generated"`
	Skipped   int                  `json:"skipped"`
	Failed    []GenerateRunFailure `json:"failed"`
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	Summary(ctx context.Context, customerID snowflake.ID) (Summary, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (Invoice, error)
	MarkPaid(ctx context.Context, req MarkPaidRequest) (Invoice, error)
	MarkOverdueInvoices(ctx context.Context) (int64, error)
	// GenerateMonthlyInvoices invoices every active customer whose current
	// period is within maxDaysRemaining of closing.
	GenerateMonthlyInvoices(ctx context.Context, maxDaysRemaining int) (GenerateRunResult, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidPeriod     = errors.New("invalid_period")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrNotFound          = errors.New("not_found")
	ErrCustomerNotFound  = errors.New("customer_not_found")
	ErrDuplicateInvoice  = errors.New("duplicate_invoice")
	ErrNumberContention  = errors.New("invoice_number_contention")
)
