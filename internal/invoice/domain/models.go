// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s InvoiceStatus) bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// Invoice is a generated invoice for one customer billing period. Number is
// unique globally; (customer_id, period_start, period_end) is unique so a
// period can only ever be invoiced once.
type Invoice struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	Number             string          `gorm:"type:text;not null;uniqueIndex" json:"number"`
	CustomerID         snowflake.ID    `gorm:"column:customer_id;not null;index;uniqueIndex:ux_invoice_customer_period" json:"customer_id"`
	PeriodStart        time.Time       `gorm:"column:period_start;not null;uniqueIndex:ux_invoice_customer_period" json:"period_start"`
	PeriodEnd          time.Time       `gorm:"column:period_end;not null;index;uniqueIndex:ux_invoice_customer_period" json:"period_end"`
	Status             InvoiceStatus   `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	Amount             decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	TotalUsage         int64           `gorm:"column:total_usage;not null;default:0" json:"total_usage"`
	DueDate            time.Time       `gorm:"column:due_date;not null" json:"due_date"`
	PaidAt             *time.Time      `gorm:"column:paid_at" json:"paid_at,omitempty"`
	ExternalPaymentRef *string         `gorm:"column:external_payment_ref;type:text" json:"external_payment_ref,omitempty"`
	CreatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Items []LineItem `gorm:"-" json:"items,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// LineItem is a line on an invoice. Amount is always Quantity x UnitPrice;
// informational lines carry a zero unit price.
type LineItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"column:invoice_id;not null;index" json:"invoice_id"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"unit_price"`
	Amount      decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (LineItem) TableName() string { return "invoice_items" }
