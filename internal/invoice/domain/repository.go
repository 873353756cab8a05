package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListInvoiceFilter struct {
	CustomerID snowflake.ID
	Status     *InvoiceStatus
	From       *time.Time
	To         *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []LineItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]LineItem, error)
	FindByPeriod(ctx context.Context, db *gorm.DB, customerID snowflake.ID, start, end time.Time) (*Invoice, error)
	// NextSequence returns 1 + the highest NNN already allocated under the
	// given number prefix.
	NextSequence(ctx context.Context, db *gorm.DB, prefix string) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	Summary(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (Summary, error)
}
