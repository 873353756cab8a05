package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/internal/invoice/domain"
	"github.com/metergate/metergate/pkg/db/option"
	"github.com/metergate/metergate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, number, customer_id, period_start, period_end, status,
			amount, total_usage, due_date, paid_at, external_payment_ref,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.Number,
		invoice.CustomerID,
		invoice.PeriodStart,
		invoice.PeriodEnd,
		invoice.Status,
		invoice.Amount,
		invoice.TotalUsage,
		invoice.DueDate,
		invoice.PaidAt,
		invoice.ExternalPaymentRef,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.LineItem) error {
	for i := range items {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price, amount, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			items[i].ID,
			items[i].InvoiceID,
			items[i].Description,
			items[i].Quantity,
			items[i].UnitPrice,
			items[i].Amount,
			items[i].CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, number, customer_id, period_start, period_end, status,
		        amount, total_usage, due_date, paid_at, external_payment_ref,
		        created_at, updated_at
		 FROM invoices WHERE id = ?`,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.LineItem, error) {
	var items []domain.LineItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, description, quantity, unit_price, amount, created_at
		 FROM invoice_items
		 WHERE invoice_id = ?
		 ORDER BY id ASC`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByPeriod(ctx context.Context, db *gorm.DB, customerID snowflake.ID, start, end time.Time) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, number, customer_id, period_start, period_end, status,
		        amount, total_usage, due_date, paid_at, external_payment_ref,
		        created_at, updated_at
		 FROM invoices
		 WHERE customer_id = ? AND period_start = ? AND period_end = ?
		 LIMIT 1`,
		customerID,
		start,
		end,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

// NextSequence parses the numeric tail past the prefix instead of taking a
// lexicographic MAX so the sequence keeps counting past 999.
func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, prefix string) (int64, error) {
	var max int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(CAST(SUBSTR(number, ?) AS INTEGER)), 0)
		 FROM invoices
		 WHERE number LIKE ?`,
		len(prefix)+1,
		prefix+"%",
	).Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{})
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		stmt = stmt.Where("period_start >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("period_end <= ?", *filter.To)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_at = ?, external_payment_ref = ?, updated_at = ?
		 WHERE id = ?`,
		invoice.Status,
		invoice.PaidAt,
		invoice.ExternalPaymentRef,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND due_date < ?`,
		domain.InvoiceStatusOverdue,
		now,
		domain.InvoiceStatusPending,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) Summary(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (domain.Summary, error) {
	var summary domain.Summary
	err := db.WithContext(ctx).Raw(
		`SELECT
			COUNT(1) AS total_count,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending_count,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS paid_count,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS overdue_count,
			COALESCE(SUM(amount), 0) AS total_amount,
			COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS pending_amount,
			COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS paid_amount,
			COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS overdue_amount
		 FROM invoices
		 WHERE customer_id = ?`,
		domain.InvoiceStatusPending,
		domain.InvoiceStatusPaid,
		domain.InvoiceStatusOverdue,
		domain.InvoiceStatusPending,
		domain.InvoiceStatusPaid,
		domain.InvoiceStatusOverdue,
		customerID,
	).Scan(&summary).Error
	if err != nil {
		return domain.Summary{}, err
	}
	return summary, nil
}
