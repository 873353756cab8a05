package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/metergate/metergate/internal/invoice/domain"
)

type generateInvoiceRequest struct {
	CustomerID  string `json:"customer_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// GenerateInvoice invoices one customer, either for an explicit window or
// their current billing period. Reached through the gateway admin surface.
func (b *Billing) GenerateInvoice(c *gin.Context) {
	var req generateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer", "customer_id is required"))
		return
	}

	generate := invoicedomain.GenerateRequest{CustomerID: strings.TrimSpace(req.CustomerID)}
	start, err := parseOptionalTime(req.PeriodStart, false)
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidPeriod)
		return
	}
	end, err := parseOptionalTime(req.PeriodEnd, false)
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidPeriod)
		return
	}
	if (start == nil) != (end == nil) {
		AbortWithError(c, invoicedomain.ErrInvalidPeriod)
		return
	}
	if start != nil {
		generate.PeriodStart = *start
		generate.PeriodEnd = *end
	}

	invoice, err := b.invoiceSvc.Generate(c.Request.Context(), generate)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

type generateMonthlyRequest struct {
	MaxDaysRemaining int `json:"max_days_remaining"`
}

// GenerateMonthlyInvoices runs the bulk close over every active customer.
// Per-customer failures are reported, not fatal.
func (b *Billing) GenerateMonthlyInvoices(c *gin.Context) {
	var req generateMonthlyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	if req.MaxDaysRemaining < 0 {
		AbortWithError(c, newValidationError("max_days_remaining", "invalid_max_days_remaining", "max_days_remaining must not be negative"))
		return
	}

	result, err := b.invoiceSvc.GenerateMonthlyInvoices(c.Request.Context(), req.MaxDaysRemaining)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MarkOverdueInvoices flips every pending invoice past its due date.
func (b *Billing) MarkOverdueInvoices(c *gin.Context) {
	count, err := b.invoiceSvc.MarkOverdueInvoices(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_overdue": count})
}
