package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/metergate/metergate/internal/invoice/domain"
	"github.com/metergate/metergate/internal/invoice/render"
	"github.com/metergate/metergate/pkg/db/pagination"
)

const defaultHistoryLimit = 50

// CurrentPeriod returns the customer's billing window, anchored to their
// signup day of month.
func (b *Billing) CurrentPeriod(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	period, err := b.periodCalc.CurrentPeriod(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, period)
}

// CurrentUsage joins the period count so far with the tier's daily quota.
// Remaining is against today in the business time zone, not the period.
func (b *Billing) CurrentUsage(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	customer, err := b.customerSvc.GetByID(ctx, id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tier, err := b.tierSvc.GetByID(ctx, customer.TierID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	period, err := b.periodCalc.CurrentPeriod(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	now := b.clock.Now()
	periodUsage, err := b.pricingSvc.CalculateUsageForPeriod(ctx, id, period.Start, now)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	local := now.In(b.cfg.Location())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, b.cfg.Location())
	todayUsage, err := b.usageSvc.CountForPeriod(ctx, id.String(), dayStart.UTC(), now.UTC())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	response := gin.H{
		"period":       period,
		"tier_name":    tier.Name,
		"period_usage": periodUsage,
		"today_usage":  todayUsage,
		"daily_quota":  tier.DailyQuota,
		"unlimited":    tier.Unlimited(),
	}
	if !tier.Unlimited() {
		remaining := tier.DailyQuota - todayUsage
		if remaining < 0 {
			remaining = 0
		}
		response["remaining_today"] = remaining
	}
	c.JSON(http.StatusOK, response)
}

// BillingHistory returns the customer's most recent invoices together with
// the total they have paid over the account's lifetime.
func (b *Billing) BillingHistory(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit, err := parseOptionalInt(c.Query("limit"), defaultHistoryLimit)
	if err != nil || limit <= 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
		return
	}

	resp, err := b.invoiceSvc.List(ctx, invoicedomain.ListInvoiceRequest{
		CustomerID: id,
		PageSize:   int32(limit),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	summary, err := b.invoiceSvc.Summary(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices":      resp.Invoices,
		"lifetime_paid": summary.PaidAmount,
	})
}

type tierListing struct {
	TierName         string `json:"tier_name"`
	PriceMonthly     string `json:"price_monthly"`
	DailyQuota       int64  `json:"daily_quota"`
	Unlimited        bool   `json:"unlimited"`
	EffectivePerCall string `json:"effective_per_call"`
	IsCurrent        bool   `json:"is_current"`
}

// Tiers lists every plan with its pricing shape, flagging the customer's
// current one.
func (b *Billing) Tiers(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	customer, err := b.customerSvc.GetByID(ctx, id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tiers, err := b.tierSvc.List(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]tierListing, 0, len(tiers))
	for _, tier := range tiers {
		pricing, err := b.pricingSvc.TierPricing(ctx, tier.Name)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		out = append(out, tierListing{
			TierName:         pricing.TierName,
			PriceMonthly:     pricing.PriceMonthly.StringFixed(2),
			DailyQuota:       pricing.DailyQuota,
			Unlimited:        pricing.Unlimited,
			EffectivePerCall: pricing.EffectivePerCall.String(),
			IsCurrent:        tier.ID == customer.TierID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tiers": out})
}

// EstimateCost prices the customer's current plan, and the switch to a
// target plan when ?tier= names one.
func (b *Billing) EstimateCost(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	estimate, err := b.pricingSvc.EstimateMonthlyCost(c.Request.Context(), id, c.Query("tier"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

type previewUpgradeRequest struct {
	Tier string `json:"tier"`
}

// PreviewUpgrade prices a mid-period plan switch without applying it.
func (b *Billing) PreviewUpgrade(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req previewUpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Tier) == "" {
		AbortWithError(c, newValidationError("tier", "invalid_tier", "tier is required"))
		return
	}

	preview, err := b.pricingSvc.PreviewTierChange(c.Request.Context(), id, req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// ListInvoices pages through the customer's invoices, optionally filtered
// by status and issue window.
func (b *Billing) ListInvoices(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := invoicedomain.ListInvoiceRequest{
		PageToken:  page.PageToken,
		PageSize:   int32(page.PageSize),
		CustomerID: id,
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := invoicedomain.InvoiceStatus(strings.ToUpper(raw))
		if !invoicedomain.ValidStatus(status) {
			AbortWithError(c, invoicedomain.ErrInvalidStatus)
			return
		}
		req.Status = &status
	}

	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "from must be RFC3339 or YYYY-MM-DD"))
		return
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "to must be RFC3339 or YYYY-MM-DD"))
		return
	}
	req.From = from
	req.To = to

	resp, err := b.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// InvoiceSummary aggregates the customer's invoices by lifecycle state.
func (b *Billing) InvoiceSummary(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	summary, err := b.invoiceSvc.Summary(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ownedInvoice loads an invoice and hides other customers' invoices behind
// the same 404 as a missing one.
func (b *Billing) ownedInvoice(c *gin.Context) (invoicedomain.Invoice, bool) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return invoicedomain.Invoice{}, false
	}

	invoice, err := b.invoiceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return invoicedomain.Invoice{}, false
	}
	if invoice.CustomerID != id {
		AbortWithError(c, invoicedomain.ErrNotFound)
		return invoicedomain.Invoice{}, false
	}
	return invoice, true
}

func (b *Billing) GetInvoice(c *gin.Context) {
	invoice, ok := b.ownedInvoice(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, invoice)
}

type updateInvoiceStatusRequest struct {
	Status string `json:"status"`
}

// UpdateInvoiceStatus applies a lifecycle transition. Illegal transitions
// are rejected by the invoice service.
func (b *Billing) UpdateInvoiceStatus(c *gin.Context) {
	invoice, ok := b.ownedInvoice(c)
	if !ok {
		return
	}

	var req updateInvoiceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := b.invoiceSvc.UpdateStatus(c.Request.Context(), invoicedomain.UpdateStatusRequest{
		ID:     invoice.ID.String(),
		Status: invoicedomain.InvoiceStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type markPaidRequest struct {
	ExternalPaymentRef string `json:"external_payment_ref"`
}

func (b *Billing) MarkInvoicePaid(c *gin.Context) {
	invoice, ok := b.ownedInvoice(c)
	if !ok {
		return
	}

	var req markPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	updated, err := b.invoiceSvc.MarkPaid(c.Request.Context(), invoicedomain.MarkPaidRequest{
		ID:                 invoice.ID.String(),
		ExternalPaymentRef: strings.TrimSpace(req.ExternalPaymentRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// InvoicePDF renders the invoice document for download.
func (b *Billing) InvoicePDF(c *gin.Context) {
	invoice, ok := b.ownedInvoice(c)
	if !ok {
		return
	}

	customer, err := b.customerSvc.GetByID(c.Request.Context(), invoice.CustomerID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	document, err := b.renderer.Render(invoice, render.BillTo{
		Name:  customer.Name,
		Email: customer.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoice-"+invoice.Number+".pdf"))
	c.Data(http.StatusOK, "application/pdf", document)
}
