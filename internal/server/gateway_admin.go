package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	"github.com/metergate/metergate/internal/observability/logger"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	"go.uber.org/zap"
)

const defaultUsageLogLimit = 50

type adminCustomerStats struct {
	Customer      customerdomain.Customer `json:"customer"`
	TierName      string                  `json:"tier_name"`
	DailyQuota    int64                   `json:"daily_quota"`
	TotalRequests int64                   `json:"total_requests"`
	ErrorRequests int64                   `json:"error_requests"`
	LastSeen      *time.Time              `json:"last_seen,omitempty"`
	UsedToday     int64                   `json:"used_today"`
	Remaining     *int64                  `json:"remaining,omitempty"`
	ResetAt       *time.Time              `json:"reset_at,omitempty"`
}

type adminStatsResponse struct {
	Customers []adminCustomerStats `json:"customers"`
	Buffered  int64                `json:"buffered"`
}

// AdminStats joins durable usage totals with the live rate-limit windows for
// every active customer.
func (g *Gateway) AdminStats(c *gin.Context) {
	ctx := c.Request.Context()

	customers, err := g.customerSvc.ListActive(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	stats, err := g.usageSvc.StatsByCustomer(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	byCustomer := make(map[string]usagedomain.CustomerUsageStats, len(stats))
	for _, s := range stats {
		byCustomer[s.CustomerID.String()] = s
	}

	out := make([]adminCustomerStats, 0, len(customers))
	for _, customer := range customers {
		entry := adminCustomerStats{Customer: customer}
		if s, ok := byCustomer[customer.ID.String()]; ok {
			entry.TotalRequests = s.TotalRequests
			entry.ErrorRequests = s.ErrorRequests
			entry.LastSeen = s.LastSeen
		}

		tier, err := g.tierSvc.GetByID(ctx, customer.TierID.String())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		entry.TierName = tier.Name
		entry.DailyQuota = tier.DailyQuota

		window, err := g.limiter.Status(ctx, customer.ID.String(), tier.DailyQuota)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit status unavailable",
				zap.String("customer_id", customer.ID.String()),
				zap.Error(err),
			)
		} else if !window.Unlimited {
			entry.UsedToday = window.Limit - window.Remaining
			remaining := window.Remaining
			resetAt := window.ResetAt
			entry.Remaining = &remaining
			entry.ResetAt = &resetAt
		}

		out = append(out, entry)
	}

	buffered, err := g.buffer.Len(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("usage buffer depth unavailable", zap.Error(err))
	}

	c.JSON(http.StatusOK, adminStatsResponse{Customers: out, Buffered: buffered})
}

// AdminUsageLogs returns the newest buffered usage entries across all
// customers, newest first. They may not be drained yet.
func (g *Gateway) AdminUsageLogs(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"), defaultUsageLogLimit)
	if err != nil || limit <= 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
		return
	}

	records, err := g.usageSvc.RecentBuffered(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if records == nil {
		records = []usagedomain.UsageRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// AdminCustomerUsage returns one customer's day so far: the durable count
// for the current business day, the live window and the freshest buffered
// entries.
func (g *Gateway) AdminCustomerUsage(c *gin.Context) {
	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))

	customer, err := g.customerSvc.GetByID(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tier, err := g.tierSvc.GetByID(ctx, customer.TierID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit, err := parseOptionalInt(c.Query("limit"), defaultUsageLogLimit)
	if err != nil || limit <= 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
		return
	}

	now := g.clock.Now().In(g.cfg.Location())
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.cfg.Location())
	countToday, err := g.usageSvc.CountForPeriod(ctx, id, dayStart.UTC(), now.UTC())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	recent, err := g.usageSvc.RecentBufferedForCustomer(ctx, id, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if recent == nil {
		recent = []usagedomain.UsageRecord{}
	}

	response := gin.H{
		"customer":        customer,
		"tier_name":       tier.Name,
		"daily_quota":     tier.DailyQuota,
		"requests_today":  countToday,
		"recent_buffered": recent,
	}
	window, err := g.limiter.Status(ctx, id, tier.DailyQuota)
	if err != nil {
		logger.FromContext(ctx).Warn("rate limit status unavailable",
			zap.String("customer_id", id),
			zap.Error(err),
		)
	} else if !window.Unlimited {
		response["remaining"] = window.Remaining
		response["reset_at"] = window.ResetAt
	}

	c.JSON(http.StatusOK, response)
}

// AdminResetRateLimit clears a customer's daily window. Support override;
// the next request starts a fresh day.
func (g *Gateway) AdminResetRateLimit(c *gin.Context) {
	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))

	if _, err := g.customerSvc.GetByID(ctx, id); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := g.limiter.Reset(ctx, id); err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "customer_id": id})
}

// AdminKeyLookup resolves a raw secret into its full key context. Support
// tooling; the secret arrives as a query parameter and is never logged.
func (g *Gateway) AdminKeyLookup(c *gin.Context) {
	secret := strings.TrimSpace(c.Query("key"))
	if secret == "" {
		AbortWithError(c, newValidationError("key", "invalid_key", "key is required"))
		return
	}

	kc, err := g.resolver.Resolve(c.Request.Context(), secret)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, kc)
}
