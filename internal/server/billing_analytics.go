package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/metergate/metergate/internal/analytics/domain"
)

const defaultTopEndpointLimit = 10

// AnalyticsCount returns the customer's request count over an arbitrary
// window. Missing bounds default inside the service.
func (b *Billing) AnalyticsCount(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
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

	count, err := b.analyticsSvc.Count(c.Request.Context(), id, timeValue(from), timeValue(to))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// AnalyticsTrends returns the request-volume series, gap-filled with empty
// buckets.
func (b *Billing) AnalyticsTrends(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	bucket := analyticsdomain.TrendBucket(c.DefaultQuery("bucket", string(analyticsdomain.BucketDay)))
	points, err := b.analyticsSvc.Trends(c.Request.Context(), id, bucket)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bucket": bucket, "points": points})
}

func (b *Billing) AnalyticsTopEndpoints(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit, err := parseOptionalInt(c.Query("limit"), defaultTopEndpointLimit)
	if err != nil || limit <= 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
		return
	}

	window := analyticsdomain.Window(c.DefaultQuery("window", string(analyticsdomain.WindowDay)))
	stats, err := b.analyticsSvc.TopEndpoints(c.Request.Context(), id, window, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"window": window, "endpoints": stats})
}

func (b *Billing) AnalyticsErrorRate(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	window := analyticsdomain.Window(c.DefaultQuery("window", string(analyticsdomain.WindowDay)))
	report, err := b.analyticsSvc.ErrorRate(c.Request.Context(), id, window)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// AnalyticsGrowth compares the trailing week against the one before it.
func (b *Billing) AnalyticsGrowth(c *gin.Context) {
	id, ok := customerIDFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	report, err := b.analyticsSvc.Growth(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
