package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	obscontext "github.com/metergate/metergate/internal/observability/context"
	"github.com/metergate/metergate/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderAPIKey     = "x-api-key"
	HeaderAdminKey   = "x-admin-key"
	HeaderCustomerID = "X-Customer-Id"

	contextKeyContext = "key_context"
	contextCustomerID = "customer_id"
)

// APIKeyAuth resolves the x-api-key header into a KeyContext. The resolver
// distinguishes missing, unknown, inactive and expired keys; all reject with
// 401.
func (g *Gateway) APIKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		if secret == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		kc, err := g.resolver.Resolve(c.Request.Context(), secret)
		if err != nil {
			// A storage failure is not a verdict on the key: reject the
			// request as unavailable rather than unauthorized.
			if !isUnauthorizedError(err) {
				logger.FromContext(c.Request.Context()).Warn("key resolution unavailable", zap.Error(err))
				err = ErrServiceUnavailable
			}
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithCustomerID(c.Request.Context(), kc.CustomerID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextKeyContext, kc)
		c.Set(contextCustomerID, kc.CustomerID.String())
		c.Next()
	}
}

// RateLimit enforces the resolved tier's daily quota. Unlimited tiers pass
// through without headers; everyone else gets the X-RateLimit trio.
func (g *Gateway) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.runtime.Get().RateLimitEnabled {
			c.Next()
			return
		}

		kc := keyContextFrom(c)
		if kc == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		result, err := g.limiter.Allow(ctx, kc.CustomerID.String(), kc.DailyQuota)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if result.Unlimited {
			g.metrics.RecordRateLimitAllowed(ctx, kc.TierName)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", formatInt64(result.Limit))
		c.Header("X-RateLimit-Remaining", formatInt64(result.Remaining))
		c.Header("X-RateLimit-Reset", result.ResetAt.Format(time.RFC3339))

		if !result.Allowed {
			g.metrics.RecordRateLimitDenied(ctx, kc.TierName, "daily_quota")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"limit":   result.Limit,
				"resetAt": result.ResetAt.Format(time.RFC3339),
			})
			return
		}

		g.metrics.RecordRateLimitAllowed(ctx, kc.TierName)
		c.Next()
	}
}

// AdminAuth guards the operator surface with the shared admin secret.
func (g *Gateway) AdminAuth() gin.HandlerFunc {
	return adminAuth(g.cfg.AdminAPIKey)
}

// adminAuth compares the x-admin-key header against the configured secret.
// An empty configured secret disables the surface entirely.
func adminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := strings.TrimSpace(c.GetHeader(HeaderAdminKey))
		if secret == "" || presented == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func keyContextFrom(c *gin.Context) *apikeydomain.KeyContext {
	value, ok := c.Get(contextKeyContext)
	if !ok {
		return nil
	}
	kc, ok := value.(*apikeydomain.KeyContext)
	if !ok {
		return nil
	}
	return kc
}
