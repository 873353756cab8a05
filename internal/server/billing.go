package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/metergate/metergate/internal/analytics/domain"
	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	billingperioddomain "github.com/metergate/metergate/internal/billingperiod/domain"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/config"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	developerdomain "github.com/metergate/metergate/internal/developer/domain"
	invoicedomain "github.com/metergate/metergate/internal/invoice/domain"
	"github.com/metergate/metergate/internal/invoice/render"
	"github.com/metergate/metergate/internal/observability"
	obscontext "github.com/metergate/metergate/internal/observability/context"
	obsmetrics "github.com/metergate/metergate/internal/observability/metrics"
	pricingdomain "github.com/metergate/metergate/internal/pricing/domain"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type BillingParams struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics
	Clock       clock.Clock

	PeriodCalc   billingperioddomain.Calculator
	InvoiceSvc   invoicedomain.Service
	PricingSvc   pricingdomain.Service
	AnalyticsSvc analyticsdomain.Service
	UsageSvc     usagedomain.Service
	CustomerSvc  customerdomain.Service
	TierSvc      tierdomain.Service
	DeveloperSvc developerdomain.Service
	KeySvc       apikeydomain.Service
	Renderer     *render.Renderer
}

// Billing is the control-plane server: billing periods, invoices, pricing
// and analytics for customers, plus the operator CRUD surface. Customer
// identity arrives pre-resolved from the gateway in the X-Customer-Id
// header; this plane never sees raw API keys.
type Billing struct {
	log    *zap.Logger
	cfg    config.Config
	obsCfg observability.Config

	httpMetrics *obsmetrics.HTTPMetrics
	clock       clock.Clock

	periodCalc   billingperioddomain.Calculator
	invoiceSvc   invoicedomain.Service
	pricingSvc   pricingdomain.Service
	analyticsSvc analyticsdomain.Service
	usageSvc     usagedomain.Service
	customerSvc  customerdomain.Service
	tierSvc      tierdomain.Service
	developerSvc developerdomain.Service
	keySvc       apikeydomain.Service
	renderer     *render.Renderer
}

func NewBilling(p BillingParams) *Billing {
	return &Billing{
		log:          p.Log.Named("server.billing"),
		cfg:          p.Cfg,
		obsCfg:       p.ObsCfg,
		httpMetrics:  p.HTTPMetrics,
		clock:        p.Clock,
		periodCalc:   p.PeriodCalc,
		invoiceSvc:   p.InvoiceSvc,
		pricingSvc:   p.PricingSvc,
		analyticsSvc: p.AnalyticsSvc,
		usageSvc:     p.UsageSvc,
		customerSvc:  p.CustomerSvc,
		tierSvc:      p.TierSvc,
		developerSvc: p.DeveloperSvc,
		keySvc:       p.KeySvc,
		renderer:     p.Renderer,
	}
}

func (b *Billing) Routes() *gin.Engine {
	r := NewEngine(b.obsCfg, b.httpMetrics)

	billing := r.Group("/billing", b.CustomerContext())
	billing.GET("/current-period", b.CurrentPeriod)
	billing.GET("/current-usage", b.CurrentUsage)
	billing.GET("/history", b.BillingHistory)
	billing.GET("/tiers", b.Tiers)
	billing.GET("/estimate", b.EstimateCost)
	billing.POST("/preview-upgrade", b.PreviewUpgrade)
	billing.GET("/invoices", b.ListInvoices)
	billing.GET("/invoices/summary", b.InvoiceSummary)
	billing.GET("/invoices/:id", b.GetInvoice)
	billing.PUT("/invoices/:id/status", b.UpdateInvoiceStatus)
	billing.PUT("/invoices/:id/mark-paid", b.MarkInvoicePaid)
	billing.GET("/invoices/:id/pdf", b.InvoicePDF)

	analytics := r.Group("/analytics", b.CustomerContext())
	analytics.GET("/count", b.AnalyticsCount)
	analytics.GET("/trends", b.AnalyticsTrends)
	analytics.GET("/top-endpoints", b.AnalyticsTopEndpoints)
	analytics.GET("/error-rate", b.AnalyticsErrorRate)
	analytics.GET("/growth", b.AnalyticsGrowth)

	internal := r.Group("/internal")
	internal.POST("/invoices/generate", b.GenerateInvoice)
	internal.POST("/invoices/generate-monthly", b.GenerateMonthlyInvoices)
	internal.POST("/invoices/mark-overdue", b.MarkOverdueInvoices)

	admin := r.Group("/admin", adminAuth(b.cfg.AdminAPIKey))
	admin.GET("/customers", b.AdminListCustomers)
	admin.POST("/customers", b.AdminCreateCustomer)
	admin.GET("/customers/:id", b.AdminGetCustomer)
	admin.PUT("/customers/:id/active", b.AdminSetCustomerActive)
	admin.PUT("/customers/:id/tier", b.AdminChangeCustomerTier)
	admin.GET("/customers/:id/keys", b.AdminListCustomerKeys)
	admin.GET("/tiers", b.AdminListTiers)
	admin.POST("/tiers", b.AdminCreateTier)
	admin.PUT("/tiers/:id", b.AdminUpdateTier)
	admin.POST("/keys", b.AdminCreateKey)
	admin.POST("/keys/:id/rotate", b.AdminRotateKey)
	admin.DELETE("/keys/:id", b.AdminRevokeKey)
	admin.GET("/developers", b.AdminListDevelopers)
	admin.POST("/developers", b.AdminCreateDeveloper)
	admin.PUT("/developers/:id", b.AdminUpdateDeveloper)

	return r
}

// CustomerContext requires the gateway-injected customer identity header.
func (b *Billing) CustomerContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderCustomerID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithCustomerID(c.Request.Context(), id.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextCustomerID, id.String())
		c.Next()
	}
}

func customerIDFrom(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.GetString(contextCustomerID))
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

var BillingModule = fx.Module("http.billing",
	fx.Provide(NewBilling),
	fx.Invoke(RunBilling),
)

func RunBilling(lc fx.Lifecycle, b *Billing) {
	serve(lc, b.cfg.BillingAddr, b.Routes(), b.log)
}
