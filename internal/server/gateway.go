package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/config"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	"github.com/metergate/metergate/internal/observability"
	obsmetrics "github.com/metergate/metergate/internal/observability/metrics"
	"github.com/metergate/metergate/internal/proxy"
	"github.com/metergate/metergate/internal/ratelimit"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	"github.com/metergate/metergate/internal/usage/buffer"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type GatewayParams struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	Runtime     *config.RuntimeConfigHolder
	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics
	Clock       clock.Clock
	GenID       *snowflake.Node

	Resolver    apikeydomain.Resolver
	Limiter     *ratelimit.Limiter
	Forwarder   *proxy.Forwarder
	Buffer      *buffer.Buffer
	UsageSvc    usagedomain.Service
	CustomerSvc customerdomain.Service
	TierSvc     tierdomain.Service

	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Gateway is the data-plane server: every customer-facing request enters
// here and is either proxied upstream or relayed to the billing plane.
type Gateway struct {
	log         *zap.Logger
	cfg         config.Config
	runtime     *config.RuntimeConfigHolder
	obsCfg      observability.Config
	httpMetrics *obsmetrics.HTTPMetrics
	clock       clock.Clock
	genID       *snowflake.Node

	resolver    apikeydomain.Resolver
	limiter     *ratelimit.Limiter
	forwarder   *proxy.Forwarder
	buffer      *buffer.Buffer
	usageSvc    usagedomain.Service
	customerSvc customerdomain.Service
	tierSvc     tierdomain.Service
	metrics     *obsmetrics.Metrics

	billing   *RelayClient
	analytics *RelayClient
}

func NewGateway(p GatewayParams) *Gateway {
	log := p.Log.Named("server.gateway")
	return &Gateway{
		log:         log,
		cfg:         p.Cfg,
		runtime:     p.Runtime,
		obsCfg:      p.ObsCfg,
		httpMetrics: p.HTTPMetrics,
		clock:       p.Clock,
		genID:       p.GenID,
		resolver:    p.Resolver,
		limiter:     p.Limiter,
		forwarder:   p.Forwarder,
		buffer:      p.Buffer,
		usageSvc:    p.UsageSvc,
		customerSvc: p.CustomerSvc,
		tierSvc:     p.TierSvc,
		metrics:     p.Metrics,
		billing:     NewRelayClient(p.Cfg.BillingServiceURL, log),
		analytics:   NewRelayClient(p.Cfg.AnalyticsServiceURL, log),
	}
}

// Routes builds the gateway engine. The proxy catch-all admits any method;
// billing and analytics are read-mostly relays under the same key auth.
func (g *Gateway) Routes() *gin.Engine {
	r := NewEngine(g.obsCfg, g.httpMetrics)

	api := r.Group("/api", g.APIKeyAuth(), g.RateLimit())
	api.Any("/*path", g.Proxy)

	billing := r.Group("/billing", g.APIKeyAuth())
	billing.Any("/*path", g.RelayBilling)

	analytics := r.Group("/analytics", g.APIKeyAuth())
	analytics.Any("/*path", g.RelayAnalytics)

	admin := r.Group("/admin", g.AdminAuth())
	admin.GET("/stats", g.AdminStats)
	admin.GET("/usage-logs", g.AdminUsageLogs)
	admin.GET("/customers/:id/usage", g.AdminCustomerUsage)
	admin.POST("/customers/:id/rate-limit/reset", g.AdminResetRateLimit)
	admin.GET("/keys/lookup", g.AdminKeyLookup)
	admin.POST("/invoices/generate", g.relayAdmin(g.billing, "/internal/invoices/generate"))
	admin.POST("/invoices/generate-monthly", g.relayAdmin(g.billing, "/internal/invoices/generate-monthly"))
	admin.POST("/invoices/mark-overdue", g.relayAdmin(g.billing, "/internal/invoices/mark-overdue"))

	return r
}

var GatewayModule = fx.Module("http.gateway",
	fx.Provide(NewGateway),
	fx.Invoke(RunGateway),
)

func RunGateway(lc fx.Lifecycle, g *Gateway) {
	serve(lc, g.cfg.GatewayAddr, g.Routes(), g.log)
}
