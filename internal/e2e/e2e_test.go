// Package e2e boots both HTTP planes against one database and drives
// customer journeys over real sockets: provisioning through the operator
// surface, key auth and proxying at the gateway, and the relayed billing
// and analytics surfaces behind it.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	analyticsservice "github.com/metergate/metergate/internal/analytics/service"
	apikeycache "github.com/metergate/metergate/internal/apikey/cache"
	apikeyrepository "github.com/metergate/metergate/internal/apikey/repository"
	apikeyservice "github.com/metergate/metergate/internal/apikey/service"
	billingperiodservice "github.com/metergate/metergate/internal/billingperiod/service"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/config"
	customerrepository "github.com/metergate/metergate/internal/customer/repository"
	customerservice "github.com/metergate/metergate/internal/customer/service"
	developerrepository "github.com/metergate/metergate/internal/developer/repository"
	developerservice "github.com/metergate/metergate/internal/developer/service"
	"github.com/metergate/metergate/internal/invoice/render"
	invoicerepository "github.com/metergate/metergate/internal/invoice/repository"
	invoiceservice "github.com/metergate/metergate/internal/invoice/service"
	"github.com/metergate/metergate/internal/migration"
	"github.com/metergate/metergate/internal/observability"
	pricingservice "github.com/metergate/metergate/internal/pricing/service"
	"github.com/metergate/metergate/internal/proxy"
	"github.com/metergate/metergate/internal/scheduler"
	"github.com/metergate/metergate/internal/server"
	tierrepository "github.com/metergate/metergate/internal/tier/repository"
	tierservice "github.com/metergate/metergate/internal/tier/service"
	"github.com/metergate/metergate/internal/usage/buffer"
	usagerepository "github.com/metergate/metergate/internal/usage/repository"
	usageservice "github.com/metergate/metergate/internal/usage/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const adminKey = "e2e-admin-secret"

type testEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	sched *scheduler.Scheduler

	upstream *httptest.Server
	billing  *httptest.Server
	gateway  *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

// startEnv wires the billing plane, the gateway in front of it, a stub
// developer upstream and the scheduler around one shared sqlite database.
// No Redis: the key cache, usage buffer and drain all run in their
// degraded direct-to-database mode.
func startEnv() (*testEnv, error) {
	db, err := gorm.Open(sqlite.Open("file:metergate_e2e?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := migration.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	node, err := snowflake.NewNode(9)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	runtime, err := config.NewRuntimeConfigHolder()
	if err != nil {
		return nil, fmt.Errorf("runtime config: %w", err)
	}

	fake := clock.NewFakeClock(time.Now().UTC())
	log := zap.NewNop()
	cfg := config.Config{
		AdminAPIKey:     adminKey,
		BillingTimezone: "UTC",
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
	}))

	tiers := tierservice.New(tierservice.Params{DB: db, Log: log, GenID: node, Repo: tierrepository.Provide()})
	developers := developerservice.New(developerservice.Params{DB: db, Log: log, GenID: node, Repo: developerrepository.Provide()})
	customers := customerservice.New(customerservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       customerrepository.Provide(),
		Tiers:      tiers,
		Developers: developers,
	})
	periods := billingperiodservice.New(billingperiodservice.Params{DB: db, Log: log, Clock: fake, Cfg: cfg})
	usage := usageservice.New(usageservice.Params{DB: db, Log: log, Repo: usagerepository.Provide()})
	pricing := pricingservice.New(pricingservice.Params{
		DB:        db,
		Log:       log,
		Tiers:     tiers,
		Periods:   periods,
		UsageRepo: usagerepository.Provide(),
	})
	analytics := analyticsservice.New(analyticsservice.Params{DB: db, Log: log, Clock: fake})
	invoices := invoiceservice.New(invoiceservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Periods:   periods,
		Repo:      invoicerepository.Provide(),
		UsageRepo: usagerepository.Provide(),
	})
	resolver := apikeycache.NewResolver(apikeycache.Params{
		DB:      db,
		Log:     log,
		Runtime: runtime,
		Repo:    apikeyrepository.Provide(),
	})
	keys := apikeyservice.New(apikeyservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Repo:      apikeyrepository.Provide(),
		Customers: customers,
		Resolver:  resolver,
	})

	billing := server.NewBilling(server.BillingParams{
		Log:          log,
		Cfg:          cfg,
		ObsCfg:       observability.Config{},
		Clock:        fake,
		PeriodCalc:   periods,
		InvoiceSvc:   invoices,
		PricingSvc:   pricing,
		AnalyticsSvc: analytics,
		UsageSvc:     usage,
		CustomerSvc:  customers,
		TierSvc:      tiers,
		DeveloperSvc: developers,
		KeySvc:       keys,
		Renderer:     render.NewRenderer("Metergate E2E"),
	})
	billingSrv := httptest.NewServer(billing.Routes())

	gatewayCfg := cfg
	gatewayCfg.BillingServiceURL = billingSrv.URL
	gatewayCfg.AnalyticsServiceURL = billingSrv.URL
	gateway := server.NewGateway(server.GatewayParams{
		Log:      log,
		Cfg:      gatewayCfg,
		Runtime:  runtime,
		ObsCfg:   observability.Config{},
		Clock:    fake,
		GenID:    node,
		Resolver: resolver,
		Forwarder: proxy.NewForwarder(proxy.Params{
			Log:     log,
			Cfg:     gatewayCfg,
			Runtime: runtime,
		}),
		Buffer: buffer.New(buffer.Params{
			Log:     log,
			GenID:   node,
			Runtime: runtime,
		}),
		UsageSvc:    usage,
		CustomerSvc: customers,
		TierSvc:     tiers,
	})
	gatewaySrv := httptest.NewServer(gateway.Routes())

	drainer := buffer.NewDrainer(buffer.DrainerParams{
		DB:      db,
		Log:     log,
		Runtime: runtime,
		Repo:    usagerepository.Provide(),
	})
	sched, err := scheduler.New(scheduler.Params{
		Log:        log,
		AppConfig:  cfg,
		Runtime:    runtime,
		InvoiceSvc: invoices,
		Drainer:    drainer,
		GenID:      node,
		Clock:      fake,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	return &testEnv{
		db:       db,
		node:     node,
		clock:    fake,
		sched:    sched,
		upstream: upstream,
		billing:  billingSrv,
		gateway:  gatewaySrv,
	}, nil
}

func (e *testEnv) shutdown() {
	e.gateway.Close()
	e.billing.Close()
	e.upstream.Close()
}

func resetDatabase(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, table := range []string{
		"usage_records",
		"invoice_items",
		"invoices",
		"api_keys",
		"customers",
		"tiers",
		"developers",
	} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
}

func doJSON(t *testing.T, method, url string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request %s %s: %v", method, url, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp, data
}
