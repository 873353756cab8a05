package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	analyticsservice "github.com/metergate/metergate/internal/analytics/service"
	billingperiodservice "github.com/metergate/metergate/internal/billingperiod/service"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/config"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	customerrepository "github.com/metergate/metergate/internal/customer/repository"
	customerservice "github.com/metergate/metergate/internal/customer/service"
	developerdomain "github.com/metergate/metergate/internal/developer/domain"
	developerrepository "github.com/metergate/metergate/internal/developer/repository"
	developerservice "github.com/metergate/metergate/internal/developer/service"
	invoicedomain "github.com/metergate/metergate/internal/invoice/domain"
	"github.com/metergate/metergate/internal/invoice/render"
	invoicerepository "github.com/metergate/metergate/internal/invoice/repository"
	invoiceservice "github.com/metergate/metergate/internal/invoice/service"
	"github.com/metergate/metergate/internal/observability"
	pricingservice "github.com/metergate/metergate/internal/pricing/service"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	tierrepository "github.com/metergate/metergate/internal/tier/repository"
	tierservice "github.com/metergate/metergate/internal/tier/service"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	usagerepository "github.com/metergate/metergate/internal/usage/repository"
	usageservice "github.com/metergate/metergate/internal/usage/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type billingFixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	engine http.Handler
}

func setupBilling(t *testing.T, now time.Time) *billingFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(
		&tierdomain.Tier{},
		&developerdomain.Developer{},
		&customerdomain.Customer{},
		&usagedomain.UsageRecord{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(now)
	log := zap.NewNop()
	cfg := config.Config{
		AdminAPIKey:     "admin-secret",
		BillingTimezone: "UTC",
	}

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

	b := NewBilling(BillingParams{
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
		Renderer:     render.NewRenderer("Metergate Test"),
	})

	return &billingFixture{db: db, node: node, clock: fake, engine: b.Routes()}
}

func (f *billingFixture) insertTier(t *testing.T, name string, price string, quota int64) tierdomain.Tier {
	t.Helper()
	tier := tierdomain.Tier{
		ID:           f.node.Generate(),
		Name:         name,
		Code:         strings.ToLower(name),
		PriceMonthly: decimal.RequireFromString(price),
		DailyQuota:   quota,
		Features:     datatypes.JSONMap{},
	}
	if err := f.db.Create(&tier).Error; err != nil {
		t.Fatalf("insert tier: %v", err)
	}
	return tier
}

func (f *billingFixture) insertCustomer(t *testing.T, tier tierdomain.Tier, createdAt time.Time) customerdomain.Customer {
	t.Helper()
	id := f.node.Generate()
	customer := customerdomain.Customer{
		ID:        id,
		Email:     fmt.Sprintf("%s@example.com", id),
		Name:      "Acme Corp",
		TierID:    tier.ID,
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := f.db.Create(&customer).Error; err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	return customer
}

func (f *billingFixture) insertUsage(t *testing.T, customerID snowflake.ID, count int, ts time.Time) {
	t.Helper()
	for i := 0; i < count; i++ {
		record := usagedomain.UsageRecord{
			ID:         f.node.Generate(),
			CustomerID: customerID,
			Endpoint:   "/widgets",
			Method:     "GET",
			StatusCode: 200,
			Timestamp:  ts,
			CreatedAt:  ts,
		}
		if err := f.db.Create(&record).Error; err != nil {
			t.Fatalf("insert usage: %v", err)
		}
	}
}

func (f *billingFixture) doAs(customerID, method, target string, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if customerID != "" {
		req.Header.Set(HeaderCustomerID, customerID)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestBillingRequiresCustomerIdentity(t *testing.T) {
	f := setupBilling(t, time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))

	rec := f.doAs("", http.MethodGet, "/billing/current-period", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: expected 401, got %d", rec.Code)
	}

	rec = f.doAs("not-a-snowflake", http.MethodGet, "/billing/current-period", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("malformed header: expected 401, got %d", rec.Code)
	}

	rec = f.doAs(f.node.Generate().String(), http.MethodGet, "/billing/current-period", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown customer: expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCurrentPeriodAnchorsToSignupDay(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	tier := f.insertTier(t, "Pro", "49.00", 1000)
	customer := f.insertCustomer(t, tier, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))

	rec := f.doAs(customer.ID.String(), http.MethodGet, "/billing/current-period", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var period struct {
		PeriodStart time.Time `json:"period_start"`
		PeriodEnd   time.Time `json:"period_end"`
		CycleDay    int       `json:"cycle_day"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &period); err != nil {
		t.Fatalf("decode period: %v", err)
	}
	if period.CycleDay != 15 {
		t.Fatalf("expected cycle day 15, got %d", period.CycleDay)
	}
	if period.PeriodStart.Day() != 15 || period.PeriodStart.Month() != time.March {
		t.Fatalf("expected period starting March 15, got %s", period.PeriodStart)
	}
}

func TestCurrentUsageReportsQuotaAndRemaining(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	tier := f.insertTier(t, "Pro", "49.00", 1000)
	customer := f.insertCustomer(t, tier, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))
	f.insertUsage(t, customer.ID, 30, now.Add(-2*time.Hour))
	f.insertUsage(t, customer.ID, 5, now.Add(-72*time.Hour))

	rec := f.doAs(customer.ID.String(), http.MethodGet, "/billing/current-usage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		TierName       string `json:"tier_name"`
		PeriodUsage    int64  `json:"period_usage"`
		TodayUsage     int64  `json:"today_usage"`
		DailyQuota     int64  `json:"daily_quota"`
		Unlimited      bool   `json:"unlimited"`
		RemainingToday int64  `json:"remaining_today"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if body.TierName != "Pro" {
		t.Fatalf("expected tier Pro, got %q", body.TierName)
	}
	if body.PeriodUsage != 35 {
		t.Fatalf("expected 35 period requests, got %d", body.PeriodUsage)
	}
	if body.TodayUsage != 30 {
		t.Fatalf("expected 30 requests today, got %d", body.TodayUsage)
	}
	if body.RemainingToday != 970 {
		t.Fatalf("expected 970 remaining, got %d", body.RemainingToday)
	}
	if body.Unlimited {
		t.Fatal("expected limited tier")
	}
}

func TestTiersMarkCurrentPlan(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	free := f.insertTier(t, "Free", "0.00", 100)
	pro := f.insertTier(t, "Pro", "49.00", 1000)
	customer := f.insertCustomer(t, pro, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))
	_ = free

	rec := f.doAs(customer.ID.String(), http.MethodGet, "/billing/tiers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Tiers []tierListing `json:"tiers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode tiers: %v", err)
	}
	if len(body.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(body.Tiers))
	}
	current := 0
	for _, listing := range body.Tiers {
		if listing.IsCurrent {
			current++
			if listing.TierName != "Pro" {
				t.Fatalf("expected Pro marked current, got %q", listing.TierName)
			}
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one current tier, got %d", current)
	}
}

func TestBillingHistoryListsInvoicesAndPaidTotal(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	tier := f.insertTier(t, "Pro", "49.00", 1000)
	customer := f.insertCustomer(t, tier, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))

	rec := f.doAs("", http.MethodPost, "/internal/invoices/generate",
		fmt.Sprintf(`{"customer_id":%q}`, customer.ID.String()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var invoice invoicedomain.Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &invoice); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}

	rec = f.doAs(customer.ID.String(), http.MethodPut,
		"/billing/invoices/"+invoice.ID.String()+"/mark-paid", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark paid: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.doAs(customer.ID.String(), http.MethodGet, "/billing/history?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var history struct {
		Invoices     []invoicedomain.Invoice `json:"invoices"`
		LifetimePaid decimal.Decimal         `json:"lifetime_paid"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Invoices) != 1 || history.Invoices[0].ID != invoice.ID {
		t.Fatalf("expected the generated invoice back, got %+v", history.Invoices)
	}
	if history.Invoices[0].Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected PAID in history, got %s", history.Invoices[0].Status)
	}
	if !history.LifetimePaid.Equal(decimal.RequireFromString("49.00")) {
		t.Fatalf("expected lifetime paid 49.00, got %s", history.LifetimePaid)
	}
}

func TestEstimateComparesTargetTier(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	pro := f.insertTier(t, "Pro", "49.00", 1000)
	f.insertTier(t, "Free", "0.00", 10)
	customer := f.insertCustomer(t, pro, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))

	rec := f.doAs(customer.ID.String(), http.MethodGet, "/billing/estimate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("estimate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var estimate struct {
		CurrentTier  string           `json:"current_tier"`
		CurrentPrice decimal.Decimal  `json:"current_price"`
		TargetTier   string           `json:"target_tier"`
		Savings      *decimal.Decimal `json:"savings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &estimate); err != nil {
		t.Fatalf("decode estimate: %v", err)
	}
	if estimate.CurrentTier != "Pro" || !estimate.CurrentPrice.Equal(decimal.RequireFromString("49.00")) {
		t.Fatalf("unexpected current side: %+v", estimate)
	}
	if estimate.TargetTier != "" || estimate.Savings != nil {
		t.Fatalf("expected no target side without ?tier, got %+v", estimate)
	}

	rec = f.doAs(customer.ID.String(), http.MethodGet, "/billing/estimate?tier=Free", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("estimate with target: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &estimate); err != nil {
		t.Fatalf("decode estimate: %v", err)
	}
	if estimate.TargetTier != "Free" {
		t.Fatalf("expected target Free, got %+v", estimate)
	}
	if estimate.Savings == nil || !estimate.Savings.Equal(decimal.RequireFromString("49.00")) {
		t.Fatalf("expected savings 49.00, got %v", estimate.Savings)
	}

	rec = f.doAs(customer.ID.String(), http.MethodGet, "/billing/estimate?tier=Imaginary", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown target tier: expected 404, got %d", rec.Code)
	}
}

func TestInvoiceOwnershipIsHidden(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	tier := f.insertTier(t, "Pro", "49.00", 1000)
	owner := f.insertCustomer(t, tier, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))
	other := f.insertCustomer(t, tier, time.Date(2026, time.January, 2, 9, 0, 0, 0, time.UTC))

	rec := f.doAs("", http.MethodPost, "/internal/invoices/generate",
		fmt.Sprintf(`{"customer_id":%q}`, owner.ID.String()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var invoice invoicedomain.Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &invoice); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}

	rec = f.doAs(other.ID.String(), http.MethodGet, "/billing/invoices/"+invoice.ID.String(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign invoice: expected 404, got %d", rec.Code)
	}

	rec = f.doAs(owner.ID.String(), http.MethodGet, "/billing/invoices/"+invoice.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("own invoice: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDuplicateInvoiceGenerationIsRejected(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	tier := f.insertTier(t, "Pro", "49.00", 1000)
	customer := f.insertCustomer(t, tier, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))

	body := fmt.Sprintf(`{"customer_id":%q}`, customer.ID.String())
	rec := f.doAs("", http.MethodPost, "/internal/invoices/generate", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first generate: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.doAs("", http.MethodPost, "/internal/invoices/generate", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate generate: expected 400, got %d", rec.Code)
	}
	if got := decodeErrorType(t, rec); got != "duplicate_invoice" {
		t.Fatalf("expected duplicate_invoice, got %q", got)
	}
}

func TestMarkInvoicePaidRecordsReference(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	tier := f.insertTier(t, "Pro", "49.00", 1000)
	customer := f.insertCustomer(t, tier, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))

	rec := f.doAs("", http.MethodPost, "/internal/invoices/generate",
		fmt.Sprintf(`{"customer_id":%q}`, customer.ID.String()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var invoice invoicedomain.Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &invoice); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}

	rec = f.doAs(customer.ID.String(), http.MethodPut,
		"/billing/invoices/"+invoice.ID.String()+"/mark-paid",
		`{"external_payment_ref":"ch_123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark paid: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var paid invoicedomain.Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &paid); err != nil {
		t.Fatalf("decode paid invoice: %v", err)
	}
	if paid.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected PAID, got %s", paid.Status)
	}
	if paid.ExternalPaymentRef == nil || *paid.ExternalPaymentRef != "ch_123" {
		t.Fatalf("expected payment ref recorded, got %v", paid.ExternalPaymentRef)
	}
}

func TestAnalyticsRejectsUnknownBucket(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	tier := f.insertTier(t, "Pro", "49.00", 1000)
	customer := f.insertCustomer(t, tier, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))

	rec := f.doAs(customer.ID.String(), http.MethodGet, "/analytics/trends?bucket=fortnight", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyticsCountHonorsWindow(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	tier := f.insertTier(t, "Pro", "49.00", 1000)
	customer := f.insertCustomer(t, tier, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))
	f.insertUsage(t, customer.ID, 4, time.Date(2026, time.March, 18, 10, 0, 0, 0, time.UTC))
	f.insertUsage(t, customer.ID, 7, time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC))

	rec := f.doAs(customer.ID.String(), http.MethodGet,
		"/analytics/count?from=2026-03-17&to=2026-03-19", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if body.Count != 4 {
		t.Fatalf("expected 4, got %d", body.Count)
	}
}

func TestAdminSurfaceIsGuarded(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)

	req := httptest.NewRequest(http.MethodPost, "/admin/tiers",
		strings.NewReader(`{"name":"Pro","price_monthly":"49.00","daily_quota":1000}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing admin key: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/tiers",
		strings.NewReader(`{"name":"Pro","price_monthly":"49.00","daily_quota":1000}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAdminKey, "admin-secret")
	rec = httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var tier tierdomain.Tier
	if err := json.Unmarshal(rec.Body.Bytes(), &tier); err != nil {
		t.Fatalf("decode tier: %v", err)
	}
	if tier.Name != "Pro" || tier.DailyQuota != 1000 {
		t.Fatalf("unexpected tier: %+v", tier)
	}
}

func TestInvoicePDFDownloads(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	f := setupBilling(t, now)
	tier := f.insertTier(t, "Pro", "49.00", 1000)
	customer := f.insertCustomer(t, tier, time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC))

	rec := f.doAs("", http.MethodPost, "/internal/invoices/generate",
		fmt.Sprintf(`{"customer_id":%q}`, customer.ID.String()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var invoice invoicedomain.Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &invoice); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}

	rec = f.doAs(customer.ID.String(), http.MethodGet,
		"/billing/invoices/"+invoice.ID.String()+"/pdf", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), invoice.Number) {
		t.Fatal("expected invoice number in the download filename")
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected a non-empty document")
	}
}
