package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	proxyRequests     metric.Int64Counter
	usageBuffered     metric.Int64Counter
	usageDrained      metric.Int64Counter
	keyCacheHits      metric.Int64Counter
	keyCacheMisses    metric.Int64Counter
	rateLimitAllowed  metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
	invoicesGenerated metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "metergate"
	}
	meter := provider.Meter(name)

	proxyRequests, err := meter.Int64Counter("metergate_proxy_requests_total")
	if err != nil {
		return nil, err
	}
	usageBuffered, err := meter.Int64Counter("metergate_usage_buffered_total")
	if err != nil {
		return nil, err
	}
	usageDrained, err := meter.Int64Counter("metergate_usage_drained_total")
	if err != nil {
		return nil, err
	}
	keyCacheHits, err := meter.Int64Counter("metergate_key_cache_hits_total")
	if err != nil {
		return nil, err
	}
	keyCacheMisses, err := meter.Int64Counter("metergate_key_cache_misses_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("metergate_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("metergate_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}
	invoicesGenerated, err := meter.Int64Counter("metergate_invoices_generated_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		proxyRequests:     proxyRequests,
		usageBuffered:     usageBuffered,
		usageDrained:      usageDrained,
		keyCacheHits:      keyCacheHits,
		keyCacheMisses:    keyCacheMisses,
		rateLimitAllowed:  rateLimitAllowed,
		rateLimitDenied:   rateLimitDenied,
		invoicesGenerated: invoicesGenerated,
	}, nil
}

// RecordProxyRequest counts a completed proxied request.
func (m *Metrics) RecordProxyRequest(ctx context.Context, tier string, statusCode int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
		attribute.String("status_code", strconv.Itoa(statusCode)),
	)
	m.proxyRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUsageBuffered counts usage records accepted into the buffer.
func (m *Metrics) RecordUsageBuffered(ctx context.Context) {
	if m == nil {
		return
	}
	m.usageBuffered.Add(ctx, 1)
}

// RecordUsageDrained counts usage records persisted by the drain worker.
func (m *Metrics) RecordUsageDrained(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.usageDrained.Add(ctx, int64(count))
}

// RecordKeyCacheHit counts key resolutions served from Redis.
func (m *Metrics) RecordKeyCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.keyCacheHits.Add(ctx, 1)
}

// RecordKeyCacheMiss counts key resolutions that fell through to the database.
func (m *Metrics) RecordKeyCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.keyCacheMisses.Add(ctx, 1)
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("tier", strings.TrimSpace(tier)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, tier, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceGenerated increments invoice generation counts.
func (m *Metrics) RecordInvoiceGenerated(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.invoicesGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"tier":        {},
	"endpoint":    {},
	"status_code": {},
	"status":      {},
	"reason":      {},
	"window":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
