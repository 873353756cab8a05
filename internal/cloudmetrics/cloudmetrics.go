package cloudmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are the accounting series pushed from self-hosted gateways to the
// hosted control plane. They live on a private registry so the push payload
// never includes the operational /metrics series.
type metrics struct {
	usageDrained      *prometheus.CounterVec
	invoicesGenerated *prometheus.CounterVec
	engineErrors      *prometheus.CounterVec
	activeCustomers   prometheus.Gauge
	memoryBytes       prometheus.Gauge
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		usageDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metergate_cloud_usage_records_total",
			Help: "Usage records persisted by the drain worker, per customer.",
		}, []string{"customer_id"}),
		invoicesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metergate_cloud_invoices_generated_total",
			Help: "Invoices generated, per customer.",
		}, []string{"customer_id"}),
		engineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metergate_cloud_engine_errors_total",
			Help: "Billing engine failures, per customer and operation.",
		}, []string{"customer_id", "operation"}),
		activeCustomers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metergate_cloud_active_customers",
			Help: "Customers currently marked active.",
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metergate_cloud_memory_bytes",
			Help: "Process memory obtained from the OS.",
		}),
	}

	registry.MustRegister(
		m.usageDrained,
		m.invoicesGenerated,
		m.engineErrors,
		m.activeCustomers,
		m.memoryBytes,
	)
	return m
}
