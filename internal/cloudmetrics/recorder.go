package cloudmetrics

import (
	"strings"
	"sync"
)

// Recorder feeds the accounting series. The default recorder is a no-op so
// self-hosted installs without cloud metrics can call the package-level
// helpers unconditionally.
type Recorder interface {
	RecordUsageDrained(customerID string, count int)
	RecordInvoiceGenerated(customerID string)
	RecordEngineError(customerID, operation string)
	UpdateActiveCustomers(count int)
}

type recorder struct {
	metrics *metrics
}

type noopRecorder struct{}

func (noopRecorder) RecordUsageDrained(string, int)   {}
func (noopRecorder) RecordInvoiceGenerated(string)    {}
func (noopRecorder) RecordEngineError(string, string) {}
func (noopRecorder) UpdateActiveCustomers(int)        {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

// RecordUsageDrained counts usage records persisted for a customer.
func RecordUsageDrained(customerID string, count int) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordUsageDrained(customerID, count)
}

// RecordInvoiceGenerated counts an invoice generated for a customer.
func RecordInvoiceGenerated(customerID string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordInvoiceGenerated(customerID)
}

// RecordEngineError counts a billing engine failure for an operation such as
// "usage.drain" or "invoice.generate".
func RecordEngineError(customerID, operation string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordEngineError(customerID, operation)
}

// UpdateActiveCustomers sets the active customer gauge.
func UpdateActiveCustomers(count int) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.UpdateActiveCustomers(count)
}

func (r *recorder) RecordUsageDrained(customerID string, count int) {
	if r == nil || r.metrics == nil || count <= 0 {
		return
	}
	r.metrics.usageDrained.WithLabelValues(normalizeLabel(customerID)).Add(float64(count))
}

func (r *recorder) RecordInvoiceGenerated(customerID string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.invoicesGenerated.WithLabelValues(normalizeLabel(customerID)).Inc()
}

func (r *recorder) RecordEngineError(customerID, operation string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.engineErrors.WithLabelValues(normalizeLabel(customerID), normalizeLabel(operation)).Inc()
}

func (r *recorder) UpdateActiveCustomers(count int) {
	if r == nil || r.metrics == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	r.metrics.activeCustomers.Set(float64(count))
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
