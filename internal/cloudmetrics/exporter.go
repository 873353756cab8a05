package cloudmetrics

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	exportInterval = 15 * time.Minute
	exportTimeout  = 5 * time.Second
)

// exporter refreshes the system gauges and pushes the registry on a fixed
// interval. Export failures log one warning per outage, not one per tick.
type exporter struct {
	pusher   Pusher
	registry *prometheus.Registry
	metrics  *metrics
	db       *gorm.DB
	logger   *zap.Logger

	stopCh    chan struct{}
	doneCh    chan struct{}
	errorOnce atomic.Bool
}

func newExporter(pusher Pusher, registry *prometheus.Registry, m *metrics, db *gorm.DB, logger *zap.Logger) *exporter {
	return &exporter{
		pusher:   pusher,
		registry: registry,
		metrics:  m,
		db:       db,
		logger:   logger,
	}
}

func (e *exporter) Start() {
	if e == nil || e.stopCh != nil {
		return
	}
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	go func() {
		defer close(e.doneCh)
		ticker := time.NewTicker(exportInterval)
		defer ticker.Stop()
		e.exportOnce()
		for {
			select {
			case <-ticker.C:
				e.exportOnce()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *exporter) Stop(ctx context.Context) error {
	if e == nil || e.stopCh == nil {
		return nil
	}
	close(e.stopCh)
	select {
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *exporter) exportOnce() {
	if e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	e.refreshSystemGauges(ctx)

	if err := e.pusher.Push(ctx, e.registry); err != nil {
		if e.errorOnce.CompareAndSwap(false, true) {
			e.logger.Warn("cloud metrics push failed", zap.Error(err))
		}
		return
	}
	e.errorOnce.Store(false)
}

func (e *exporter) refreshSystemGauges(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	e.metrics.memoryBytes.Set(float64(m.Sys))

	if e.db == nil {
		return
	}
	var count int64
	if err := e.db.WithContext(ctx).Table("customers").Where("is_active = ?", true).Count(&count).Error; err != nil {
		return
	}
	e.metrics.activeCustomers.Set(float64(count))
}
