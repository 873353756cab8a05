package cloudmetrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("cloudmetrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Invoke(Register),
)

var registerOnce sync.Once

// Register wires the accounting recorder and starts the push loop. When the
// pusher is nil (oss mode or metrics disabled) the recorder stays a no-op.
func Register(lc fx.Lifecycle, registry *prometheus.Registry, pusher Pusher, db *gorm.DB, logger *zap.Logger) {
	if pusher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registerOnce.Do(func() {
		m := newMetrics(registry)
		setRecorder(&recorder{metrics: m})

		exp := newExporter(pusher, registry, m, db, logger)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				logger.Info("starting cloud metrics exporter")
				exp.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return exp.Stop(ctx)
			},
		})
	})
}
