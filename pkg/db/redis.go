package db

import (
	"context"
	"fmt"

	"github.com/metergate/metergate/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedis builds the fast-store client shared by the key cache, rate
// counters, usage buffers, and drain locks. An unreachable Redis at startup
// is logged but does not block boot; callers degrade per their own rules.
func NewRedis(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("redis unreachable at startup",
					zap.String("addr", opts.Addr),
					zap.Error(err),
				)
				return nil
			}
			logger.Info("redis connected", zap.String("addr", opts.Addr))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}
