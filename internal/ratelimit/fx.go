package ratelimit

import (
	"github.com/metergate/metergate/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func provideLimiter(client *redis.Client, cfg config.Config) *Limiter {
	return NewLimiter(client, cfg.Location())
}

var Module = fx.Module("rate.limit",
	fx.Provide(provideLimiter),
	fx.Provide(NewLocker),
)
