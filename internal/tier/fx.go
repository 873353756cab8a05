package tier

import (
	"github.com/metergate/metergate/internal/tier/repository"
	"github.com/metergate/metergate/internal/tier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
