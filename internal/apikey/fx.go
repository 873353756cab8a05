package apikey

import (
	"github.com/metergate/metergate/internal/apikey/cache"
	"github.com/metergate/metergate/internal/apikey/repository"
	"github.com/metergate/metergate/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewResolver),
	fx.Provide(service.New),
)
