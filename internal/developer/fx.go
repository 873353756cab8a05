package developer

import (
	"github.com/metergate/metergate/internal/developer/repository"
	"github.com/metergate/metergate/internal/developer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("developer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
