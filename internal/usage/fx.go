package usage

import (
	"github.com/metergate/metergate/internal/usage/buffer"
	"github.com/metergate/metergate/internal/usage/repository"
	"github.com/metergate/metergate/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage",
	fx.Provide(repository.Provide),
	fx.Provide(buffer.New),
	fx.Provide(buffer.NewDrainer),
	fx.Provide(service.New),
)
