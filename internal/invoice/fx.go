package invoice

import (
	"github.com/metergate/metergate/internal/config"
	"github.com/metergate/metergate/internal/invoice/render"
	"github.com/metergate/metergate/internal/invoice/repository"
	"github.com/metergate/metergate/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(cfg config.Config) *render.Renderer {
		return render.NewRenderer(cfg.AppName)
	}),
)
