package customer

import (
	"github.com/metergate/metergate/internal/customer/repository"
	"github.com/metergate/metergate/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
