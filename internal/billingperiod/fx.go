package billingperiod

import (
	"github.com/metergate/metergate/internal/billingperiod/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingperiod",
	fx.Provide(service.New),
)
