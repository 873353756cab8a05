// The gateway binary is the data plane: API key auth, rate limiting, usage
// capture, and upstream proxying. It shares the database and Redis with the
// billing plane but never serves billing questions itself.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/internal/apikey"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/config"
	"github.com/metergate/metergate/internal/customer"
	"github.com/metergate/metergate/internal/developer"
	"github.com/metergate/metergate/internal/observability"
	"github.com/metergate/metergate/internal/proxy"
	"github.com/metergate/metergate/internal/ratelimit"
	"github.com/metergate/metergate/internal/server"
	"github.com/metergate/metergate/internal/tier"
	"github.com/metergate/metergate/internal/usage"
	"github.com/metergate/metergate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	fx.New(options()...).Run()
}

func options() []fx.Option {
	return []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		apikey.Module,
		customer.Module,
		tier.Module,
		developer.Module,
		usage.Module,
		ratelimit.Module,
		proxy.Module,

		server.GatewayModule,
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
