// The billing binary is the control plane: periods, invoices, pricing,
// analytics, the operator CRUD surface, and the background jobs that close
// periods and drain the usage buffer.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/internal/analytics"
	"github.com/metergate/metergate/internal/apikey"
	"github.com/metergate/metergate/internal/billingperiod"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/cloudmetrics"
	"github.com/metergate/metergate/internal/config"
	"github.com/metergate/metergate/internal/customer"
	"github.com/metergate/metergate/internal/developer"
	"github.com/metergate/metergate/internal/invoice"
	"github.com/metergate/metergate/internal/migration"
	"github.com/metergate/metergate/internal/observability"
	"github.com/metergate/metergate/internal/pricing"
	"github.com/metergate/metergate/internal/ratelimit"
	"github.com/metergate/metergate/internal/scheduler"
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
		cloudmetrics.Module,
		migration.Module,

		apikey.Module,
		customer.Module,
		tier.Module,
		developer.Module,
		usage.Module,
		billingperiod.Module,
		invoice.Module,
		pricing.Module,
		analytics.Module,

		// The scheduler's drain job takes the Redis lock through the
		// rate-limit package's Locker, so the billing binary needs the
		// module even though it never serves rate-limited traffic.
		ratelimit.Module,
		scheduler.Module,
		server.BillingModule,
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
