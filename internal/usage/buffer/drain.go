package buffer

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	"github.com/metergate/metergate/internal/cloudmetrics"
	"github.com/metergate/metergate/internal/config"
	obsmetrics "github.com/metergate/metergate/internal/observability/metrics"
	"github.com/metergate/metergate/internal/ratelimit"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	drainLockKey = "usage:drain:lock"
	drainLockTTL = 25 * time.Second
)

type DrainerParams struct {
	fx.In

	DB        *gorm.DB
	Redis     *redis.Client
	Log       *zap.Logger
	Runtime   *config.RuntimeConfigHolder
	Repo      usagedomain.Repository
	Locker    *ratelimit.Locker
	APIKeySvc apikeydomain.Service `optional:"true"`
	Metrics   *obsmetrics.Metrics  `optional:"true"`
}

// Drainer moves the oldest buffered usage records into the database. One
// batch per tick, tail first; the buffer is only trimmed after the insert
// commits, so a database outage leaves the batch in place for the next tick.
type Drainer struct {
	db        *gorm.DB
	redis     *redis.Client
	log       *zap.Logger
	runtime   *config.RuntimeConfigHolder
	repo      usagedomain.Repository
	locker    *ratelimit.Locker
	apiKeySvc apikeydomain.Service
	metrics   *obsmetrics.Metrics
}

func NewDrainer(p DrainerParams) *Drainer {
	return &Drainer{
		db:        p.DB,
		redis:     p.Redis,
		log:       p.Log.Named("usage.drain"),
		runtime:   p.Runtime,
		repo:      p.Repo,
		locker:    p.Locker,
		apiKeySvc: p.APIKeySvc,
		metrics:   p.Metrics,
	}
}

// DrainOnce consumes at most one batch from the tail of the global buffer.
// Returns the number of records made durable. The Redis lock keeps a second
// billing process from double-consuming the same tail.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	if d == nil || d.redis == nil {
		return 0, nil
	}

	token, acquired, err := d.locker.TryLock(ctx, drainLockKey, drainLockTTL)
	if err != nil {
		return 0, err
	}
	if !acquired {
		return 0, nil
	}
	defer func() {
		if err := d.locker.Release(ctx, drainLockKey, token); err != nil {
			d.log.Warn("drain lock release failed", zap.Error(err))
		}
	}()

	batchSize := d.runtime.Get().DrainBatchSize
	entries, err := d.redis.LRange(ctx, globalBufferKey, -int64(batchSize), -1).Result()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records, skipped := decodeEntries(entries)
	if skipped > 0 {
		d.log.Warn("malformed usage buffer entries dropped", zap.Int("skipped", skipped))
	}

	inserted, err := d.repo.BulkInsert(ctx, d.db, records)
	if err != nil {
		// Leave the tail in place; the next tick retries and BulkInsert
		// skips whatever already landed.
		return 0, err
	}

	if err := d.redis.LTrim(ctx, globalBufferKey, 0, -int64(len(entries))-1).Err(); err != nil {
		d.log.Warn("usage buffer trim failed", zap.Error(err))
	}

	d.metrics.RecordUsageDrained(ctx, int(inserted))
	perCustomer := make(map[snowflake.ID]int)
	for _, record := range records {
		perCustomer[record.CustomerID]++
	}
	for customerID, count := range perCustomer {
		cloudmetrics.RecordUsageDrained(customerID.String(), count)
	}
	d.touchKeys(ctx, records)

	d.log.Debug("usage batch drained",
		zap.Int("consumed", len(entries)),
		zap.Int64("inserted", inserted),
		zap.Int("skipped", skipped),
	)
	return int(inserted), nil
}

// touchKeys stamps last_used_at for every key seen in the batch. Best
// effort; the stamp is observability, not admission state.
func (d *Drainer) touchKeys(ctx context.Context, records []usagedomain.UsageRecord) {
	if d.apiKeySvc == nil {
		return
	}

	var latest time.Time
	seen := make(map[snowflake.ID]struct{})
	for _, record := range records {
		if record.APIKeyID == nil || *record.APIKeyID == 0 {
			continue
		}
		if record.Timestamp.After(latest) {
			latest = record.Timestamp
		}
		seen[*record.APIKeyID] = struct{}{}
	}
	if len(seen) == 0 {
		return
	}

	keyIDs := make([]snowflake.ID, 0, len(seen))
	for id := range seen {
		keyIDs = append(keyIDs, id)
	}
	if err := d.apiKeySvc.TouchLastUsed(ctx, keyIDs, latest); err != nil {
		d.log.Warn("api key last-used update failed", zap.Error(err))
	}
}
