// Package buffer is the write-behind side of usage capture: every proxied
// request is pushed to Redis lists and a periodic drain moves the backlog
// into the usage_records table.
package buffer

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/internal/config"
	obsmetrics "github.com/metergate/metergate/internal/observability/metrics"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	globalBufferKey         = "usage:buffer:global"
	customerBufferKeyPrefix = "usage:buffer:customer:"
)

type Params struct {
	fx.In

	Redis   *redis.Client
	Log     *zap.Logger
	GenID   *snowflake.Node
	Runtime *config.RuntimeConfigHolder
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Buffer absorbs one write per admitted request without blocking the caller.
// Both lists are newest-first (LPUSH) and capped by LTRIM; once a cap is
// reached the oldest undrained entries fall off silently.
type Buffer struct {
	redis   *redis.Client
	log     *zap.Logger
	genID   *snowflake.Node
	runtime *config.RuntimeConfigHolder
	metrics *obsmetrics.Metrics
}

func New(p Params) *Buffer {
	return &Buffer{
		redis:   p.Redis,
		log:     p.Log.Named("usage.buffer"),
		genID:   p.GenID,
		runtime: p.Runtime,
		metrics: p.Metrics,
	}
}

// Enqueue assigns the record its ID and pushes it to the global and
// per-customer lists. Failures are logged and swallowed; usage capture never
// fails a request.
func (b *Buffer) Enqueue(ctx context.Context, record usagedomain.UsageRecord) {
	if b == nil || b.redis == nil {
		return
	}
	if record.ID == 0 {
		record.ID = b.genID.Generate()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		b.log.Warn("usage record marshal failed", zap.Error(err))
		return
	}

	cfg := b.runtime.Get()
	pipe := b.redis.Pipeline()
	pipe.LPush(ctx, globalBufferKey, payload)
	pipe.LTrim(ctx, globalBufferKey, 0, cfg.GlobalBufferCap-1)
	customerKey := customerBufferKeyPrefix + record.CustomerID.String()
	pipe.LPush(ctx, customerKey, payload)
	pipe.LTrim(ctx, customerKey, 0, cfg.CustomerBufferCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Warn("usage buffer write failed",
			zap.Error(err),
			zap.String("customer_id", record.CustomerID.String()),
		)
		return
	}
	b.metrics.RecordUsageBuffered(ctx)
}

// Recent returns the newest buffered entries without consuming them.
func (b *Buffer) Recent(ctx context.Context, limit int) ([]usagedomain.UsageRecord, error) {
	return b.recent(ctx, globalBufferKey, limit)
}

// RecentForCustomer returns the newest buffered entries for one customer.
func (b *Buffer) RecentForCustomer(ctx context.Context, customerID string, limit int) ([]usagedomain.UsageRecord, error) {
	return b.recent(ctx, customerBufferKeyPrefix+customerID, limit)
}

// Len reports the global backlog depth.
func (b *Buffer) Len(ctx context.Context) (int64, error) {
	if b == nil || b.redis == nil {
		return 0, nil
	}
	return b.redis.LLen(ctx, globalBufferKey).Result()
}

func (b *Buffer) recent(ctx context.Context, key string, limit int) ([]usagedomain.UsageRecord, error) {
	if b == nil || b.redis == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	entries, err := b.redis.LRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	records, skipped := decodeEntries(entries)
	if skipped > 0 {
		b.log.Warn("unreadable usage buffer entries skipped",
			zap.Int("skipped", skipped),
			zap.String("key", key),
		)
	}
	return records, nil
}

// decodeEntries parses buffered payloads, dropping anything unreadable.
// Malformed entries are counted, never fatal: one bad write must not wedge
// the drain.
func decodeEntries(entries []string) ([]usagedomain.UsageRecord, int) {
	records := make([]usagedomain.UsageRecord, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		var record usagedomain.UsageRecord
		if err := json.Unmarshal([]byte(entry), &record); err != nil || record.ID == 0 || record.CustomerID == 0 {
			skipped++
			continue
		}
		records = append(records, record)
	}
	return records, skipped
}
