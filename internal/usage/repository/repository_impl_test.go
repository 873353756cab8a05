package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	"gorm.io/gorm"
)

func setupUsageDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(&usagedomain.UsageRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return db, node
}

func makeRecord(node *snowflake.Node, customerID snowflake.ID, status int, ts time.Time) usagedomain.UsageRecord {
	return usagedomain.UsageRecord{
		ID:             node.Generate(),
		CustomerID:     customerID,
		Endpoint:       "/get",
		Method:         "GET",
		StatusCode:     status,
		ResponseTimeMs: 12,
		Timestamp:      ts,
		CreatedAt:      ts,
	}
}

func TestBulkInsertSkipsDuplicates(t *testing.T) {
	db, node := setupUsageDB(t)
	repo := Provide()
	ctx := context.Background()

	customer := node.Generate()
	now := time.Now().UTC()
	batch := []usagedomain.UsageRecord{
		makeRecord(node, customer, 200, now),
		makeRecord(node, customer, 200, now),
		makeRecord(node, customer, 500, now),
	}

	inserted, err := repo.BulkInsert(ctx, db, batch)
	if err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("expected 3 inserted, got %d", inserted)
	}

	// Replaying the same batch, as a drain retry would, inserts nothing.
	inserted, err = repo.BulkInsert(ctx, db, batch)
	if err != nil {
		t.Fatalf("replay insert: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected 0 inserted on replay, got %d", inserted)
	}

	count, err := repo.CountInRange(ctx, db, customer, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}
}

func TestCountInRangeIsHalfOpen(t *testing.T) {
	db, node := setupUsageDB(t)
	repo := Provide()
	ctx := context.Background()

	customer := node.Generate()
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	records := []usagedomain.UsageRecord{
		makeRecord(node, customer, 200, start),                      // inclusive start
		makeRecord(node, customer, 200, end.Add(-time.Second)),      // inside
		makeRecord(node, customer, 200, end),                        // exclusive end
		makeRecord(node, customer, 200, start.Add(-time.Second)),    // before
		makeRecord(node, node.Generate(), 200, start.Add(time.Hour)), // other customer
	}
	if _, err := repo.BulkInsert(ctx, db, records); err != nil {
		t.Fatalf("insert: %v", err)
	}

	count, err := repo.CountInRange(ctx, db, customer, start, end)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 in [start, end), got %d", count)
	}
}

func TestStatsByCustomer(t *testing.T) {
	db, node := setupUsageDB(t)
	repo := Provide()
	ctx := context.Background()

	heavy := node.Generate()
	light := node.Generate()
	now := time.Now().UTC().Truncate(time.Second)

	var batch []usagedomain.UsageRecord
	for i := 0; i < 5; i++ {
		batch = append(batch, makeRecord(node, heavy, 200, now.Add(time.Duration(i)*time.Second)))
	}
	batch = append(batch, makeRecord(node, heavy, 502, now.Add(10*time.Second)))
	batch = append(batch, makeRecord(node, light, 200, now))

	if _, err := repo.BulkInsert(ctx, db, batch); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stats, err := repo.StatsByCustomer(ctx, db)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(stats))
	}
	if stats[0].CustomerID != heavy {
		t.Fatalf("expected heaviest customer first")
	}
	if stats[0].TotalRequests != 6 || stats[0].ErrorRequests != 1 {
		t.Fatalf("unexpected heavy stats: %+v", stats[0])
	}
	if stats[0].LastSeen == nil || !stats[0].LastSeen.Equal(now.Add(10*time.Second)) {
		t.Fatalf("unexpected last seen: %v", stats[0].LastSeen)
	}
}
