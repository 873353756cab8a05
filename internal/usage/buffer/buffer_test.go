package buffer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
)

func TestDecodeEntriesSkipsMalformed(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	good := usagedomain.UsageRecord{
		ID:         node.Generate(),
		CustomerID: node.Generate(),
		Endpoint:   "/get",
		Method:     "GET",
		StatusCode: 200,
		Timestamp:  time.Now().UTC(),
	}
	payload, err := json.Marshal(good)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	entries := []string{
		string(payload),
		"not json",
		`{"id":0,"customer_id":0}`, // decodes but carries no identity
		string(payload),
	}

	records, skipped := decodeEntries(entries)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if skipped != 2 {
		t.Fatalf("expected 2 skipped, got %d", skipped)
	}
	if records[0].ID != good.ID || records[0].Endpoint != "/get" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestDecodeEntriesEmpty(t *testing.T) {
	records, skipped := decodeEntries(nil)
	if len(records) != 0 || skipped != 0 {
		t.Fatalf("expected empty result, got %d records %d skipped", len(records), skipped)
	}
}
