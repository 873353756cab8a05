package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNextMidnightInBusinessZone(t *testing.T) {
	utc := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)

	got := nextMidnight(utc, time.UTC)
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("utc midnight: got %v want %v", got, want)
	}

	// 22:30 UTC is 18:30 EDT, so the next business midnight is
	// 2026-03-15 00:00 EDT, which is 04:00 UTC.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	got = nextMidnight(utc, ny)
	want = time.Date(2026, 3, 15, 4, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ny midnight: got %v want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Fatalf("reset must be returned in UTC, got %v", got.Location())
	}
}

func TestNextMidnightRollsMonthAndYear(t *testing.T) {
	eve := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	got := nextMidnight(eve, time.UTC)
	want := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("year roll: got %v want %v", got, want)
	}
}

func TestResetAtComparesLexicographically(t *testing.T) {
	// The Lua script expires windows with a plain string compare, which is
	// only sound while stored values stay RFC3339 in UTC.
	earlier := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	later := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if !(earlier < later) {
		t.Fatalf("expected %q < %q", earlier, later)
	}

	parsed, err := parseResetAt(later)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("parse round trip: got %v", parsed)
	}
	if _, err := parseResetAt(int64(7)); err == nil {
		t.Fatal("expected error for non-string resetAt")
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	if got := remaining(100, 40); got != 60 {
		t.Fatalf("remaining: got %d", got)
	}
	if got := remaining(100, 100); got != 0 {
		t.Fatalf("at quota: got %d", got)
	}
	if got := remaining(100, 250); got != 0 {
		t.Fatalf("over quota: got %d", got)
	}
}

func TestUnlimitedQuotaSkipsRedis(t *testing.T) {
	// A nil limiter is usable for unlimited tiers because the quota check
	// happens before any Redis work.
	var l *Limiter
	res, err := l.Allow(context.Background(), "42", 0)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !res.Allowed || !res.Unlimited {
		t.Fatalf("expected unlimited pass, got %+v", res)
	}

	status, err := l.Status(context.Background(), "42", -5)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Unlimited {
		t.Fatalf("expected unlimited status, got %+v", status)
	}
}
