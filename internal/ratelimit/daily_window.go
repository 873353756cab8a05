package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "rate:"

// The window state is a hash {count, resetAt}. resetAt is RFC3339 UTC, which
// compares lexicographically, so the script can expire windows with a plain
// string compare and never needs to parse a timestamp. A stale window is
// reset lazily on the next request; the hash carries no TTL.
//
// The script replies {allowed, remaining, resetAt}. Remaining is counted
// against the pre-increment count: a customer admitted with 50 calls left
// sees remaining 50 on that response, not 49. A fresh window reports
// quota - 1 since the admitting request is already the first of the day.
const dailyWindowScript = `
local quota = tonumber(ARGV[1])
local now = ARGV[2]
local nextReset = ARGV[3]

local data = redis.call("HMGET", KEYS[1], "count", "resetAt")
local count = tonumber(data[1])
local resetAt = data[2]

if count == nil or resetAt == false or resetAt <= now then
  redis.call("HMSET", KEYS[1], "count", 1, "resetAt", nextReset)
  return {1, quota - 1, nextReset}
end

if count >= quota then
  return {0, 0, resetAt}
end

redis.call("HINCRBY", KEYS[1], "count", 1)
return {1, quota - count, resetAt}
`

// Result is one admission decision. Unlimited results carry no counters and
// produce no response headers.
type Result struct {
	Allowed   bool
	Unlimited bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Limiter enforces per-customer daily quotas in Redis. One EVALSHA per
// decision; concurrent requests for the same customer serialize inside
// Redis, so the count never races.
type Limiter struct {
	client *redis.Client
	script *redis.Script
	loc    *time.Location
}

func NewLimiter(client *redis.Client, loc *time.Location) *Limiter {
	if client == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Limiter{
		client: client,
		script: redis.NewScript(dailyWindowScript),
		loc:    loc,
	}
}

func (l *Limiter) Allow(ctx context.Context, customerID string, quota int64) (*Result, error) {
	if quota <= 0 {
		return &Result{Allowed: true, Unlimited: true}, nil
	}
	if l == nil || l.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("rate limiter customer id is empty")
	}

	now := time.Now()
	res, err := l.script.Run(
		ctx,
		l.client,
		[]string{rateKeyPrefix + customerID},
		quota,
		now.UTC().Format(time.RFC3339),
		nextMidnight(now, l.loc).Format(time.RFC3339),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 3 {
		return nil, errors.New("unexpected rate limit script reply")
	}

	allowed := toInt64(res[0]) == 1
	left := toInt64(res[1])
	if left < 0 {
		// The quota shrank mid-window (tier downgrade).
		left = 0
	}
	resetAt, err := parseResetAt(res[2])
	if err != nil {
		return nil, err
	}

	return &Result{
		Allowed:   allowed,
		Limit:     quota,
		Remaining: left,
		ResetAt:   resetAt,
	}, nil
}

// Status reads the current window without consuming a request. An absent or
// lapsed window reports the full quota against the coming midnight.
func (l *Limiter) Status(ctx context.Context, customerID string, quota int64) (*Result, error) {
	if quota <= 0 {
		return &Result{Allowed: true, Unlimited: true}, nil
	}
	if l == nil || l.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("rate limiter customer id is empty")
	}

	now := time.Now()
	fields, err := l.client.HMGet(ctx, rateKeyPrefix+customerID, "count", "resetAt").Result()
	if err != nil {
		return nil, err
	}

	count := int64(0)
	resetAt := nextMidnight(now, l.loc)
	if len(fields) == 2 && fields[0] != nil && fields[1] != nil {
		stored, err := parseResetAt(fields[1])
		if err == nil && stored.After(now.UTC()) {
			count = toInt64(fields[0])
			resetAt = stored
		}
	}

	return &Result{
		Allowed:   count < quota,
		Limit:     quota,
		Remaining: remaining(quota, count),
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the window so the next request starts a fresh day. Admin
// override for support escalations.
func (l *Limiter) Reset(ctx context.Context, customerID string) error {
	if l == nil || l.client == nil {
		return errors.New("rate limiter not configured")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return errors.New("rate limiter customer id is empty")
	}
	return l.client.Del(ctx, rateKeyPrefix+customerID).Err()
}

// nextMidnight is the start of the next calendar day in the business time
// zone, returned in UTC so stored values stay comparable.
func nextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc).UTC()
}

func remaining(quota, count int64) int64 {
	if count >= quota {
		return 0
	}
	return quota - count
}

func parseResetAt(value interface{}) (time.Time, error) {
	raw, ok := value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected resetAt value %T", value)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse resetAt: %w", err)
	}
	return ts.UTC(), nil
}

func toInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case string:
		var parsed int64
		_, err := fmt.Sscan(val, &parsed)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
