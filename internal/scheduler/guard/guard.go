// Package guard holds pure validation for scheduler job configuration.
package guard

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrUnknownJob        = errors.New("unknown_job")
	ErrInvalidDailyHour  = errors.New("invalid_daily_hour")
	ErrInvalidTick       = errors.New("invalid_tick_interval")
	ErrInvalidJobTimeout = errors.New("invalid_job_timeout")
	ErrInvalidLookahead  = errors.New("invalid_lookahead_days")
)

// EnsureJobKnown rejects enabled-job entries that name no registered job.
func EnsureJobKnown(name string, known []string) error {
	for _, candidate := range known {
		if strings.EqualFold(strings.TrimSpace(name), candidate) {
			return nil
		}
	}
	return ErrUnknownJob
}

func EnsureDailyHour(hour int) error {
	if hour < 0 || hour > 23 {
		return ErrInvalidDailyHour
	}
	return nil
}

func EnsureTick(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidTick
	}
	return nil
}

func EnsureJobTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return ErrInvalidJobTimeout
	}
	return nil
}

// EnsureLookahead bounds the monthly run's closing window. Zero means only
// periods that already ended; a month of lookahead is the sane ceiling.
func EnsureLookahead(days int) error {
	if days < 0 || days > 31 {
		return ErrInvalidLookahead
	}
	return nil
}
