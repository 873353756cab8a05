package scheduler

import (
	"time"
)

// Config controls scheduler cadence. Hours are wall-clock hours in the
// business time zone.
type Config struct {
	TickInterval  time.Duration
	JobTimeout    time.Duration
	CloseHour     int
	OverdueHour   int
	LookaheadDays int
	EnabledJobs   []string
}

func DefaultConfig() Config {
	return Config{
		TickInterval:  10 * time.Second,
		JobTimeout:    5 * time.Minute,
		CloseHour:     2,
		OverdueHour:   3,
		LookaheadDays: 7,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.CloseHour <= 0 {
		c.CloseHour = defaults.CloseHour
	}
	if c.OverdueHour <= 0 {
		c.OverdueHour = defaults.OverdueHour
	}
	if c.LookaheadDays <= 0 {
		c.LookaheadDays = defaults.LookaheadDays
	}
	return c
}
