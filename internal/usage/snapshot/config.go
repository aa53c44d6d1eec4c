package snapshot

import "time"

type Config struct {
	Interval   time.Duration
	RunTimeout time.Duration
	RowTimeout time.Duration
	BatchSize  int
}

func DefaultConfig() Config {
	return Config{
		Interval:   time.Hour,
		RunTimeout: 5 * time.Minute,
		RowTimeout: 5 * time.Second,
		BatchSize:  200,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.RowTimeout <= 0 {
		c.RowTimeout = defaults.RowTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
