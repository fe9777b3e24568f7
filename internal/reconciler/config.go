package reconciler

import (
	"time"

	"replicator/internal/config"
)

// Config holds the staleness policy and sweep schedule.
type Config struct {
	PendingMaxAge time.Duration // pending jobs older than this are stuck
	RunningMaxAge time.Duration // running jobs older than this are stuck
	SweepInterval time.Duration // how often the internal runner sweeps
}

// LoadConfigFromEnv loads reconciler configuration from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		PendingMaxAge: config.GetDurationEnv("PENDING_MAX_AGE", 1*time.Hour),
		RunningMaxAge: config.GetDurationEnv("RUNNING_MAX_AGE", 12*time.Hour),
		SweepInterval: config.GetDurationEnv("SWEEP_INTERVAL", 5*time.Minute),
	}.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.PendingMaxAge <= 0 {
		c.PendingMaxAge = 1 * time.Hour
	}
	if c.RunningMaxAge <= 0 {
		c.RunningMaxAge = 12 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	return c
}
