package scheduler

import (
	"time"

	"github.com/resumeforge/resumeforge/internal/config"
)

// Config controls sweep intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	EnabledJobs []string
	LockTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   100,
		JobTimeout:  30 * time.Second,
		LockTTL:     5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

// ProvideConfig maps the hot-reloadable lifecycle settings onto the sweep
// scheduler. RunInterval is fixed for the process lifetime; batch size and
// job timeout are re-read from the holder on every run.
func ProvideConfig(holder *config.LifecycleConfigHolder) Config {
	lifecycle := holder.Current()
	return Config{
		RunInterval: lifecycle.SweepInterval,
		BatchSize:   lifecycle.SweepBatchSize,
		JobTimeout:  lifecycle.JobTimeout,
	}.withDefaults()
}
