package config

import (
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LifecycleConfig tunes the subscription sweep and grace handling. It is
// loaded from lifecycle.yml when present so operators can adjust cycle
// processing without a rebuild.
type LifecycleConfig struct {
	SweepInterval  time.Duration `mapstructure:"sweepInterval"`
	SweepBatchSize int           `mapstructure:"sweepBatchSize"`
	GraceDays      int           `mapstructure:"graceDays"`
	JobTimeout     time.Duration `mapstructure:"jobTimeout"`
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		SweepInterval:  time.Minute,
		SweepBatchSize: 100,
		GraceDays:      7,
		JobTimeout:     30 * time.Second,
	}
}

type LifecycleConfigHolder struct {
	current atomic.Value // holds LifecycleConfig
}

func NewLifecycleConfigHolder() (*LifecycleConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("lifecycle")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/resumeforge/config")
	v.AddConfigPath("/etc/resumeforge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RESUMEFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLifecycleConfig()
	v.SetDefault("lifecycle.sweepInterval", defaults.SweepInterval)
	v.SetDefault("lifecycle.sweepBatchSize", defaults.SweepBatchSize)
	v.SetDefault("lifecycle.graceDays", defaults.GraceDays)
	v.SetDefault("lifecycle.jobTimeout", defaults.JobTimeout)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	holder := &LifecycleConfigHolder{}
	holder.store(unmarshalLifecycle(v))

	if fileFound {
		v.OnConfigChange(func(_ fsnotify.Event) {
			holder.store(unmarshalLifecycle(v))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *LifecycleConfigHolder) Current() LifecycleConfig {
	if h == nil {
		return DefaultLifecycleConfig()
	}
	if cfg, ok := h.current.Load().(LifecycleConfig); ok {
		return cfg
	}
	return DefaultLifecycleConfig()
}

func (h *LifecycleConfigHolder) store(cfg LifecycleConfig) {
	h.current.Store(cfg.withDefaults())
}

func (c LifecycleConfig) withDefaults() LifecycleConfig {
	defaults := DefaultLifecycleConfig()
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = defaults.SweepBatchSize
	}
	if c.GraceDays <= 0 {
		c.GraceDays = defaults.GraceDays
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func unmarshalLifecycle(v *viper.Viper) LifecycleConfig {
	var cfg LifecycleConfig
	if err := v.UnmarshalKey("lifecycle", &cfg); err != nil {
		log.Printf("lifecycle config unmarshal failed, using defaults: %v", err)
		return DefaultLifecycleConfig()
	}
	return cfg
}
