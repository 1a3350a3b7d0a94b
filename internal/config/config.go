// Package config loads kernel configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kernel configuration.
type Config struct {
	Cores     CoresConfig
	Scheduler SchedulerConfig
	Memory    MemoryConfig
	Logging   LogConfig
	Metrics   MetricsConfig
}

// CoresConfig holds core topology configuration.
type CoresConfig struct {
	Count int `envconfig:"CORES" default:"1"`
}

// SchedulerConfig holds scheduling configuration.
type SchedulerConfig struct {
	TimeSliceTicks uint32 `envconfig:"TIME_SLICE_TICKS" default:"1000"`
}

// MemoryConfig holds physical memory configuration.
type MemoryConfig struct {
	FramePoolPages int `envconfig:"FRAME_POOL_PAGES" default:"65536"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds metrics exposition configuration.
type MetricsConfig struct {
	Addr    string `envconfig:"METRICS_ADDR" default:"localhost:9090"`
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"false"`
}

// Load loads configuration from NUCLEUS_-prefixed environment variables.
//
// Each section is processed on its own so every key resolves flat under the
// prefix (NUCLEUS_CORES, NUCLEUS_LOG_LEVEL, ...) instead of nested under the
// section's field name.
func Load() (*Config, error) {
	var cfg Config
	sections := []any{
		&cfg.Cores, &cfg.Scheduler, &cfg.Memory, &cfg.Logging, &cfg.Metrics,
	}
	for _, section := range sections {
		if err := envconfig.Process("nucleus", section); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Cores: CoresConfig{
			Count: 1,
		},
		Scheduler: SchedulerConfig{
			TimeSliceTicks: 1000,
		},
		Memory: MemoryConfig{
			FramePoolPages: 65536,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Addr:    "localhost:9090",
			Enabled: false,
		},
	}
}

// Validate rejects configurations the kernel cannot boot with.
func (c *Config) Validate() error {
	if c.Cores.Count < 1 {
		return fmt.Errorf("invalid core count %d", c.Cores.Count)
	}
	if c.Scheduler.TimeSliceTicks == 0 {
		return fmt.Errorf("time slice must be at least one tick")
	}
	if c.Memory.FramePoolPages < 1 {
		return fmt.Errorf("invalid frame pool size %d", c.Memory.FramePoolPages)
	}
	return nil
}
