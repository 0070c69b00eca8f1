package core

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

// Config holds runtime configuration for a bridge engine.
type Config struct {
	MemoryLimitMB  int    `toml:"memory_limit_mb"`  // per-VM-instance QuickJS heap limit, 0 = unlimited
	CollectEvery   int    `toml:"collect_every"`    // tracked allocations between due sweeps, 0 = manual only
	ForceGC        bool   `toml:"force_gc"`         // run runtime.GC() before a cadence sweep
	DrainAfterEval bool   `toml:"drain_after_eval"` // drain pending jobs after a successful evaluation
	Locale         string `toml:"locale"`           // default VM locale, "" = host environment
	Timezone       string `toml:"timezone"`         // default VM timezone, "" = host environment
	LogLevel       string `toml:"log_level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		MemoryLimitMB:  64,
		CollectEvery:   4096,
		DrainAfterEval: true,
		LogLevel:       "info",
	}
}

// LoadConfig reads a TOML file. Keys missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		debugf("config %s: ignoring unknown keys %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate rejects negative limits and unknown log levels.
func (c Config) Validate() error {
	if c.MemoryLimitMB < 0 {
		return fmt.Errorf("memory_limit_mb must be >= 0, got %d", c.MemoryLimitMB)
	}
	if c.CollectEvery < 0 {
		return fmt.Errorf("collect_every must be >= 0, got %d", c.CollectEvery)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}
