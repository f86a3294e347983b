package runlog

import (
	"fmt"
	"time"
)

// Config controls how completed runs are buffered before being written
type Config struct {
	// Maximum runs held in memory before Buffer starts rejecting
	MaxBufferedRuns int `toml:"max_buffered_runs"`

	// Write channel buffer size
	ChannelSize int `toml:"channel_size"`

	// A flush happens when either threshold is reached
	FlushThreshold int           `toml:"flush_threshold"`
	FlushInterval  time.Duration `toml:"flush_interval"`

	// Per-write timeout
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// DefaultConfig suits a handful of jobs running a few times a day
func DefaultConfig() Config {
	return Config{
		MaxBufferedRuns: 1000,
		ChannelSize:     64,
		FlushThreshold:  16,
		FlushInterval:   5 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxBufferedRuns <= 0 {
		return fmt.Errorf("max_buffered_runs must be positive, got %d", c.MaxBufferedRuns)
	}
	if c.ChannelSize <= 0 {
		return fmt.Errorf("channel_size must be positive, got %d", c.ChannelSize)
	}
	if c.FlushThreshold <= 0 {
		return fmt.Errorf("flush_threshold must be positive, got %d", c.FlushThreshold)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %v", c.FlushInterval)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", c.WriteTimeout)
	}
	return nil
}
