package vm

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/t16sim/emu"
	"github.com/sarchlab/t16sim/timing/pipeline"
	"github.com/sarchlab/t16sim/trace"
)

// Config holds the tunables of a tracing VM.
type Config struct {
	// HotThreshold is the retirement count a jump target must exceed
	// before a trace is recorded from it. Default: 2.
	HotThreshold uint64 `json:"hot_threshold"`

	// MaxTraceLength limits the instructions in one trace, markers
	// excluded. Longer recordings are abandoned. Default: 1024.
	MaxTraceLength int `json:"max_trace_length"`

	// TraceCacheSets and TraceCacheWays give the trace cache geometry.
	// Default: 64 sets, 4 ways.
	TraceCacheSets int `json:"trace_cache_sets"`
	TraceCacheWays int `json:"trace_cache_ways"`

	// AllowsRunningTraces enables replay. When false the VM still profiles
	// and records but always interprets. Default: true.
	AllowsRunningTraces bool `json:"allows_running_traces"`

	// CheckHazards wraps the hazard unit in a checker that panics on an
	// illegal combination of resolutions. Default: false.
	CheckHazards bool `json:"check_hazards"`

	// ResetCycles is the length of the reset sequence. Default: 100.
	ResetCycles int `json:"reset_cycles"`

	// IO is the memory-mapped port assignment.
	IO emu.IOConfig `json:"io"`
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() *Config {
	cacheConfig := trace.DefaultCacheConfig()
	return &Config{
		HotThreshold:        trace.DefaultHotThreshold,
		MaxTraceLength:      trace.DefaultMaxLength,
		TraceCacheSets:      cacheConfig.Sets,
		TraceCacheWays:      cacheConfig.Ways,
		AllowsRunningTraces: true,
		ResetCycles:         pipeline.ResetCycles,
		IO:                  emu.DefaultIOConfig(),
	}
}

// LoadConfig loads a Config from a JSON file. Fields missing from the file
// keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vm config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse vm config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize vm config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write vm config file: %w", err)
	}

	return nil
}

// Validate checks that the values can build a VM.
func (c *Config) Validate() error {
	if c.MaxTraceLength <= 0 {
		return fmt.Errorf("max_trace_length must be > 0")
	}
	if err := c.CacheConfig().Validate(); err != nil {
		return err
	}
	if c.ResetCycles < 0 {
		return fmt.Errorf("reset_cycles must be >= 0")
	}
	if !c.IO.Distinct() {
		return fmt.Errorf("io ports must be distinct")
	}
	return nil
}

// CacheConfig returns the trace cache geometry.
func (c *Config) CacheConfig() trace.CacheConfig {
	return trace.CacheConfig{
		Sets: c.TraceCacheSets,
		Ways: c.TraceCacheWays,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
