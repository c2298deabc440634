// Package config holds the tunable parameters of the pipeline simulation.
//
// The hazard probabilities are illustrative rather than derived from a real
// microarchitecture; they are kept configurable so that a classroom can make
// stalls more or less frequent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HazardConfig holds the probabilities used by the hazard unit.
type HazardConfig struct {
	// RAWProbability is the chance of a RAW hazard when an instruction is
	// about to enter Execute while its dependency has not reached Writeback.
	// Default: 0.70.
	RAWProbability float64 `json:"raw_probability" yaml:"raw_probability" mapstructure:"raw_probability"`

	// StructuralProbability is the chance of a structural hazard on the
	// Execute to Memory transition of a dependent instruction.
	// Default: 0.30.
	StructuralProbability float64 `json:"structural_probability" yaml:"structural_probability" mapstructure:"structural_probability"`

	// ControlProbability is the chance of a control hazard for a dependent
	// branch or jump. Default: 0.50.
	ControlProbability float64 `json:"control_probability" yaml:"control_probability" mapstructure:"control_probability"`

	// BackgroundProbability is the chance of a hazard of a random kind for an
	// instruction without a resolvable dependency. Default: 0.15.
	BackgroundProbability float64 `json:"background_probability" yaml:"background_probability" mapstructure:"background_probability"`
}

// DefaultHazardConfig returns the probabilities of the reference visualizer.
func DefaultHazardConfig() *HazardConfig {
	return &HazardConfig{
		RAWProbability:        0.70,
		StructuralProbability: 0.30,
		ControlProbability:    0.50,
		BackgroundProbability: 0.15,
	}
}

// Validate checks that every probability lies in [0, 1].
func (c *HazardConfig) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"raw_probability", c.RAWProbability},
		{"structural_probability", c.StructuralProbability},
		{"control_probability", c.ControlProbability},
		{"background_probability", c.BackgroundProbability},
	}

	for _, check := range checks {
		if check.value < 0 || check.value > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", check.name, check.value)
		}
	}

	return nil
}

// Clone returns a copy of the HazardConfig.
func (c *HazardConfig) Clone() *HazardConfig {
	clone := *c
	return &clone
}

// Config holds everything needed to set up a simulation session.
type Config struct {
	Hazard HazardConfig `json:"hazard" yaml:"hazard" mapstructure:"hazard"`

	// BatchSize is the number of instructions generated at start, after a
	// reset, and whenever every instruction has completed. Default: 5.
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// DependencyProbability is the chance that a non-leading instruction of a
	// batch depends on an earlier one. Default: 1.
	DependencyProbability float64 `json:"dependency_probability" yaml:"dependency_probability" mapstructure:"dependency_probability"`

	// Seed seeds the random source. Zero picks a time-based seed.
	Seed int64 `json:"seed" yaml:"seed" mapstructure:"seed"`

	// TickInterval is the wall-clock time between automatic cycles.
	// Default: 1s.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval" mapstructure:"tick_interval"`
}

// DefaultConfig returns a Config with the reference visualizer's values.
func DefaultConfig() *Config {
	return &Config{
		Hazard:                *DefaultHazardConfig(),
		BatchSize:             5,
		DependencyProbability: 1,
		TickInterval:          time.Second,
	}
}

// Validate checks that the configuration can drive a simulation.
func (c *Config) Validate() error {
	if err := c.Hazard.Validate(); err != nil {
		return fmt.Errorf("invalid hazard config: %w", err)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0")
	}
	if c.DependencyProbability < 0 || c.DependencyProbability > 1 {
		return fmt.Errorf("dependency_probability must be within [0, 1], got %v",
			c.DependencyProbability)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("tick_interval must not be negative")
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// EffectiveSeed returns Seed, or a time-based seed when Seed is zero.
func (c *Config) EffectiveSeed() int64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return time.Now().UnixNano()
}

// SaveConfig writes a Config to a file. Files ending in .yaml or .yml are
// written as YAML, everything else as JSON.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
