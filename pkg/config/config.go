// Package config loads the handful of values that are legitimately
// file-driven in a long-running fieldbusd process: the multicast group
// override, logging level/format, control-loop rate, kinematic chassis
// constants, goal-servo velocity caps, and the motor gear ratio. Motor CAN
// node ids are not configurable here; control.New fixes them. It does not
// reintroduce "configuration
// file loading" as a bus/control-loop concern — it only loads the numbers
// those components already take as constructor parameters.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fieldctl/fieldbus/pkg/control"
)

// Config is the top-level shape of a fieldbusd YAML configuration file.
// Every field is optional; the zero value of each section falls back to
// the corresponding package's own default.
type Config struct {
	Bus struct {
		Name          string `yaml:"name"`
		MulticastAddr string `yaml:"multicast_addr"`
	} `yaml:"bus"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Control struct {
		RateHz        float64 `yaml:"rate_hz"`
		WheelRadius   float64 `yaml:"wheel_radius"`
		WheelBaseline float64 `yaml:"wheel_baseline"`
		GoalMaxV      float64 `yaml:"goal_max_v"`
		GoalMaxW      float64 `yaml:"goal_max_w"`
		GearRatio     float64 `yaml:"gear_ratio"`
	} `yaml:"control"`
}

// Load reads and parses a YAML configuration file at path. A missing file
// is returned as an error like any other read failure; callers that want an
// optional config file can detect it with errors.Is(err, os.ErrNotExist)
// and fall back to Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a Config whose every field is the zero value, so that
// ControlConfig and BusMulticastAddr fall back to the package defaults.
func Default() *Config {
	return &Config{}
}

// BusMulticastAddr returns the configured multicast override, or "" to let
// bus.New fall back to its own default.
func (c *Config) BusMulticastAddr() string {
	if c == nil {
		return ""
	}
	return c.Bus.MulticastAddr
}

// ControlConfig merges the configured control-loop/kinematic values onto
// control.DefaultConfig(), leaving any unset (zero-valued) field at its
// default.
func (c *Config) ControlConfig() control.Config {
	cfg := control.DefaultConfig()
	if c == nil {
		return cfg
	}
	if c.Control.RateHz != 0 {
		cfg.CommandRateHz = c.Control.RateHz
	}
	if c.Control.WheelRadius != 0 {
		cfg.Differential.WheelRadius = c.Control.WheelRadius
	}
	if c.Control.WheelBaseline != 0 {
		cfg.Differential.WheelBaseline = c.Control.WheelBaseline
	}
	if c.Control.GoalMaxV != 0 {
		cfg.GoalMaxV = c.Control.GoalMaxV
	}
	if c.Control.GoalMaxW != 0 {
		cfg.GoalMaxW = c.Control.GoalMaxW
	}
	if c.Control.GearRatio != 0 {
		cfg.GearRatio = c.Control.GearRatio
	}
	return cfg
}
