// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the YAML file used by `gait serve`.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/gait/internal/logging"
	"github.com/Thermoquad/gait/pkg/mission"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Defaults
const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultStatusAddr     = "127.0.0.1:8740"
	DefaultBaudRate       = 115200
)

// Config is the top level file layout.
type Config struct {
	Generation string          `yaml:"generation"`
	Devices    []DeviceConfig  `yaml:"devices"`
	Gateway    *GatewayConfig  `yaml:"gateway"`
	Auth       AuthConfig      `yaml:"auth"`
	Reconnect  ReconnectConfig `yaml:"reconnect"`
	Transfer   TransferConfig  `yaml:"transfer"`
	Status     StatusConfig    `yaml:"status"`
	Log        logging.Config  `yaml:"log"`
}

// DeviceConfig describes one directly connected mission.
type DeviceConfig struct {
	Name       string        `yaml:"name"`
	URL        string        `yaml:"url"`
	Port       string        `yaml:"port"`
	Baud       int           `yaml:"baud"`
	Generation string        `yaml:"generation"`
	Sensors    SensorsConfig `yaml:"sensors"`
}

// GatewayConfig describes a gateway multiplexing several missions.
type GatewayConfig struct {
	URL        string        `yaml:"url"`
	Generation string        `yaml:"generation"`
	Sensors    SensorsConfig `yaml:"sensors"`
}

// SensorsConfig maps sub-type names to delays in milliseconds.
type SensorsConfig struct {
	Motion   map[string]int `yaml:"motion"`
	Pressure map[string]int `yaml:"pressure"`
}

// AuthConfig holds the HTTP Basic user. The password comes from the environment.
type AuthConfig struct {
	Username      string `yaml:"username"`
	NoSSLVerify   bool   `yaml:"noSSLVerify"`
	PasswordEnvar string `yaml:"passwordEnv"`
}

// ReconnectConfig controls automatic reconnection.
type ReconnectConfig struct {
	Enabled bool          `yaml:"enabled"`
	Delay   time.Duration `yaml:"delay"`
}

// TransferConfig controls file transfer progress polling.
type TransferConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
}

// StatusConfig controls the status HTTP API.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a config with every default applied.
func Default() Config {
	return Config{
		Generation: "bno085",
		Auth:       AuthConfig{PasswordEnvar: "GAIT_PASSWORD"},
		Reconnect:  ReconnectConfig{Enabled: true, Delay: DefaultReconnectDelay},
		Transfer:   TransferConfig{PollInterval: DefaultPollInterval},
		Status:     StatusConfig{Addr: DefaultStatusAddr},
		Log:        logging.Runtime(),
	}
}

// Load reads path, applies defaults and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.Log = cfg.Log.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Generation == "" {
		c.Generation = "bno085"
	}
	if c.Reconnect.Delay <= 0 {
		c.Reconnect.Delay = DefaultReconnectDelay
	}
	if c.Transfer.PollInterval <= 0 {
		c.Transfer.PollInterval = DefaultPollInterval
	}
	if c.Status.Addr == "" {
		c.Status.Addr = DefaultStatusAddr
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Baud <= 0 {
			d.Baud = DefaultBaudRate
		}
		if d.Generation == "" {
			d.Generation = c.Generation
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("device%d", i)
		}
	}
	if c.Gateway != nil && c.Gateway.Generation == "" {
		c.Gateway.Generation = c.Generation
	}
}

// Validate reports the first problem found.
func (c Config) Validate() error {
	if len(c.Devices) == 0 && c.Gateway == nil {
		return fmt.Errorf("%w: no devices or gateway configured", ErrInvalidConfig)
	}
	if _, err := mission.ParseGeneration(c.Generation); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.URL == "" && d.Port == "" {
			return fmt.Errorf("%w: device %d (%s) needs url or port", ErrInvalidConfig, i, d.Name)
		}
		if d.URL != "" && d.Port != "" {
			return fmt.Errorf("%w: device %d (%s) sets both url and port", ErrInvalidConfig, i, d.Name)
		}
		if d.URL != "" && !strings.HasPrefix(d.URL, "ws://") && !strings.HasPrefix(d.URL, "wss://") {
			return fmt.Errorf("%w: device %s url %q must be ws:// or wss://", ErrInvalidConfig, d.Name, d.URL)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate device name %q", ErrInvalidConfig, d.Name)
		}
		seen[d.Name] = true
		if _, err := mission.ParseGeneration(d.Generation); err != nil {
			return fmt.Errorf("%w: device %s: %v", ErrInvalidConfig, d.Name, err)
		}
		if _, err := d.Sensors.SensorDataConfigurations(); err != nil {
			return fmt.Errorf("%w: device %s: %v", ErrInvalidConfig, d.Name, err)
		}
	}

	if g := c.Gateway; g != nil {
		if g.URL == "" {
			return fmt.Errorf("%w: gateway needs url", ErrInvalidConfig)
		}
		if _, err := mission.ParseGeneration(g.Generation); err != nil {
			return fmt.Errorf("%w: gateway: %v", ErrInvalidConfig, err)
		}
		if _, err := g.Sensors.SensorDataConfigurations(); err != nil {
			return fmt.Errorf("%w: gateway: %v", ErrInvalidConfig, err)
		}
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Empty reports whether no sub-type is configured.
func (s SensorsConfig) Empty() bool {
	return len(s.Motion) == 0 && len(s.Pressure) == 0
}

// SensorDataConfigurations converts the named delays to typed maps.
func (s SensorsConfig) SensorDataConfigurations() (mission.SensorDataConfigurations, error) {
	c := mission.SensorDataConfigurations{
		Motion:   make(map[mission.MotionDataType]int, len(s.Motion)),
		Pressure: make(map[mission.PressureDataType]int, len(s.Pressure)),
	}
	for name, delay := range s.Motion {
		t, err := mission.ParseMotionDataType(name)
		if err != nil {
			return c, err
		}
		c.Motion[t] = delay
	}
	for name, delay := range s.Pressure {
		t, err := mission.ParsePressureDataType(name)
		if err != nil {
			return c, err
		}
		c.Pressure[t] = delay
	}
	return c, nil
}
