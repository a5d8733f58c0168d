// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/Thermoquad/gait/pkg/mission"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gait.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	is := is.New(t)

	path := writeConfig(t, `
devices:
  - name: left
    url: ws://192.168.1.20/ws
    sensors:
      pressure:
        pressureDoubleByte: 40
  - port: /dev/ttyACM0
    generation: bno055
    sensors:
      motion:
        quaternion: 20
reconnect:
  enabled: true
transfer:
  pollInterval: 250ms
`)

	cfg, err := Load(path)
	is.NoErr(err)
	is.Equal(len(cfg.Devices), 2)
	is.Equal(cfg.Devices[0].Generation, "bno085")
	is.Equal(cfg.Devices[1].Name, "device1")
	is.Equal(cfg.Devices[1].Baud, DefaultBaudRate)
	is.Equal(cfg.Reconnect.Delay, DefaultReconnectDelay)
	is.Equal(cfg.Transfer.PollInterval, 250*time.Millisecond)
	is.Equal(cfg.Status.Addr, DefaultStatusAddr)

	sensors, err := cfg.Devices[1].Sensors.SensorDataConfigurations()
	is.NoErr(err)
	is.Equal(sensors.Motion[mission.MotionQuaternion], 20)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "status:\n  addr: :9000\n"},
		{"no endpoint", "devices:\n  - name: a\n"},
		{"both endpoints", "devices:\n  - url: ws://a/ws\n    port: /dev/x\n"},
		{"bad scheme", "devices:\n  - url: http://a/ws\n"},
		{"duplicate names", "devices:\n  - name: a\n    url: ws://a/ws\n  - name: a\n    url: ws://b/ws\n"},
		{"bad generation", "generation: bno999\ndevices:\n  - url: ws://a/ws\n"},
		{"bad sensor", "devices:\n  - url: ws://a/ws\n    sensors:\n      motion:\n        heading: 20\n"},
		{"gateway without url", "gateway:\n  generation: bno080\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			_, err := Load(writeConfig(t, tt.body))
			is.True(errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestLoadUnknownField(t *testing.T) {
	is := is.New(t)
	_, err := Load(writeConfig(t, "devices:\n  - url: ws://a/ws\n    colour: red\n"))
	is.True(err != nil)
}

func TestLoadMissingFile(t *testing.T) {
	is := is.New(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	is.True(errors.Is(err, os.ErrNotExist))
}
