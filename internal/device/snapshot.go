// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"github.com/Thermoquad/gait/pkg/mission"
)

// Snapshot is a point in time copy of a device's state.
type Snapshot struct {
	Label           string                            `json:"label" cbor:"label"`
	Connected       bool                              `json:"connected" cbor:"connected"`
	Generation      string                            `json:"generation" cbor:"generation"`
	Type            string                            `json:"type" cbor:"type"`
	Name            string                            `json:"name,omitempty" cbor:"name,omitempty"`
	FirmwareVersion string                            `json:"firmwareVersion,omitempty" cbor:"firmwareVersion,omitempty"`
	BatteryLevel    *uint8                            `json:"batteryLevel,omitempty" cbor:"batteryLevel,omitempty"`
	Calibration     *mission.MotionCalibration        `json:"calibration,omitempty" cbor:"calibration,omitempty"`
	Configurations  *mission.SensorDataConfigurations `json:"sensorDataConfigurations,omitempty" cbor:"sensorDataConfigurations,omitempty"`
	Motion          mission.Motion                    `json:"motion" cbor:"motion"`
	Pressure        *mission.Pressure                 `json:"pressure,omitempty" cbor:"pressure,omitempty"`
	Weight          float32                           `json:"weight" cbor:"weight"`
	Transfer        string                            `json:"transfer" cbor:"transfer"`
	Stats           StatsSnapshot                     `json:"stats" cbor:"stats"`
}

// StatsSnapshot is the subset of frame statistics exposed to clients.
type StatsSnapshot struct {
	Frames       uint64  `json:"frames" cbor:"frames"`
	Bytes        uint64  `json:"bytes" cbor:"bytes"`
	Messages     uint64  `json:"messages" cbor:"messages"`
	DecodeErrors uint64  `json:"decodeErrors" cbor:"decodeErrors"`
	FrameRate    float64 `json:"frameRate" cbor:"frameRate"`
	ErrorRate    float64 `json:"errorRate" cbor:"errorRate"`
}

// Snapshot copies the current state.
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.CalculateRates()
	s := Snapshot{
		Label:      d.opts.Label,
		Connected:  d.connected && d.link != nil && d.link.Connected(),
		Generation: d.opts.Generation.String(),
		Type:       d.parser.Type().String(),
		Motion:     d.motion,
		Weight:     d.weight,
		Transfer:   TransferIdle.String(),
		Stats: StatsSnapshot{
			Frames:       d.stats.TotalFrames,
			Bytes:        d.stats.TotalBytes,
			Messages:     d.stats.TotalMessages,
			DecodeErrors: d.stats.DecodeErrors,
			FrameRate:    d.stats.FrameRate,
			ErrorRate:    d.stats.ErrorRate,
		},
	}
	if d.cache.name != nil {
		s.Name = *d.cache.name
	}
	if d.cache.firmware != nil {
		s.FirmwareVersion = *d.cache.firmware
	}
	if d.cache.battery != nil {
		v := *d.cache.battery
		s.BatteryLevel = &v
	}
	if d.calibration != nil {
		c := *d.calibration
		s.Calibration = &c
	}
	if d.cache.configurations != nil {
		c := *d.cache.configurations
		s.Configurations = &c
	}
	if d.parser.Type().IsInsole() {
		p := d.pressure
		s.Pressure = &p
	}
	if d.transfer != nil {
		s.Transfer = d.transfer.state.String()
	}
	return s
}
