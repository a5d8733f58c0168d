// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/pkg/mission"
)

// describeEvent renders a device event as one log line.
func describeEvent(e device.Event) string {
	switch e.Kind {
	case device.EventMotion:
		r := e.Motion
		switch r.Type {
		case mission.MotionQuaternion:
			q := r.Quaternion
			return fmt.Sprintf("%s t=%d w=%.4f x=%.4f y=%.4f z=%.4f", e.Name(), e.Timestamp, q.W, q.X, q.Y, q.Z)
		case mission.MotionRotationRate:
			return fmt.Sprintf("%s t=%d x=%.3f y=%.3f z=%.3f", e.Name(), e.Timestamp, r.Euler.X, r.Euler.Y, r.Euler.Z)
		}
		return fmt.Sprintf("%s t=%d x=%.3f y=%.3f z=%.3f", e.Name(), e.Timestamp, r.Vector.X, r.Vector.Y, r.Vector.Z)

	case device.EventEuler:
		r := e.Motion
		return fmt.Sprintf("%s t=%d (%.1f, %.1f, %.1f) deg", e.Name(), e.Timestamp,
			degrees(r.Euler.X), degrees(r.Euler.Y), degrees(r.Euler.Z))

	case device.EventPressure, device.EventMass, device.EventCenterOfMass, device.EventHeelToToe:
		p := e.Pressure
		return fmt.Sprintf("%s t=%d mass=%.3f com=(%.3f, %.3f) heelToToe=%.3f", e.Name(), e.Timestamp,
			p.Mass, p.CenterOfMass.X, p.CenterOfMass.Y, p.HeelToToe)

	case device.EventFileTransferProgress, device.EventFirmwareUpdateProgress:
		return fmt.Sprintf("%s %.0f%%", e.Name(), e.Progress*100)

	case device.EventFileTransferComplete:
		if e.File != nil {
			return fmt.Sprintf("%s %s (%d bytes)", e.Name(), e.File.Path, len(e.File.Data))
		}

	case device.EventFileTransferFailed, device.EventFirmwareUpdateFailed, device.EventDecodeError:
		return fmt.Sprintf("%s: %v", e.Name(), e.Err)
	}

	if e.Message != nil {
		if _, ok := e.Message.(mission.SensorDataUpdate); !ok {
			return strings.TrimSpace(mission.FormatMessage(e.Message))
		}
	}
	return e.Name()
}

// isTelemetry reports events that arrive at sensor rate.
func isTelemetry(k device.EventKind) bool {
	switch k {
	case device.EventMotion, device.EventEuler, device.EventPressure, device.EventMass,
		device.EventCenterOfMass, device.EventHeelToToe, device.EventWeight,
		device.EventFileTransferProgress, device.EventFirmwareUpdateProgress:
		return true
	}
	return false
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	seconds := uint64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	add := func(n uint64, unit string) {
		if n == 1 {
			parts = append(parts, "1 "+unit)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
		}
	}
	if days > 0 {
		add(days, "day")
	}
	if hours > 0 {
		add(hours, "hour")
	}
	if minutes > 0 {
		add(minutes, "minute")
	}
	if seconds > 0 || len(parts) == 0 {
		add(seconds, "second")
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
