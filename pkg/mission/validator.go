// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of message anomalies
type AnomalyType int

const (
	AnomalyInvalidValue AnomalyType = iota
	AnomalyBatteryRange
	AnomalyCalibrationRange
	AnomalyQuaternionNorm
	AnomalyCenterOfMassRange
	AnomalyNameLength
)

// Quaternions off unit length by more than this are flagged.
const quaternionNormTolerance = 0.1

// ValidationError represents a message validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateMessage checks a decoded message for values a healthy device
// never reports. Returns an empty slice if the message looks sane.
func ValidateMessage(m Message) []ValidationError {
	errors := []ValidationError{}

	switch v := m.(type) {
	case BatteryLevel:
		if v.Level > 100 {
			errors = append(errors, ValidationError{
				Type:    AnomalyBatteryRange,
				Message: fmt.Sprintf("Battery level=%d%% (max 100)", v.Level),
				Details: map[string]interface{}{"level": v.Level},
			})
		}
	case TypeUpdate:
		if !v.Type.IsValid() {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Invalid device type=%d", uint8(v.Type)),
				Details: map[string]interface{}{"type": uint8(v.Type)},
			})
		}
	case NameUpdate:
		if len(v.Name) > MaxNameLength {
			errors = append(errors, ValidationError{
				Type:    AnomalyNameLength,
				Message: fmt.Sprintf("Name of %d bytes (max %d)", len(v.Name), MaxNameLength),
				Details: map[string]interface{}{"length": len(v.Name)},
			})
		}
	case CalibrationUpdate:
		for i, c := range v.Calibration.Values {
			if c > 3 {
				errors = append(errors, ValidationError{
					Type:    AnomalyCalibrationRange,
					Message: fmt.Sprintf("Calibration %s=%d (max 3)", v.Calibration.Names[i], c),
					Details: map[string]interface{}{"sensor": v.Calibration.Names[i], "value": c},
				})
			}
		}
	case SensorDataUpdate:
		errors = append(errors, validateSensorData(v.Data)...)
	}

	return errors
}

func validateSensorData(d SensorData) []ValidationError {
	errors := []ValidationError{}

	for _, r := range d.Motion {
		if r.Type != MotionQuaternion {
			continue
		}
		if n := r.Quaternion.Length(); math.Abs(n-1) > quaternionNormTolerance {
			errors = append(errors, ValidationError{
				Type:    AnomalyQuaternionNorm,
				Message: fmt.Sprintf("Quaternion norm=%.3f", n),
				Details: map[string]interface{}{"norm": n, "timestamp": d.Timestamp},
			})
		}
	}

	for _, r := range d.Pressure {
		if r.Type == PressureMass || r.Type == PressureHeelToToe {
			continue
		}
		com := r.CenterOfMass
		if com.X < 0 || com.X > 1 || com.Y < 0 || com.Y > 1 {
			errors = append(errors, ValidationError{
				Type:    AnomalyCenterOfMassRange,
				Message: fmt.Sprintf("Center of mass (%.3f, %.3f) outside insole", com.X, com.Y),
				Details: map[string]interface{}{"x": com.X, "y": com.Y, "timestamp": d.Timestamp},
			})
		}
	}

	return errors
}
