// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"fmt"
	"math"
)

// MotionReading is one decoded motion record.
type MotionReading struct {
	Type MotionDataType `json:"type" cbor:"type"`

	// Vector is set for acceleration, gravity, linear acceleration and magnetometer.
	Vector Vector3 `json:"vector" cbor:"vector"`

	// Euler is set for rotation rate and, derived in YXZ order, for quaternion.
	Euler Euler `json:"euler" cbor:"euler"`

	Quaternion Quaternion `json:"quaternion" cbor:"quaternion"`

	// Raw holds the record payload as signed 16-bit words.
	Raw []int16 `json:"raw" cbor:"raw"`
}

// Motion holds the latest value of every motion sub-type.
type Motion struct {
	Acceleration       Vector3    `json:"acceleration" cbor:"acceleration"`
	Gravity            Vector3    `json:"gravity" cbor:"gravity"`
	LinearAcceleration Vector3    `json:"linearAcceleration" cbor:"linearAcceleration"`
	RotationRate       Euler      `json:"rotationRate" cbor:"rotationRate"`
	Magnetometer       Vector3    `json:"magnetometer" cbor:"magnetometer"`
	Quaternion         Quaternion `json:"quaternion" cbor:"quaternion"`
	Euler              Euler      `json:"euler" cbor:"euler"`
}

// Apply stores r in the matching field.
func (m *Motion) Apply(r MotionReading) {
	switch r.Type {
	case MotionAcceleration:
		m.Acceleration = r.Vector
	case MotionGravity:
		m.Gravity = r.Vector
	case MotionLinearAcceleration:
		m.LinearAcceleration = r.Vector
	case MotionMagnetometer:
		m.Magnetometer = r.Vector
	case MotionRotationRate:
		m.RotationRate = r.Euler
	case MotionQuaternion:
		m.Quaternion = r.Quaternion
		m.Euler = r.Euler
	}
}

// MotionCalibration is the per-sensor calibration status (0 to 3).
type MotionCalibration struct {
	Values [4]uint8  `json:"values" cbor:"values"`
	Names  [4]string `json:"names" cbor:"names"`
}

// IsFullyCalibrated reports whether every value reached 3.
func (c MotionCalibration) IsFullyCalibrated() bool {
	for _, v := range c.Values {
		if v != 3 {
			return false
		}
	}
	return true
}

// Value returns the calibration value for a sensor name.
func (c MotionCalibration) Value(name string) (uint8, bool) {
	for i, n := range c.Names {
		if n == name {
			return c.Values[i], true
		}
	}
	return 0, false
}

// ParseMotionCalibration reads four calibration bytes.
func ParseMotionCalibration(buf []byte, off int, gen Generation) (MotionCalibration, int, error) {
	if off+motionCalibrationSize > len(buf) {
		return MotionCalibration{}, off, truncated("motion calibration", off, motionCalibrationSize, len(buf))
	}
	c := MotionCalibration{Names: CalibrationNames(gen)}
	copy(c.Values[:], buf[off:off+motionCalibrationSize])
	return c, off + motionCalibrationSize, nil
}

// MotionDecoder turns motion records into body-frame readings.
type MotionDecoder struct {
	Generation Generation
	Type       DeviceType
}

// MotionRecordSize returns the payload size of a motion sub-type.
func MotionRecordSize(t MotionDataType) (int, error) {
	switch t {
	case MotionAcceleration, MotionGravity, MotionLinearAcceleration, MotionMagnetometer, MotionRotationRate:
		return vectorSize, nil
	case MotionQuaternion:
		return quaternionSize, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownMotionSubtype, uint8(t))
}

// DecodeRecord decodes a single motion payload.
func (d MotionDecoder) DecodeRecord(t MotionDataType, payload []byte) (MotionReading, error) {
	size, err := MotionRecordSize(t)
	if err != nil {
		return MotionReading{}, err
	}
	if len(payload) < size {
		return MotionReading{}, truncated("motion record", 0, size, len(payload))
	}

	raw := make([]int16, size/2)
	values := make([]float64, size/2)
	for i := range raw {
		raw[i], _, _ = ReadI16LE(payload, i*2)
		values[i] = float64(raw[i])
	}

	table := Corrections(d.Generation, d.Type)
	scalar := Scalars(d.Generation)[t]
	r := MotionReading{Type: t, Raw: raw}

	switch t {
	case MotionRotationRate:
		r.Euler = table.ApplyEuler([3]float64{values[0], values[1], values[2]}, scalar)
		if d.Generation == GenerationBNO055 {
			r.Euler.X *= math.Pi / 180
			r.Euler.Y *= math.Pi / 180
			r.Euler.Z *= math.Pi / 180
		}
	case MotionQuaternion:
		r.Quaternion = table.ApplyQuaternion([4]float64{values[0], values[1], values[2], values[3]}, scalar)
		r.Euler = EulerFromQuaternion(r.Quaternion, OrderYXZ)
	default:
		r.Vector = table.ApplyVector([3]float64{values[0], values[1], values[2]}, scalar)
	}
	return r, nil
}

// Decode reads motion records from buf[off:end]. Each record is a sub-type
// byte followed by a fixed size payload.
//
// An unknown sub-type stops decoding of the block; readings decoded before
// it are returned together with the error.
func (d MotionDecoder) Decode(buf []byte, off, end int) ([]MotionReading, error) {
	var readings []MotionReading
	for off < end {
		tag := buf[off]
		off++

		t := MotionDataType(tag)
		size, err := MotionRecordSize(t)
		if err != nil {
			return readings, &DecodeError{Offset: off - 1, Tag: tag, Err: err}
		}
		if off+size > end {
			return readings, truncated("motion record", off, size, end)
		}

		r, err := d.DecodeRecord(t, buf[off:off+size])
		if err != nil {
			return readings, err
		}
		readings = append(readings, r)
		off += size
	}
	return readings, nil
}
