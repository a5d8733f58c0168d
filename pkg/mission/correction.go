// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"fmt"
	"math"
	"strings"
)

// axis picks a raw component and its sign.
type axis struct {
	index int
	sign  float64
}

// Raw vector component indices
const (
	rawX = 0
	rawY = 1
	rawZ = 2
)

// Raw quaternion component indices (wire order w, x, y, z)
const (
	rawQW = 0
	rawQX = 1
	rawQY = 2
	rawQZ = 3
)

func pos(i int) axis { return axis{index: i, sign: 1} }
func neg(i int) axis { return axis{index: i, sign: -1} }

// CorrectionTable maps raw IMU axes into the body frame for one
// generation and one device type.
type CorrectionTable struct {
	Vector     [3]axis
	Euler      [3]axis
	Quaternion [4]axis // output order x, y, z, w

	// Corrections are right-multiplied onto the remapped quaternion in order.
	Corrections []Quaternion
}

// ApplyVector remaps raw and multiplies by scalar.
func (c CorrectionTable) ApplyVector(raw [3]float64, scalar float64) Vector3 {
	return Vector3{
		X: c.Vector[0].sign * raw[c.Vector[0].index] * scalar,
		Y: c.Vector[1].sign * raw[c.Vector[1].index] * scalar,
		Z: c.Vector[2].sign * raw[c.Vector[2].index] * scalar,
	}
}

// ApplyEuler remaps raw and multiplies by scalar into a YXZ Euler.
func (c CorrectionTable) ApplyEuler(raw [3]float64, scalar float64) Euler {
	return Euler{
		X:     c.Euler[0].sign * raw[c.Euler[0].index] * scalar,
		Y:     c.Euler[1].sign * raw[c.Euler[1].index] * scalar,
		Z:     c.Euler[2].sign * raw[c.Euler[2].index] * scalar,
		Order: OrderYXZ,
	}
}

// ApplyQuaternion remaps raw (w, x, y, z), scales it and applies the
// correction chain.
func (c CorrectionTable) ApplyQuaternion(raw [4]float64, scalar float64) Quaternion {
	q := Quaternion{
		X: c.Quaternion[0].sign * raw[c.Quaternion[0].index] * scalar,
		Y: c.Quaternion[1].sign * raw[c.Quaternion[1].index] * scalar,
		Z: c.Quaternion[2].sign * raw[c.Quaternion[2].index] * scalar,
		W: c.Quaternion[3].sign * raw[c.Quaternion[3].index] * scalar,
	}
	for _, corr := range c.Corrections {
		q = q.Mul(corr)
	}
	return q
}

var (
	insoleCorrection = map[Side]Quaternion{
		SideRight: QuaternionFromEuler(Euler{X: 0, Y: math.Pi / 2, Z: -math.Pi / 2, Order: OrderXYZ}),
		SideLeft:  QuaternionFromEuler(Euler{X: -math.Pi / 2, Y: -math.Pi / 2, Z: 0, Order: OrderXYZ}),
	}

	bno085Correction = map[DeviceType]Quaternion{
		TypeMotionModule: QuaternionFromEuler(Euler{X: 0, Y: -math.Pi / 2, Z: 0, Order: OrderXYZ}),
		TypeLeftInsole:   QuaternionFromEuler(Euler{X: 0, Y: math.Pi, Z: 0, Order: OrderXYZ}),
		TypeRightInsole:  QuaternionFromEuler(Euler{X: 0, Y: math.Pi, Z: 0, Order: OrderXYZ}),
	}
)

type remap struct {
	vector [3]axis
	euler  [3]axis
}

var remaps = map[Generation]map[DeviceType]remap{
	GenerationBNO080: {
		TypeRightInsole:  {vector: [3]axis{pos(rawZ), neg(rawX), pos(rawY)}, euler: [3]axis{neg(rawZ), pos(rawX), neg(rawY)}},
		TypeLeftInsole:   {vector: [3]axis{neg(rawZ), neg(rawX), neg(rawY)}, euler: [3]axis{pos(rawZ), pos(rawX), pos(rawY)}},
		TypeMotionModule: {vector: [3]axis{neg(rawY), pos(rawZ), pos(rawX)}, euler: [3]axis{pos(rawY), neg(rawZ), neg(rawX)}},
	},
	GenerationBNO085: {
		TypeRightInsole:  {vector: [3]axis{pos(rawZ), pos(rawX), pos(rawY)}, euler: [3]axis{pos(rawZ), pos(rawY), pos(rawX)}},
		TypeLeftInsole:   {vector: [3]axis{neg(rawZ), pos(rawX), neg(rawY)}, euler: [3]axis{neg(rawZ), pos(rawY), neg(rawX)}},
		TypeMotionModule: {vector: [3]axis{neg(rawY), neg(rawZ), neg(rawX)}, euler: [3]axis{pos(rawY), neg(rawZ), pos(rawX)}},
	},
	GenerationBNO055: {
		TypeRightInsole:  {vector: [3]axis{pos(rawZ), pos(rawY), pos(rawX)}, euler: [3]axis{neg(rawZ), neg(rawY), neg(rawX)}},
		TypeLeftInsole:   {vector: [3]axis{neg(rawZ), pos(rawY), neg(rawX)}, euler: [3]axis{pos(rawZ), neg(rawY), pos(rawX)}},
		TypeMotionModule: {vector: [3]axis{pos(rawX), neg(rawZ), neg(rawY)}, euler: [3]axis{neg(rawX), pos(rawZ), pos(rawY)}},
	},
}

var (
	bno080QuaternionRemap  = [4]axis{neg(rawQZ), neg(rawQY), neg(rawQW), neg(rawQX)}
	defaultQuaternionRemap = [4]axis{neg(rawQY), neg(rawQW), neg(rawQX), pos(rawQZ)}
)

// Corrections returns the correction table for a generation and device type.
// Unknown device types fall back to the motion module table.
func Corrections(gen Generation, t DeviceType) CorrectionTable {
	if !t.IsValid() {
		t = TypeMotionModule
	}
	byType, ok := remaps[gen]
	if !ok {
		gen = GenerationBNO085
		byType = remaps[gen]
	}
	r := byType[t]

	table := CorrectionTable{
		Vector:     r.vector,
		Euler:      r.euler,
		Quaternion: defaultQuaternionRemap,
	}
	if gen == GenerationBNO080 {
		table.Quaternion = bno080QuaternionRemap
	}

	// Insole side correction is multiplied before the BNO085 mount correction.
	if t.IsInsole() {
		side := t.Side()
		// BNO080 insole boards are mounted mirrored.
		if gen == GenerationBNO080 {
			if side == SideLeft {
				side = SideRight
			} else {
				side = SideLeft
			}
		}
		table.Corrections = append(table.Corrections, insoleCorrection[side])
	}
	if gen == GenerationBNO085 {
		table.Corrections = append(table.Corrections, bno085Correction[t])
	}
	return table
}

// Scalars returns the per sub-type scale factors for a generation.
func Scalars(gen Generation) map[MotionDataType]float64 {
	if gen == GenerationBNO055 {
		return map[MotionDataType]float64{
			MotionAcceleration:       1.0 / 100,
			MotionGravity:            1.0 / 100,
			MotionLinearAcceleration: 1.0 / 100,
			MotionRotationRate:       1.0 / 16,
			MotionMagnetometer:       1.0 / 16,
			MotionQuaternion:         math.Pow(2, -14),
		}
	}
	return map[MotionDataType]float64{
		MotionAcceleration:       math.Pow(2, -8),
		MotionGravity:            math.Pow(2, -8),
		MotionLinearAcceleration: math.Pow(2, -8),
		MotionRotationRate:       math.Pow(2, -9),
		MotionMagnetometer:       math.Pow(2, -4),
		MotionQuaternion:         math.Pow(2, -14),
	}
}

// CalibrationNames returns the labels of the four calibration bytes.
func CalibrationNames(gen Generation) [4]string {
	if gen == GenerationBNO055 {
		return [4]string{"system", "gyroscope", "accelerometer", "magnetometer"}
	}
	return [4]string{"accelerometer", "gyroscope", "magnetometer", "quaternion"}
}

// ParseGeneration accepts "bno055", "bno080" or "bno085" in any case.
func ParseGeneration(s string) (Generation, error) {
	switch strings.ToLower(s) {
	case "bno085", "":
		return GenerationBNO085, nil
	case "bno080":
		return GenerationBNO080, nil
	case "bno055":
		return GenerationBNO055, nil
	}
	return GenerationBNO085, fmt.Errorf("%w: unknown IMU generation %q", ErrInvalidArgument, s)
}

func (g Generation) String() string {
	switch g {
	case GenerationBNO085:
		return "BNO085"
	case GenerationBNO080:
		return "BNO080"
	case GenerationBNO055:
		return "BNO055"
	}
	return fmt.Sprintf("Generation(%d)", uint8(g))
}
