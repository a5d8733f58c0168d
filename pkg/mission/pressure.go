// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"fmt"
	"math"
)

// Insole outline used to normalize sensor positions.
const (
	insoleWidthMM  = 93.257
	insoleHeightMM = 265.069
)

// Sensor positions on the left insole in millimetres, heel at the bottom.
var pressurePositionsMM = [PressureSensorCount][2]float64{
	{59.55, 32.3},
	{33.1, 42.15},

	{69.5, 55.5},
	{44.11, 64.8},
	{20.3, 71.9},

	{63.8, 81.1},
	{41.44, 90.8},
	{19.2, 102.8},

	{48.3, 119.7},
	{17.8, 130.5},

	{43.3, 177.7},
	{18.0, 177.0},

	{43.3, 200.6},
	{18.0, 200.0},

	{43.5, 242.0},
	{18.55, 242.1},
}

// Pressure sum scale per cell depth
var (
	singleByteMassScale = math.Pow(2, 8) * PressureSensorCount
	doubleByteMassScale = math.Pow(2, 12) * PressureSensorCount
	massScalar          = math.Pow(2, -16)
)

// PressurePosition returns the normalized position of sensor index.
// The right insole mirrors x.
func PressurePosition(index int, right bool) (x, y float64) {
	p := pressurePositionsMM[index]
	x = p[0] / insoleWidthMM
	y = p[1] / insoleHeightMM
	if right {
		x = 1 - x
	}
	return x, y
}

// CenterOfMass is a normalized point on the insole (or body for pairs).
type CenterOfMass struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
}

// PressureSensor is one cell of an insole.
type PressureSensor struct {
	X      float64 `json:"x" cbor:"x"`
	Y      float64 `json:"y" cbor:"y"`
	Value  float64 `json:"value" cbor:"value"`
	Weight float64 `json:"weight" cbor:"weight"`
}

// Pressure is the latest insole pressure state.
type Pressure struct {
	Sensors      [PressureSensorCount]PressureSensor `json:"sensors" cbor:"sensors"`
	Sum          float64                             `json:"sum" cbor:"sum"`
	Mass         float64                             `json:"mass" cbor:"mass"`
	CenterOfMass CenterOfMass                        `json:"centerOfMass" cbor:"centerOfMass"`
	HeelToToe    float64                             `json:"heelToToe" cbor:"heelToToe"`
}

// ComputePressure derives weights, center of mass, heel-to-toe and mass
// from sixteen raw cell values. doubleByte selects the 12-bit cell scale.
func ComputePressure(values [PressureSensorCount]float64, right, doubleByte bool) Pressure {
	var p Pressure
	for i, v := range values {
		x, y := PressurePosition(i, right)
		p.Sensors[i] = PressureSensor{X: x, Y: y, Value: v}
		p.Sum += v
	}

	for i := range p.Sensors {
		s := &p.Sensors[i]
		if p.Sum > 0 {
			s.Weight = s.Value / p.Sum
		}
		p.CenterOfMass.X += s.X * s.Weight
		p.CenterOfMass.Y += s.Y * s.Weight
	}

	p.HeelToToe = 1 - p.CenterOfMass.Y
	if doubleByte {
		p.Mass = p.Sum / doubleByteMassScale
	} else {
		p.Mass = p.Sum / singleByteMassScale
	}
	return p
}

// PressureReading is one decoded pressure record.
type PressureReading struct {
	Type PressureDataType `json:"type" cbor:"type"`

	// Pressure is set for the single and double byte cell records.
	Pressure Pressure `json:"pressure" cbor:"pressure"`

	CenterOfMass CenterOfMass `json:"centerOfMass" cbor:"centerOfMass"`
	Mass         float64      `json:"mass" cbor:"mass"`
	HeelToToe    float64      `json:"heelToToe" cbor:"heelToToe"`
}

// Apply stores r into p. Cell records replace p entirely.
func (p *Pressure) Apply(r PressureReading) {
	switch r.Type {
	case PressureSingleByte, PressureDoubleByte:
		*p = r.Pressure
	case PressureCenterOfMass:
		p.CenterOfMass = r.CenterOfMass
	case PressureMass:
		p.Mass = r.Mass
	case PressureHeelToToe:
		p.HeelToToe = r.HeelToToe
	}
}

// PressureDecoder decodes pressure records for one insole.
type PressureDecoder struct {
	Type DeviceType
}

// Decode reads pressure records from buf[off:end].
func (d PressureDecoder) Decode(buf []byte, off, end int) ([]PressureReading, error) {
	block := buf[:end]
	var readings []PressureReading
	for off < end {
		tag := block[off]
		off++

		var (
			r   PressureReading
			err error
		)
		r.Type = PressureDataType(tag)
		switch r.Type {
		case PressureSingleByte, PressureDoubleByte:
			var values [PressureSensorCount]float64
			for i := range values {
				if r.Type == PressureSingleByte {
					var v uint8
					v, off, err = ReadU8(block, off)
					values[i] = float64(v)
				} else {
					var v uint16
					v, off, err = ReadU16LE(block, off)
					values[i] = float64(v)
				}
				if err != nil {
					return readings, err
				}
			}
			r.Pressure = ComputePressure(values, d.Type.IsRightInsole(), r.Type == PressureDoubleByte)
			r.CenterOfMass = r.Pressure.CenterOfMass
			r.Mass = r.Pressure.Mass
			r.HeelToToe = r.Pressure.HeelToToe

		case PressureCenterOfMass:
			var x, y float32
			if x, off, err = ReadF32LE(block, off); err != nil {
				return readings, err
			}
			if y, off, err = ReadF32LE(block, off); err != nil {
				return readings, err
			}
			r.CenterOfMass = CenterOfMass{X: float64(x), Y: float64(y)}

		case PressureMass:
			var m uint32
			if m, off, err = ReadU32LE(block, off); err != nil {
				return readings, err
			}
			r.Mass = float64(m) * massScalar

		case PressureHeelToToe:
			var h float64
			if h, off, err = ReadF64LE(block, off); err != nil {
				return readings, err
			}
			r.HeelToToe = 1 - h

		default:
			return readings, &DecodeError{
				Offset: off - 1,
				Tag:    tag,
				Err:    fmt.Errorf("%w: %d", ErrUnknownPressureSubtype, tag),
			}
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// BodyPressure combines a left and right insole.
type BodyPressure struct {
	Sum          float64      `json:"sum" cbor:"sum"`
	LeftMass     float64      `json:"leftMass" cbor:"leftMass"`
	RightMass    float64      `json:"rightMass" cbor:"rightMass"`
	CenterOfMass CenterOfMass `json:"centerOfMass" cbor:"centerOfMass"`
}

// AggregatePressure computes the mass split and combined center of mass.
// A zero total yields all zeros.
func AggregatePressure(left, right Pressure) BodyPressure {
	b := BodyPressure{Sum: left.Sum + right.Sum}
	if b.Sum <= 0 {
		return BodyPressure{}
	}
	b.LeftMass = left.Sum / b.Sum
	b.RightMass = right.Sum / b.Sum
	b.CenterOfMass.X = b.RightMass
	b.CenterOfMass.Y = left.CenterOfMass.Y*b.LeftMass + right.CenterOfMass.Y*b.RightMass
	if math.IsNaN(b.CenterOfMass.Y) {
		b.CenterOfMass.Y = 0
	}
	return b
}
