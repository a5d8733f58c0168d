// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestPressurePositionMirrorsRight(t *testing.T) {
	lx, ly := PressurePosition(0, false)
	rx, ry := PressurePosition(0, true)

	if !near(lx, 59.55/93.257) || !near(ly, 32.3/265.069) {
		t.Errorf("left position = (%v, %v)", lx, ly)
	}
	if !near(rx, 1-lx) || ry != ly {
		t.Errorf("right position = (%v, %v), want mirrored x", rx, ry)
	}
}

func TestComputePressureWeightsSumToOne(t *testing.T) {
	var values [PressureSensorCount]float64
	for i := range values {
		values[i] = float64(i + 1)
	}
	p := ComputePressure(values, false, false)

	var total float64
	for _, s := range p.Sensors {
		total += s.Weight
	}
	if !near(total, 1) {
		t.Errorf("weights sum to %v, want 1", total)
	}
	if p.Sum != 136 {
		t.Errorf("sum = %v, want 136", p.Sum)
	}
	if !near(p.Mass, 136/(256.0*16)) {
		t.Errorf("mass = %v", p.Mass)
	}
	if !near(p.HeelToToe, 1-p.CenterOfMass.Y) {
		t.Errorf("heelToToe = %v, center of mass y = %v", p.HeelToToe, p.CenterOfMass.Y)
	}
}

func TestComputePressureZeroSum(t *testing.T) {
	var values [PressureSensorCount]float64
	p := ComputePressure(values, true, true)

	for i, s := range p.Sensors {
		if math.IsNaN(s.Weight) || s.Weight != 0 {
			t.Errorf("sensor %d weight = %v, want 0", i, s.Weight)
		}
	}
	if p.CenterOfMass != (CenterOfMass{}) {
		t.Errorf("center of mass = %+v, want zero", p.CenterOfMass)
	}
	if p.HeelToToe != 1 || p.Mass != 0 {
		t.Errorf("heelToToe = %v mass = %v", p.HeelToToe, p.Mass)
	}
}

func TestComputePressureSingleCell(t *testing.T) {
	var values [PressureSensorCount]float64
	values[0] = 100
	p := ComputePressure(values, true, false)

	x, y := PressurePosition(0, true)
	if !near(p.CenterOfMass.X, x) || !near(p.CenterOfMass.Y, y) {
		t.Errorf("center of mass = %+v, want (%v, %v)", p.CenterOfMass, x, y)
	}
}

func TestPressureDecodeDoubleByte(t *testing.T) {
	buf := []byte{byte(PressureDoubleByte)}
	for i := 0; i < PressureSensorCount; i++ {
		buf = binary.LittleEndian.AppendUint16(buf, 4096)
	}

	readings, err := PressureDecoder{Type: TypeLeftInsole}.Decode(buf, 0, len(buf))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("got %d readings", len(readings))
	}
	if !near(readings[0].Mass, 1) {
		t.Errorf("mass = %v, want 1", readings[0].Mass)
	}
}

func TestPressureDecodeScalarRecords(t *testing.T) {
	buf := []byte{byte(PressureCenterOfMass)}
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(0.5))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(0.25))
	buf = append(buf, byte(PressureMass))
	buf = binary.LittleEndian.AppendUint32(buf, 1<<17)
	buf = append(buf, byte(PressureHeelToToe))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(0.25))

	readings, err := PressureDecoder{Type: TypeRightInsole}.Decode(buf, 0, len(buf))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}
	if readings[0].CenterOfMass != (CenterOfMass{X: 0.5, Y: 0.25}) {
		t.Errorf("center of mass = %+v", readings[0].CenterOfMass)
	}
	if readings[1].Mass != 2 {
		t.Errorf("mass = %v, want 2", readings[1].Mass)
	}
	if readings[2].HeelToToe != 0.75 {
		t.Errorf("heelToToe = %v, want 0.75", readings[2].HeelToToe)
	}

	var p Pressure
	for _, r := range readings {
		p.Apply(r)
	}
	if p.Mass != 2 || p.HeelToToe != 0.75 || p.CenterOfMass.X != 0.5 {
		t.Errorf("applied pressure = %+v", p)
	}
}

func TestPressureDecodeErrors(t *testing.T) {
	_, err := PressureDecoder{}.Decode([]byte{7}, 0, 1)
	if !errors.Is(err, ErrUnknownPressureSubtype) {
		t.Errorf("unknown subtype error = %v", err)
	}

	_, err = PressureDecoder{}.Decode([]byte{byte(PressureSingleByte), 1, 2, 3}, 0, 4)
	if !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("short cells error = %v", err)
	}
}

func TestAggregatePressure(t *testing.T) {
	left := Pressure{Sum: 30, CenterOfMass: CenterOfMass{Y: 0.2}}
	right := Pressure{Sum: 70, CenterOfMass: CenterOfMass{Y: 0.6}}

	b := AggregatePressure(left, right)
	if !near(b.LeftMass, 0.3) || !near(b.RightMass, 0.7) {
		t.Errorf("mass split = %v/%v, want 0.3/0.7", b.LeftMass, b.RightMass)
	}
	if !near(b.CenterOfMass.X, 0.7) {
		t.Errorf("center of mass x = %v, want 0.7", b.CenterOfMass.X)
	}
	if !near(b.CenterOfMass.Y, 0.2*0.3+0.6*0.7) {
		t.Errorf("center of mass y = %v", b.CenterOfMass.Y)
	}

	if z := AggregatePressure(Pressure{}, Pressure{}); z != (BodyPressure{}) {
		t.Errorf("zero total = %+v, want zero", z)
	}
}
