// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"fmt"
	"sort"
)

// SensorDataConfigurations holds the sample interval in milliseconds of
// every enabled sub-type. A zero delay disables the sub-type.
type SensorDataConfigurations struct {
	Motion   map[MotionDataType]int   `json:"motion" cbor:"motion"`
	Pressure map[PressureDataType]int `json:"pressure" cbor:"pressure"`
}

// DisabledSensorDataConfigurations sets every sub-type to zero.
func DisabledSensorDataConfigurations() SensorDataConfigurations {
	c := SensorDataConfigurations{
		Motion:   make(map[MotionDataType]int, len(MotionDataTypes)),
		Pressure: make(map[PressureDataType]int, len(PressureDataTypes)),
	}
	for _, t := range MotionDataTypes {
		c.Motion[t] = 0
	}
	for _, t := range PressureDataTypes {
		c.Pressure[t] = 0
	}
	return c
}

// QuantizeDelay rounds a delay down to a multiple of SensorDataDelayStep.
// Negative or oversized delays are rejected.
func QuantizeDelay(delay int) (uint16, bool) {
	if delay < 0 || delay > 0xFFFF {
		return 0, false
	}
	delay -= delay % SensorDataDelayStep
	return uint16(delay), true
}

type delayEntry struct {
	subtype uint8
	delay   uint16
}

func quantizeEntries[K ~uint8](m map[K]int, valid func(K) bool) []delayEntry {
	entries := make([]delayEntry, 0, len(m))
	for k, v := range m {
		if !valid(k) {
			continue
		}
		d, ok := QuantizeDelay(v)
		if !ok {
			continue
		}
		entries = append(entries, delayEntry{subtype: uint8(k), delay: d})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].subtype < entries[j].subtype })
	return entries
}

func encodeCategory(sensorType SensorType, entries []delayEntry) []byte {
	if len(entries) == 0 {
		return nil
	}
	w := NewWriter(2 + 3*len(entries))
	w.U8(uint8(sensorType)).U8(uint8(3 * len(entries)))
	for _, e := range entries {
		w.U8(e.subtype).U16LE(e.delay)
	}
	b, _ := w.Bytes()
	return b
}

// EncodeSensorDataConfigurations flattens c into
// {sensorType, 3*n, (subtype, delay u16)...} blocks in sensor type order.
// Invalid delays are dropped, empty categories are omitted and pressure is
// only written when includePressure is set.
func EncodeSensorDataConfigurations(c SensorDataConfigurations, includePressure bool) []byte {
	motion := quantizeEntries(c.Motion, func(t MotionDataType) bool { return t <= MotionQuaternion })
	out := encodeCategory(SensorMotion, motion)
	if includePressure {
		pressure := quantizeEntries(c.Pressure, func(t PressureDataType) bool { return t <= PressureHeelToToe })
		out = Concat(out, encodeCategory(SensorPressure, pressure))
	}
	return out
}

// ParseSensorDataConfigurations reads the fixed reply layout: one u16 per
// motion sub-type then one u16 per pressure sub-type.
func ParseSensorDataConfigurations(buf []byte, off int) (SensorDataConfigurations, int, error) {
	c := SensorDataConfigurations{
		Motion:   make(map[MotionDataType]int, len(MotionDataTypes)),
		Pressure: make(map[PressureDataType]int, len(PressureDataTypes)),
	}

	for _, t := range MotionDataTypes {
		v, next, err := ReadU16LE(buf, off)
		if err != nil {
			return c, off, fmt.Errorf("motion %s: %w", t, err)
		}
		c.Motion[t] = int(v)
		off = next
	}
	for _, t := range PressureDataTypes {
		v, next, err := ReadU16LE(buf, off)
		if err != nil {
			return c, off, fmt.Errorf("pressure %s: %w", t, err)
		}
		c.Pressure[t] = int(v)
		off = next
	}
	return c, off, nil
}
