// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import "fmt"

// Clock extends the 16-bit sensor data timestamp into a monotonic counter.
// Each time the raw value goes backwards the offset grows by 65536.
type Clock struct {
	offset  uint64
	last    uint16
	started bool
}

// Next returns the extended timestamp for raw.
func (c *Clock) Next(raw uint16) uint64 {
	if c.started && raw < c.last {
		c.offset += TimestampRollover
	}
	c.started = true
	c.last = raw
	return uint64(raw) + c.offset
}

// Reset starts the clock over.
func (c *Clock) Reset() {
	*c = Clock{}
}

// SensorData is one decoded SENSOR_DATA message.
type SensorData struct {
	Timestamp uint64            `json:"timestamp" cbor:"timestamp"`
	Motion    []MotionReading   `json:"motion,omitempty" cbor:"motion,omitempty"`
	Pressure  []PressureReading `json:"pressure,omitempty" cbor:"pressure,omitempty"`

	// Errors collects recoverable failures inside individual sensor blocks.
	Errors []error `json:"-" cbor:"-"`
}

// SensorDataDecoder decodes SENSOR_DATA payloads for one device.
type SensorDataDecoder struct {
	Clock    Clock
	Motion   MotionDecoder
	Pressure PressureDecoder
}

// NewSensorDataDecoder returns a decoder for a generation and device type.
func NewSensorDataDecoder(gen Generation, t DeviceType) *SensorDataDecoder {
	return &SensorDataDecoder{
		Motion:   MotionDecoder{Generation: gen, Type: t},
		Pressure: PressureDecoder{Type: t},
	}
}

// SetType updates the device type used for corrections and pressure mirroring.
func (d *SensorDataDecoder) SetType(t DeviceType) {
	d.Motion.Type = t
	d.Pressure.Type = t
}

// Decode reads a timestamp then {sensorType u8, size u8, payload} blocks
// until the end of buf. It returns the offset past the last block.
//
// A block whose size runs past buf is fatal (ErrFrameTruncated). Unknown
// sub-types inside a block are recorded and the next block is decoded.
func (d *SensorDataDecoder) Decode(buf []byte, off int) (SensorData, int, error) {
	raw, off, err := ReadU16LE(buf, off)
	if err != nil {
		return SensorData{}, off, err
	}
	data := SensorData{Timestamp: d.Clock.Next(raw)}

	for off < len(buf) {
		sensorType := SensorType(buf[off])
		off++

		var size uint8
		if size, off, err = ReadU8(buf, off); err != nil {
			return data, off, err
		}
		end := off + int(size)
		if end > len(buf) {
			return data, off, truncated("sensor block", off, int(size), len(buf))
		}

		switch sensorType {
		case SensorMotion:
			readings, err := d.Motion.Decode(buf, off, end)
			data.Motion = append(data.Motion, readings...)
			if err != nil {
				data.Errors = append(data.Errors, err)
			}
		case SensorPressure:
			readings, err := d.Pressure.Decode(buf, off, end)
			data.Pressure = append(data.Pressure, readings...)
			if err != nil {
				data.Errors = append(data.Errors, err)
			}
		default:
			data.Errors = append(data.Errors, &DecodeError{
				Offset: off - 2,
				Tag:    byte(sensorType),
				Err:    fmt.Errorf("%w: sensor type %d", ErrUnknownMessageType, sensorType),
			})
		}
		off = end
	}
	return data, off, nil
}
