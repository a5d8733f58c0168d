// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Serial bridge framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// MaxSerialPayload bounds the length field of a serial frame.
const MaxSerialPayload = 4096

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// ErrBadFrame is returned by the decoder for malformed serial frames.
var ErrBadFrame = errors.New("transport: bad serial frame")

// CalculateCRC computes the CRC-16-CCITT checksum of data.
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// EncodeFrame wraps one protocol frame for the serial bridge:
// START, stuffed [len u16 LE][payload][crc16 BE], END.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxSerialPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes (max %d)", ErrBadFrame, len(payload), MaxSerialPayload)
	}

	data := make([]byte, 2, 2+len(payload)+2)
	binary.LittleEndian.PutUint16(data, uint16(len(payload)))
	data = append(data, payload...)
	data = binary.BigEndian.AppendUint16(data, CalculateCRC(data))

	out := make([]byte, 0, len(data)*2+2)
	out = append(out, StartByte)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			out = append(out, EscByte, b^EscXor)
		} else {
			out = append(out, b)
		}
	}
	return append(out, EndByte), nil
}

// Decoder states
const (
	stateIdle = iota
	stateLength1
	stateLength2
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// Decoder reassembles serial bridge frames one byte at a time.
type Decoder struct {
	state  int
	escape bool
	length int
	data   []byte
	crc    uint16
}

// NewDecoder returns an idle decoder.
func NewDecoder() *Decoder {
	return &Decoder{data: make([]byte, 0, 256)}
}

// Reset drops any partial frame.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.escape = false
	d.length = 0
	d.data = d.data[:0]
	d.crc = 0
}

// DecodeByte feeds b to the decoder. It returns the payload when a frame
// completes, or an error wrapping ErrBadFrame when one is rejected.
func (d *Decoder) DecodeByte(b byte) ([]byte, error) {
	if b == StartByte {
		d.Reset()
		d.state = stateLength1
		return nil, nil
	}
	if b == EndByte {
		state := d.state
		if state != stateEnd {
			d.Reset()
			if state == stateIdle {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: unexpected END in state %d", ErrBadFrame, state)
		}
		want := CalculateCRC(d.data)
		got := d.crc
		payload := append([]byte(nil), d.data[2:]...)
		d.Reset()
		if want != got {
			return nil, fmt.Errorf("%w: CRC mismatch: expected 0x%04X, got 0x%04X", ErrBadFrame, want, got)
		}
		return payload, nil
	}
	if d.state == stateIdle {
		return nil, nil
	}
	if b == EscByte && !d.escape {
		d.escape = true
		return nil, nil
	}
	if d.escape {
		b ^= EscXor
		d.escape = false
	}

	switch d.state {
	case stateLength1:
		d.data = append(d.data, b)
		d.length = int(b)
		d.state = stateLength2
	case stateLength2:
		d.data = append(d.data, b)
		d.length |= int(b) << 8
		if d.length > MaxSerialPayload {
			n := d.length
			d.Reset()
			return nil, fmt.Errorf("%w: invalid length %d (max %d)", ErrBadFrame, n, MaxSerialPayload)
		}
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
	case statePayload:
		d.data = append(d.data, b)
		if len(d.data)-2 >= d.length {
			d.state = stateCRC1
		}
	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
	case stateEnd:
		d.Reset()
		return nil, fmt.Errorf("%w: trailing byte 0x%02X", ErrBadFrame, b)
	}
	return nil, nil
}
