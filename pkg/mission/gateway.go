// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"errors"
	"fmt"
)

// GatewayRecord is one top-level record of a gateway frame.
type GatewayRecord struct {
	Type GatewayMessageType

	// NumberOfDevices is set for GatewayNumberOfDevices.
	NumberOfDevices uint8

	// DeviceIndex and Payload are set for GatewayDeviceMessage. Payload is
	// a complete single-device frame in the gateway dialect.
	DeviceIndex uint8
	Payload     []byte
}

// ParseGatewayFrame splits a gateway frame into records.
//
// A DEVICE_MESSAGE always advances by its declared length. An unknown
// record type ends the frame.
func ParseGatewayFrame(frame []byte) ([]GatewayRecord, error) {
	var (
		records []GatewayRecord
		errs    []error
	)

	off := 0
	for off < len(frame) {
		tag := frame[off]
		start := off
		off++

		switch GatewayMessageType(tag) {
		case GatewayNumberOfDevices:
			n, next, err := ReadU8(frame, off)
			if err != nil {
				errs = append(errs, &DecodeError{Offset: start, Tag: tag, Err: err})
				return records, errors.Join(errs...)
			}
			records = append(records, GatewayRecord{Type: GatewayNumberOfDevices, NumberOfDevices: n})
			off = next

		case GatewayDeviceMessage:
			idx, next, err := ReadU8(frame, off)
			if err != nil {
				errs = append(errs, &DecodeError{Offset: start, Tag: tag, Err: err})
				return records, errors.Join(errs...)
			}
			size, next, err := ReadU8(frame, next)
			if err != nil {
				errs = append(errs, &DecodeError{Offset: start, Tag: tag, Err: err})
				return records, errors.Join(errs...)
			}
			payload, next, err := ReadBytes(frame, next, int(size))
			if err != nil {
				errs = append(errs, &DecodeError{Offset: start, Tag: tag, Err: err})
				return records, errors.Join(errs...)
			}
			records = append(records, GatewayRecord{Type: GatewayDeviceMessage, DeviceIndex: idx, Payload: payload})
			off = next

		default:
			errs = append(errs, &DecodeError{
				Offset: start,
				Tag:    tag,
				Err:    fmt.Errorf("%w: gateway message %d", ErrUnknownMessageType, tag),
			})
			return records, errors.Join(errs...)
		}
	}
	return records, errors.Join(errs...)
}

// DeviceFrame is an outbound single-device frame addressed to a gateway slot.
type DeviceFrame struct {
	Index   uint8
	Payload []byte
}

// EncodeGatewayFrame writes the queued tag-only gateway requests followed by
// one DEVICE_MESSAGE block holding every non-empty device frame.
func EncodeGatewayFrame(requests []GatewayMessageType, devices []DeviceFrame) ([]byte, error) {
	w := NewWriter(len(requests) + 1)
	for _, r := range requests {
		w.U8(uint8(r))
	}

	wrote := false
	for _, d := range devices {
		if len(d.Payload) == 0 {
			continue
		}
		if len(d.Payload) > MaxDeviceFrameLength {
			return nil, fmt.Errorf("%w: device %d frame of %d bytes exceeds %d",
				ErrInvalidArgument, d.Index, len(d.Payload), MaxDeviceFrameLength)
		}
		if !wrote {
			w.U8(uint8(GatewayDeviceMessage))
			wrote = true
		}
		w.U8(d.Index).U8(uint8(len(d.Payload))).Raw(d.Payload)
	}
	return w.Bytes()
}
