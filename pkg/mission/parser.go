// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"errors"
	"fmt"
)

// Parser decodes inbound frames for one device. It keeps the state that
// spans frames: the device type, the sensor data clock and the download
// header flag. It is not safe for concurrent use.
type Parser struct {
	dialect *Dialect
	typ     DeviceType
	sensors *SensorDataDecoder

	fileHeaderSeen bool
}

// NewParser returns a parser for a dialect and IMU generation. The device
// type starts as motion module until a type record arrives.
func NewParser(d *Dialect, gen Generation) *Parser {
	return &Parser{
		dialect: d,
		typ:     TypeMotionModule,
		sensors: NewSensorDataDecoder(gen, TypeMotionModule),
	}
}

// Dialect returns the dialect the parser decodes.
func (p *Parser) Dialect() *Dialect {
	return p.dialect
}

// Type returns the device type currently used for decoding.
func (p *Parser) Type() DeviceType {
	return p.typ
}

// SetType changes the device type used for decoding.
func (p *Parser) SetType(t DeviceType) {
	p.typ = t
	p.sensors.SetType(t)
}

// BeginFileReceive arms the parser for a new download header.
func (p *Parser) BeginFileReceive() {
	p.fileHeaderSeen = false
}

// Reset clears per-connection state. The device type is kept.
func (p *Parser) Reset() {
	p.sensors.Clock.Reset()
	p.fileHeaderSeen = false
}

// Parse decodes every record in frame in order.
//
// Decoding continues past recoverable errors. A truncated record stops the
// frame; the messages decoded before it are still returned. The returned
// error joins every failure and matches the package sentinels with errors.Is.
func (p *Parser) Parse(frame []byte) ([]Message, error) {
	var (
		msgs []Message
		errs []error
	)

	off := 0
	for off < len(frame) {
		tag := frame[off]
		start := off
		off++

		t, ok := p.dialect.Decode(tag)
		if !ok {
			errs = append(errs, &DecodeError{
				Offset: start,
				Tag:    tag,
				Err:    fmt.Errorf("%w: %d in %s dialect", ErrUnknownMessageType, tag, p.dialect.Name()),
			})
			break
		}

		m, next, err := p.parseRecord(t, frame, off)
		if m != nil {
			msgs = append(msgs, m)
		}
		if err != nil {
			errs = append(errs, &DecodeError{Offset: start, Tag: tag, Err: err})
			if errors.Is(err, ErrFrameTruncated) || next <= off {
				break
			}
		}
		off = next
	}
	return msgs, errors.Join(errs...)
}

func (p *Parser) parseRecord(t MessageType, frame []byte, off int) (Message, int, error) {
	switch t {
	case MsgPing:
		return Pong{}, off, nil

	case MsgBatteryLevel:
		v, next, err := ReadU8(frame, off)
		if err != nil {
			return nil, off, err
		}
		return BatteryLevel{Level: v}, next, nil

	case MsgGetType, MsgSetType:
		v, next, err := ReadU8(frame, off)
		if err != nil {
			return nil, off, err
		}
		dt := DeviceType(v)
		if dt.IsValid() {
			p.SetType(dt)
		}
		return TypeUpdate{Reply: t, Type: dt}, next, nil

	case MsgGetName, MsgSetName:
		s, next, err := ReadString(frame, off)
		if err != nil {
			return nil, off, err
		}
		return NameUpdate{Reply: t, Name: s}, next, nil

	case MsgMotionCalibration:
		c, next, err := ParseMotionCalibration(frame, off, p.sensors.Motion.Generation)
		if err != nil {
			return nil, off, err
		}
		return CalibrationUpdate{Calibration: c}, next, nil

	case MsgGetSensorDataConfigurations, MsgSetSensorDataConfigurations:
		c, next, err := ParseSensorDataConfigurations(frame, off)
		if err != nil {
			return nil, off, err
		}
		return SensorDataConfigurationsUpdate{Reply: t, Configurations: c}, next, nil

	case MsgSensorData:
		data, next, err := p.sensors.Decode(frame, off)
		m := SensorDataUpdate{Data: data}
		if err != nil {
			return m, next, err
		}
		return m, next, errors.Join(data.Errors...)

	case MsgGetWeightDataDelay, MsgSetWeightDataDelay:
		v, next, err := ReadU16LE(frame, off)
		if err != nil {
			return nil, off, err
		}
		return WeightDataDelayUpdate{Reply: t, Delay: v}, next, nil

	case MsgWeightData:
		v, next, err := ReadF32LE(frame, off)
		if err != nil {
			return nil, off, err
		}
		return WeightUpdate{Weight: v}, next, nil

	case MsgSendFile:
		s, next, err := ReadString(frame, off)
		if err != nil {
			return nil, off, err
		}
		return FileSent{Path: s}, next, nil

	case MsgReceiveFile:
		if p.fileHeaderSeen {
			data, next, err := ReadBytes(frame, off, len(frame)-off)
			if err != nil {
				return nil, off, err
			}
			return FileChunk{Data: data}, next, nil
		}
		path, next, err := ReadString(frame, off)
		if err != nil {
			return nil, off, err
		}
		size, next, err := ReadU32LE(frame, next)
		if err != nil {
			return nil, off, err
		}
		p.fileHeaderSeen = true
		return FileReceiveHeader{Path: path, Size: size}, next, nil

	case MsgRemoveFile:
		s, next, err := ReadString(frame, off)
		if err != nil {
			return nil, off, err
		}
		return FileRemoved{Path: s}, next, nil

	case MsgFormatFilesystem:
		return FilesystemFormatted{}, off, nil

	case MsgGetFirmwareVersion:
		s, next, err := ReadString(frame, off)
		if err != nil {
			return nil, off, err
		}
		return FirmwareVersion{Version: s}, next, nil

	case MsgPeer:
		return p.parsePeer(frame, off)
	}

	// Known to the dialect but carries no inbound layout.
	return nil, len(frame), fmt.Errorf("%w: inbound %s", ErrUnknownMessageType, t)
}

// parsePeer decodes a length-prefixed peer block into a PeerBatch.
func (p *Parser) parsePeer(frame []byte, off int) (Message, int, error) {
	size, next, err := ReadU8(frame, off)
	if err != nil {
		return nil, off, err
	}
	end := next + int(size)
	if end > len(frame) {
		return nil, off, truncated("peer block", next, int(size), len(frame))
	}
	block := frame[:end]

	var batch PeerBatch
	off = next
	for off < end {
		pt := PeerMessageType(block[off])
		off++
		switch pt {
		case PeerGetConnection, PeerSetConnection:
			v, n, err := ReadU8(block, off)
			if err != nil {
				return batch, end, err
			}
			off = n
			batch.Records = append(batch.Records, PeerConnectionUpdate{Reply: pt, Connected: v != 0})
		case PeerGetRemoteCharacteristicValue, PeerSetRemoteCharacteristicValue:
			idx, n, err := ReadU8(block, off)
			if err != nil {
				return batch, end, err
			}
			sz, n, err := ReadU8(block, n)
			if err != nil {
				return batch, end, err
			}
			value, n, err := ReadBytes(block, n, int(sz))
			if err != nil {
				return batch, end, err
			}
			off = n
			batch.Records = append(batch.Records, PeerCharacteristicUpdate{Reply: pt, Index: idx, Value: value})
		default:
			return batch, end, fmt.Errorf("%w: peer message %d", ErrUnknownMessageType, pt)
		}
	}
	return batch, end, nil
}

// PeerBatch holds the records of one peer passthrough block.
type PeerBatch struct {
	Records []Message
}

func (PeerBatch) MessageType() MessageType { return MsgPeer }
