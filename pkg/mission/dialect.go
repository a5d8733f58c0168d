// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

// Dialect maps logical message types to wire tags.
//
// A mission connected directly speaks the full table. A mission reached
// through a gateway speaks a reduced table with different tag values.
type Dialect struct {
	name     string
	toWire   map[MessageType]byte
	fromWire map[byte]MessageType
}

func newDialect(name string, types []MessageType) *Dialect {
	d := &Dialect{
		name:     name,
		toWire:   make(map[MessageType]byte, len(types)),
		fromWire: make(map[byte]MessageType, len(types)),
	}
	for i, t := range types {
		d.toWire[t] = byte(i)
		d.fromWire[byte(i)] = t
	}
	return d
}

// DirectDialect is spoken over a mission's own socket.
var DirectDialect = newDialect("direct", []MessageType{
	MsgBatteryLevel,
	MsgGetType,
	MsgSetType,
	MsgGetName,
	MsgSetName,
	MsgMotionCalibration,
	MsgGetSensorDataConfigurations,
	MsgSetSensorDataConfigurations,
	MsgSensorData,
	MsgGetWeightDataDelay,
	MsgSetWeightDataDelay,
	MsgWeightData,
	MsgReceiveFile,
	MsgSendFile,
	MsgRemoveFile,
	MsgFormatFilesystem,
	MsgGetFirmwareVersion,
	MsgFirmwareUpdate,
	MsgPeer,
})

// GatewayDialect is spoken inside gateway DEVICE_MESSAGE sub-frames.
var GatewayDialect = newDialect("gateway", []MessageType{
	MsgPing,
	MsgBatteryLevel,
	MsgGetType,
	MsgSetType,
	MsgGetName,
	MsgSetName,
	MsgMotionCalibration,
	MsgGetSensorDataConfigurations,
	MsgSetSensorDataConfigurations,
	MsgSensorData,
})

// Name returns the dialect name.
func (d *Dialect) Name() string {
	return d.name
}

// Encode returns the wire tag for t.
func (d *Dialect) Encode(t MessageType) (byte, bool) {
	b, ok := d.toWire[t]
	return b, ok
}

// Decode returns the message type for a wire tag.
func (d *Dialect) Decode(tag byte) (MessageType, bool) {
	t, ok := d.fromWire[tag]
	return t, ok
}

// Supports reports whether the dialect can carry t.
func (d *Dialect) Supports(t MessageType) bool {
	_, ok := d.toWire[t]
	return ok
}
