// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mission provides a Go implementation of the mission sensor wire protocol.
//
// Missions are wearable motion/pressure sensor units: a motion module or a
// left/right instrumented insole. This package covers the byte-level codec,
// IMU correction tables, motion and pressure decoding, command encoding and the
// gateway multiplexing frame. It performs no I/O.
package mission

// MessageType is the logical message type of a single-device record.
// Wire values depend on the Dialect (direct socket or gateway sub-frame).
type MessageType uint8

// Message types (direct dialect wire values)
const (
	MsgBatteryLevel MessageType = iota
	MsgGetType
	MsgSetType
	MsgGetName
	MsgSetName
	MsgMotionCalibration
	MsgGetSensorDataConfigurations
	MsgSetSensorDataConfigurations
	MsgSensorData
	MsgGetWeightDataDelay
	MsgSetWeightDataDelay
	MsgWeightData
	MsgReceiveFile
	MsgSendFile
	MsgRemoveFile
	MsgFormatFilesystem
	MsgGetFirmwareVersion
	MsgFirmwareUpdate
	MsgPeer

	// MsgPing only exists in the gateway dialect.
	MsgPing
)

// PeerMessageType is the record type inside a MsgPeer passthrough block.
type PeerMessageType uint8

// Peer passthrough message types
const (
	PeerGetConnection PeerMessageType = iota
	PeerSetConnection
	PeerGetRemoteCharacteristicValue
	PeerSetRemoteCharacteristicValue
)

// GatewayMessageType is the outer record type of a gateway frame.
type GatewayMessageType uint8

// Gateway message types
const (
	GatewayNumberOfDevices GatewayMessageType = iota
	GatewayDeviceInformation
	GatewayDeviceMessage
)

// DeviceType is the role a mission plays.
type DeviceType uint8

// Device types
const (
	TypeMotionModule DeviceType = iota
	TypeLeftInsole
	TypeRightInsole
)

// IsValid reports whether t is a known device type.
func (t DeviceType) IsValid() bool {
	return t <= TypeRightInsole
}

// IsInsole reports whether t is a left or right insole.
func (t DeviceType) IsInsole() bool {
	return t == TypeLeftInsole || t == TypeRightInsole
}

// IsRightInsole reports whether t is the right insole.
func (t DeviceType) IsRightInsole() bool {
	return t == TypeRightInsole
}

// Side returns the insole side, or SideNone for a motion module.
func (t DeviceType) Side() Side {
	switch t {
	case TypeLeftInsole:
		return SideLeft
	case TypeRightInsole:
		return SideRight
	}
	return SideNone
}

// Side identifies a foot.
type Side uint8

// Sides
const (
	SideNone Side = iota
	SideLeft
	SideRight
)

// SensorType is a sensor category inside sensor data and configurations.
type SensorType uint8

// Sensor types, in wire order
const (
	SensorMotion SensorType = iota
	SensorPressure
)

// MotionDataType is a motion sub-type.
type MotionDataType uint8

// Motion data types, in wire order
const (
	MotionAcceleration MotionDataType = iota
	MotionGravity
	MotionLinearAcceleration
	MotionRotationRate
	MotionMagnetometer
	MotionQuaternion
)

// MotionDataTypes lists every motion sub-type in wire order.
var MotionDataTypes = []MotionDataType{
	MotionAcceleration,
	MotionGravity,
	MotionLinearAcceleration,
	MotionRotationRate,
	MotionMagnetometer,
	MotionQuaternion,
}

// PressureDataType is a pressure sub-type.
type PressureDataType uint8

// Pressure data types, in wire order
const (
	PressureSingleByte PressureDataType = iota
	PressureDoubleByte
	PressureCenterOfMass
	PressureMass
	PressureHeelToToe
)

// PressureDataTypes lists every pressure sub-type in wire order.
var PressureDataTypes = []PressureDataType{
	PressureSingleByte,
	PressureDoubleByte,
	PressureCenterOfMass,
	PressureMass,
	PressureHeelToToe,
}

// Generation is the IMU chip family fitted to a mission.
type Generation uint8

// IMU generations
const (
	GenerationBNO085 Generation = iota
	GenerationBNO080
	GenerationBNO055
)

// IsBNO08x reports whether g belongs to the BNO08x family.
func (g Generation) IsBNO08x() bool {
	return g == GenerationBNO080 || g == GenerationBNO085
}

// Protocol limits
const (
	MaxNameLength       = 30
	MaxStringLength     = 255
	PressureSensorCount = 16
	SensorDataDelayStep = 20
	TimestampRollover   = 1 << 16

	// Gateway device sub-frames carry a one byte length.
	MaxDeviceFrameLength = 255
)

// Fixed payload sizes
const (
	motionCalibrationSize = 4
	vectorSize            = 6
	quaternionSize        = 8
)
