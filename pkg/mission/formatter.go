// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"fmt"
	"strings"
	"time"
)

func (t MessageType) String() string {
	switch t {
	case MsgBatteryLevel:
		return "BATTERY_LEVEL"
	case MsgGetType:
		return "GET_TYPE"
	case MsgSetType:
		return "SET_TYPE"
	case MsgGetName:
		return "GET_NAME"
	case MsgSetName:
		return "SET_NAME"
	case MsgMotionCalibration:
		return "MOTION_CALIBRATION"
	case MsgGetSensorDataConfigurations:
		return "GET_SENSOR_DATA_CONFIGURATIONS"
	case MsgSetSensorDataConfigurations:
		return "SET_SENSOR_DATA_CONFIGURATIONS"
	case MsgSensorData:
		return "SENSOR_DATA"
	case MsgGetWeightDataDelay:
		return "GET_WEIGHT_DATA_DELAY"
	case MsgSetWeightDataDelay:
		return "SET_WEIGHT_DATA_DELAY"
	case MsgWeightData:
		return "WEIGHT_DATA"
	case MsgReceiveFile:
		return "RECEIVE_FILE"
	case MsgSendFile:
		return "SEND_FILE"
	case MsgRemoveFile:
		return "REMOVE_FILE"
	case MsgFormatFilesystem:
		return "FORMAT_FILESYSTEM"
	case MsgGetFirmwareVersion:
		return "GET_FIRMWARE_VERSION"
	case MsgFirmwareUpdate:
		return "FIRMWARE_UPDATE"
	case MsgPeer:
		return "BLE_GENERIC_PEER"
	case MsgPing:
		return "PING"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

func (t PeerMessageType) String() string {
	switch t {
	case PeerGetConnection:
		return "GET_CONNECTION"
	case PeerSetConnection:
		return "SET_CONNECTION"
	case PeerGetRemoteCharacteristicValue:
		return "GET_REMOTE_CHARACTERISTIC_VALUE"
	case PeerSetRemoteCharacteristicValue:
		return "SET_REMOTE_CHARACTERISTIC_VALUE"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

func (t GatewayMessageType) String() string {
	switch t {
	case GatewayNumberOfDevices:
		return "NUMBER_OF_DEVICES"
	case GatewayDeviceInformation:
		return "DEVICE_INFORMATION"
	case GatewayDeviceMessage:
		return "DEVICE_MESSAGE"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

func (t DeviceType) String() string {
	switch t {
	case TypeMotionModule:
		return "motionModule"
	case TypeLeftInsole:
		return "leftInsole"
	case TypeRightInsole:
		return "rightInsole"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// ParseDeviceType accepts the names returned by DeviceType.String.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(s) {
	case "motionmodule", "motion", "module":
		return TypeMotionModule, nil
	case "leftinsole", "left":
		return TypeLeftInsole, nil
	case "rightinsole", "right":
		return TypeRightInsole, nil
	}
	return TypeMotionModule, fmt.Errorf("%w: unknown device type %q", ErrInvalidArgument, s)
}

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	}
	return "none"
}

func (t SensorType) String() string {
	switch t {
	case SensorMotion:
		return "motion"
	case SensorPressure:
		return "pressure"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

func (t MotionDataType) String() string {
	switch t {
	case MotionAcceleration:
		return "acceleration"
	case MotionGravity:
		return "gravity"
	case MotionLinearAcceleration:
		return "linearAcceleration"
	case MotionRotationRate:
		return "rotationRate"
	case MotionMagnetometer:
		return "magnetometer"
	case MotionQuaternion:
		return "quaternion"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

func (t PressureDataType) String() string {
	switch t {
	case PressureSingleByte:
		return "pressureSingleByte"
	case PressureDoubleByte:
		return "pressureDoubleByte"
	case PressureCenterOfMass:
		return "centerOfMass"
	case PressureMass:
		return "mass"
	case PressureHeelToToe:
		return "heelToToe"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// ParseMotionDataType accepts the names returned by MotionDataType.String.
func ParseMotionDataType(s string) (MotionDataType, error) {
	for _, t := range MotionDataTypes {
		if strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown motion data type %q", ErrInvalidArgument, s)
}

// ParsePressureDataType accepts the names returned by PressureDataType.String.
func ParsePressureDataType(s string) (PressureDataType, error) {
	for _, t := range PressureDataTypes {
		if strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown pressure data type %q", ErrInvalidArgument, s)
}

// FormatFrame formats a raw frame and its decoded messages for logging.
func FormatFrame(at time.Time, frame []byte, msgs []Message, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] len=%d % X\n", at.Format("15:04:05.000"), len(frame), frame)
	for _, m := range msgs {
		b.WriteString(FormatMessage(m))
	}
	if err != nil {
		fmt.Fprintf(&b, "  ! %v\n", err)
	}
	return b.String()
}

// FormatMessage formats one decoded message into a human-readable string.
func FormatMessage(m Message) string {
	name := m.MessageType().String()
	switch v := m.(type) {
	case BatteryLevel:
		return fmt.Sprintf("  %s: %d%%\n", name, v.Level)
	case TypeUpdate:
		return fmt.Sprintf("  %s: %s\n", name, v.Type)
	case NameUpdate:
		return fmt.Sprintf("  %s: %q\n", name, v.Name)
	case CalibrationUpdate:
		parts := make([]string, 0, len(v.Calibration.Names))
		for i, n := range v.Calibration.Names {
			parts = append(parts, fmt.Sprintf("%s=%d", n, v.Calibration.Values[i]))
		}
		return fmt.Sprintf("  %s: %s (full=%t)\n", name, strings.Join(parts, " "), v.Calibration.IsFullyCalibrated())
	case SensorDataConfigurationsUpdate:
		return fmt.Sprintf("  %s: %s\n", name, FormatSensorDataConfigurations(v.Configurations))
	case SensorDataUpdate:
		return formatSensorData(v.Data)
	case WeightDataDelayUpdate:
		return fmt.Sprintf("  %s: %d ms\n", name, v.Delay)
	case WeightUpdate:
		return fmt.Sprintf("  %s: %.3f\n", name, v.Weight)
	case FileSent:
		return fmt.Sprintf("  %s: %s\n", name, v.Path)
	case FileReceiveHeader:
		return fmt.Sprintf("  %s: %s (%d bytes)\n", name, v.Path, v.Size)
	case FileChunk:
		return fmt.Sprintf("  %s: chunk of %d bytes\n", name, len(v.Data))
	case FileRemoved:
		return fmt.Sprintf("  %s: %s\n", name, v.Path)
	case FirmwareVersion:
		return fmt.Sprintf("  %s: %s\n", name, v.Version)
	case PeerBatch:
		var b strings.Builder
		for _, r := range v.Records {
			b.WriteString(FormatMessage(r))
		}
		return b.String()
	case PeerConnectionUpdate:
		return fmt.Sprintf("  %s/%s: connected=%t\n", name, v.Reply, v.Connected)
	case PeerCharacteristicUpdate:
		return fmt.Sprintf("  %s/%s: #%d % X\n", name, v.Reply, v.Index, v.Value)
	}
	return fmt.Sprintf("  %s\n", name)
}

// FormatSensorDataConfigurations lists the enabled sub-types and delays.
func FormatSensorDataConfigurations(c SensorDataConfigurations) string {
	var parts []string
	for _, t := range MotionDataTypes {
		if d := c.Motion[t]; d > 0 {
			parts = append(parts, fmt.Sprintf("%s=%dms", t, d))
		}
	}
	for _, t := range PressureDataTypes {
		if d := c.Pressure[t]; d > 0 {
			parts = append(parts, fmt.Sprintf("%s=%dms", t, d))
		}
	}
	if len(parts) == 0 {
		return "(all disabled)"
	}
	return strings.Join(parts, " ")
}

func formatSensorData(d SensorData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  SENSOR_DATA: t=%d\n", d.Timestamp)
	for _, r := range d.Motion {
		switch r.Type {
		case MotionQuaternion:
			fmt.Fprintf(&b, "    %s: w=%.4f x=%.4f y=%.4f z=%.4f\n", r.Type, r.Quaternion.W, r.Quaternion.X, r.Quaternion.Y, r.Quaternion.Z)
		case MotionRotationRate:
			fmt.Fprintf(&b, "    %s: x=%.4f y=%.4f z=%.4f\n", r.Type, r.Euler.X, r.Euler.Y, r.Euler.Z)
		default:
			fmt.Fprintf(&b, "    %s: x=%.4f y=%.4f z=%.4f\n", r.Type, r.Vector.X, r.Vector.Y, r.Vector.Z)
		}
	}
	for _, r := range d.Pressure {
		switch r.Type {
		case PressureSingleByte, PressureDoubleByte:
			fmt.Fprintf(&b, "    %s: sum=%.0f mass=%.4f com=(%.3f, %.3f)\n", r.Type, r.Pressure.Sum, r.Mass, r.CenterOfMass.X, r.CenterOfMass.Y)
		case PressureCenterOfMass:
			fmt.Fprintf(&b, "    %s: (%.3f, %.3f)\n", r.Type, r.CenterOfMass.X, r.CenterOfMass.Y)
		case PressureMass:
			fmt.Fprintf(&b, "    %s: %.4f\n", r.Type, r.Mass)
		case PressureHeelToToe:
			fmt.Fprintf(&b, "    %s: %.4f\n", r.Type, r.HeelToToe)
		}
	}
	return b.String()
}
