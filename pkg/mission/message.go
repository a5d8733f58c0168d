// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

// Message is a decoded inbound record.
type Message interface {
	MessageType() MessageType
}

// BatteryLevel reports the battery charge in percent.
type BatteryLevel struct {
	Level uint8
}

// TypeUpdate carries the device type, in reply to GET_TYPE or SET_TYPE.
type TypeUpdate struct {
	Reply MessageType
	Type  DeviceType
}

// NameUpdate carries the device name, in reply to GET_NAME or SET_NAME.
type NameUpdate struct {
	Reply MessageType
	Name  string
}

// CalibrationUpdate carries the IMU calibration status.
type CalibrationUpdate struct {
	Calibration MotionCalibration
}

// SensorDataConfigurationsUpdate carries the active sensor configuration.
type SensorDataConfigurationsUpdate struct {
	Reply          MessageType
	Configurations SensorDataConfigurations
}

// SensorDataUpdate carries one batch of sensor readings.
type SensorDataUpdate struct {
	Data SensorData
}

// WeightDataDelayUpdate carries the weight report interval in milliseconds.
type WeightDataDelayUpdate struct {
	Reply MessageType
	Delay uint16
}

// WeightUpdate carries the measured weight.
type WeightUpdate struct {
	Weight float32
}

// FileSent acknowledges an upload.
type FileSent struct {
	Path string
}

// FileReceiveHeader opens a download.
type FileReceiveHeader struct {
	Path string
	Size uint32
}

// FileChunk is a piece of a download. It spans the rest of its frame.
type FileChunk struct {
	Data []byte
}

// FileRemoved acknowledges REMOVE_FILE.
type FileRemoved struct {
	Path string
}

// FilesystemFormatted acknowledges FORMAT_FILESYSTEM.
type FilesystemFormatted struct{}

// FirmwareVersion carries the firmware version string.
type FirmwareVersion struct {
	Version string
}

// PeerConnectionUpdate reports the passthrough peer link state.
type PeerConnectionUpdate struct {
	Reply     PeerMessageType
	Connected bool
}

// PeerCharacteristicUpdate carries a remote characteristic value.
type PeerCharacteristicUpdate struct {
	Reply PeerMessageType
	Index uint8
	Value []byte
}

// Pong answers a gateway PING.
type Pong struct{}

func (BatteryLevel) MessageType() MessageType                     { return MsgBatteryLevel }
func (m TypeUpdate) MessageType() MessageType                     { return m.Reply }
func (m NameUpdate) MessageType() MessageType                     { return m.Reply }
func (CalibrationUpdate) MessageType() MessageType                { return MsgMotionCalibration }
func (m SensorDataConfigurationsUpdate) MessageType() MessageType { return m.Reply }
func (SensorDataUpdate) MessageType() MessageType                 { return MsgSensorData }
func (m WeightDataDelayUpdate) MessageType() MessageType          { return m.Reply }
func (WeightUpdate) MessageType() MessageType                     { return MsgWeightData }
func (FileSent) MessageType() MessageType                         { return MsgSendFile }
func (FileReceiveHeader) MessageType() MessageType                { return MsgReceiveFile }
func (FileChunk) MessageType() MessageType                        { return MsgReceiveFile }
func (FileRemoved) MessageType() MessageType                      { return MsgRemoveFile }
func (FilesystemFormatted) MessageType() MessageType              { return MsgFormatFilesystem }
func (FirmwareVersion) MessageType() MessageType                  { return MsgGetFirmwareVersion }
func (PeerConnectionUpdate) MessageType() MessageType             { return MsgPeer }
func (PeerCharacteristicUpdate) MessageType() MessageType         { return MsgPeer }
func (Pong) MessageType() MessageType                             { return MsgPing }
