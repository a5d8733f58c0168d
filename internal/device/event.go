// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"fmt"

	"github.com/Thermoquad/gait/pkg/mission"
)

// EventKind identifies a device event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventType
	EventName
	EventBatteryLevel
	EventFirmwareVersion
	EventMotionCalibration
	EventMotionFullyCalibrated
	EventMotion
	EventEuler
	EventPressure
	EventMass
	EventCenterOfMass
	EventHeelToToe
	EventSensorDataConfigurations
	EventWeightDataDelay
	EventWeight
	EventPeerConnection
	EventCharacteristic
	EventFileTransferProgress
	EventFileTransferComplete
	EventFileTransferFailed
	EventFirmwareUpdateProgress
	EventFirmwareUpdateComplete
	EventFirmwareUpdateFailed
	EventFileRemoved
	EventFilesystemFormatted
	EventDecodeError
)

var eventNames = map[EventKind]string{
	EventConnected:                "connected",
	EventDisconnected:             "disconnected",
	EventType:                     "type",
	EventName:                     "name",
	EventBatteryLevel:             "batterylevel",
	EventFirmwareVersion:          "firmwareversion",
	EventMotionCalibration:        "motioncalibration",
	EventMotionFullyCalibrated:    "motionisfullycalibrated",
	EventMotion:                   "motion",
	EventEuler:                    "euler",
	EventPressure:                 "pressure",
	EventMass:                     "mass",
	EventCenterOfMass:             "centerOfMass",
	EventHeelToToe:                "heelToToe",
	EventSensorDataConfigurations: "sensordataconfigurations",
	EventWeightDataDelay:          "weightdatadelay",
	EventWeight:                   "weight",
	EventPeerConnection:           "peerconnection",
	EventCharacteristic:           "characteristic",
	EventFileTransferProgress:     "filetransferprogress",
	EventFileTransferComplete:     "filetransfercomplete",
	EventFileTransferFailed:       "filetransferfailed",
	EventFirmwareUpdateProgress:   "firmwareupdateprogress",
	EventFirmwareUpdateComplete:   "firmwareupdatecomplete",
	EventFirmwareUpdateFailed:     "firmwareupdatefailed",
	EventFileRemoved:              "removefile",
	EventFilesystemFormatted:      "formatfilesystem",
	EventDecodeError:              "decodeerror",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// File is a completed download.
type File struct {
	Path string
	Data []byte
}

// Event is delivered to subscribers after the device lock is released.
type Event struct {
	Kind   EventKind
	Device *Device

	// Message is the decoded record behind the event, if any.
	Message mission.Message

	// Timestamp is the extended sensor clock for motion and pressure events.
	Timestamp uint64

	Motion          mission.MotionReading
	Pressure        mission.Pressure
	PressureReading mission.PressureReading

	// Progress is in [0, 1] for transfer progress events.
	Progress float64
	File     *File

	Err error
}

// Name returns the event name. Motion events are named by sub-type.
func (e Event) Name() string {
	if e.Kind == EventMotion {
		return e.Motion.Type.String()
	}
	return e.Kind.String()
}

// Handler receives device events.
type Handler func(Event)
