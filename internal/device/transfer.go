// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"time"

	"github.com/Thermoquad/gait/pkg/mission"
)

// TransferState is the state of the per-device transfer session.
type TransferState int

const (
	TransferIdle TransferState = iota
	TransferSending
	TransferReceiving
	TransferUpdating
	TransferRemoving
	TransferFormatting
)

func (s TransferState) String() string {
	switch s {
	case TransferIdle:
		return "idle"
	case TransferSending:
		return "sending"
	case TransferReceiving:
		return "receiving"
	case TransferUpdating:
		return "updating"
	case TransferRemoving:
		return "removing"
	case TransferFormatting:
		return "formatting"
	}
	return "unknown"
}

// transfer is the single active session of a device. A nil session is idle.
type transfer struct {
	state TransferState
	path  string

	// send and firmware update
	initial int
	stop    chan struct{}

	// receive
	size       int
	headerSeen bool
	data       []byte
}

// TransferState returns the current session state.
func (d *Device) TransferState() TransferState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transfer == nil {
		return TransferIdle
	}
	return d.transfer.state
}

// busyLocked reports an active session. New transfers are then ignored.
func (d *Device) busyLocked(what string) bool {
	if d.transfer == nil {
		return false
	}
	d.log.Warn().Str("active", d.transfer.state.String()).Msgf("%s ignored while a transfer is active", what)
	return true
}

// SendFile uploads data to path. Progress is reported through
// EventFileTransferProgress until EventFileTransferComplete. A request
// made while another transfer is active does nothing and returns nil.
func (d *Device) SendFile(path string, data []byte) error {
	cmd, err := mission.NewSendFileCommand(path, len(data))
	if err != nil {
		return err
	}
	return d.startSend(TransferSending, mission.MsgSendFile, cmd, path, data)
}

// UpdateFirmware streams a firmware image. Progress is reported through
// EventFirmwareUpdateProgress until EventFirmwareUpdateComplete. It shares
// the transfer session with file transfers.
func (d *Device) UpdateFirmware(image []byte) error {
	cmd, err := mission.NewFirmwareUpdateCommand(len(image))
	if err != nil {
		return err
	}
	return d.startSend(TransferUpdating, mission.MsgFirmwareUpdate, cmd, "", image)
}

func (d *Device) startSend(state TransferState, t mission.MessageType, cmd mission.Command, path string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(t); err != nil {
		return err
	}
	if d.busyLocked(t.String()) {
		return nil
	}

	d.queue.Set(cmd)
	if err := d.flushLocked(); err != nil {
		return err
	}
	if err := d.link.Send(data); err != nil {
		return err
	}

	s := &transfer{
		state:   state,
		path:    path,
		initial: d.link.Buffered(),
		stop:    make(chan struct{}),
	}
	d.transfer = s
	d.log.Info().Str("state", state.String()).Str("path", path).Int("bytes", len(data)).Msg("transfer started")

	go d.poll(s, d.opts.PollInterval)
	return nil
}

// poll reports send progress from the link's unsent byte count until it
// drains or the session ends.
func (d *Device) poll(s *transfer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		if d.transfer != s || d.link == nil {
			d.mu.Unlock()
			return
		}
		var events []Event
		done := d.sendProgressLocked(s, &events)
		d.mu.Unlock()

		d.dispatch(events)
		if done {
			return
		}
	}
}

func (d *Device) sendProgressLocked(s *transfer, events *[]Event) bool {
	progressKind, completeKind := EventFileTransferProgress, EventFileTransferComplete
	if s.state == TransferUpdating {
		progressKind, completeKind = EventFirmwareUpdateProgress, EventFirmwareUpdateComplete
	}

	outstanding := d.link.Buffered()
	progress := 1.0
	if s.initial > 0 {
		progress = 1 - float64(outstanding)/float64(s.initial)
	}
	progress = min(max(progress, 0), 1)

	*events = append(*events, Event{Kind: progressKind, Progress: progress})
	if outstanding > 0 {
		return false
	}

	d.transfer = nil
	d.log.Info().Str("state", s.state.String()).Msg("transfer complete")
	*events = append(*events, Event{Kind: completeKind, Progress: 1})
	return true
}

// ReceiveFile downloads path. The device answers with a header carrying
// the size, then raw chunks. Progress is reported through
// EventFileTransferProgress and the file through EventFileTransferComplete.
// A request made while another transfer is active does nothing.
func (d *Device) ReceiveFile(path string) error {
	cmd, err := mission.NewReceiveFileCommand(path)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(mission.MsgReceiveFile); err != nil {
		return err
	}
	if d.busyLocked("receive file") {
		return nil
	}

	d.parser.BeginFileReceive()
	d.queue.Set(cmd)
	if err := d.flushLocked(); err != nil {
		return err
	}
	d.transfer = &transfer{state: TransferReceiving, path: path}
	return nil
}

func (d *Device) receiveHeaderLocked(m mission.FileReceiveHeader, events *[]Event) {
	s := d.transfer
	if s == nil || s.state != TransferReceiving {
		d.log.Warn().Str("path", m.Path).Msg("unexpected file header")
		return
	}
	s.headerSeen = true
	s.path = m.Path
	s.size = int(m.Size)
	s.data = make([]byte, 0, s.size)
	d.log.Info().Str("path", m.Path).Uint32("size", m.Size).Msg("receiving file")

	if s.size == 0 {
		d.completeReceiveLocked(s, events)
	}
}

func (d *Device) receiveChunkLocked(m mission.FileChunk, events *[]Event) {
	s := d.transfer
	if s == nil || s.state != TransferReceiving || !s.headerSeen {
		d.log.Warn().Int("bytes", len(m.Data)).Msg("unexpected file chunk")
		return
	}

	room := s.size - len(s.data)
	chunk := m.Data
	if len(chunk) > room {
		chunk = chunk[:room]
	}
	s.data = append(s.data, chunk...)

	*events = append(*events, Event{
		Kind:     EventFileTransferProgress,
		Progress: float64(len(s.data)) / float64(s.size),
	})
	if len(s.data) == s.size {
		d.completeReceiveLocked(s, events)
	}
}

func (d *Device) completeReceiveLocked(s *transfer, events *[]Event) {
	d.transfer = nil
	*events = append(*events, Event{
		Kind:     EventFileTransferComplete,
		Progress: 1,
		File:     &File{Path: s.path, Data: s.data},
	})
}

// RemoveFile deletes path on the device. EventFileRemoved follows the
// device's acknowledgement.
func (d *Device) RemoveFile(path string) error {
	cmd, err := mission.NewRemoveFileCommand(path)
	if err != nil {
		return err
	}
	return d.startSimple(TransferRemoving, cmd, path)
}

// FormatFilesystem erases the device filesystem. EventFilesystemFormatted
// follows the device's acknowledgement.
func (d *Device) FormatFilesystem() error {
	return d.startSimple(TransferFormatting, mission.NewFormatFilesystemCommand(), "")
}

func (d *Device) startSimple(state TransferState, cmd mission.Command, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(cmd.Type); err != nil {
		return err
	}
	if d.busyLocked(cmd.Type.String()) {
		return nil
	}
	d.queue.Set(cmd)
	if err := d.flushLocked(); err != nil {
		return err
	}
	d.transfer = &transfer{state: state, path: path}
	return nil
}

// abortTransferLocked ends the active session with a failure event.
// Partially received data is dropped.
func (d *Device) abortTransferLocked(err error, events *[]Event) {
	s := d.transfer
	if s == nil {
		return
	}
	d.transfer = nil
	if s.stop != nil {
		close(s.stop)
	}

	kind := EventFileTransferFailed
	if s.state == TransferUpdating {
		kind = EventFirmwareUpdateFailed
	}
	d.log.Warn().Err(err).Str("state", s.state.String()).Msg("transfer aborted")
	*events = append(*events, Event{Kind: kind, Err: err})
}
