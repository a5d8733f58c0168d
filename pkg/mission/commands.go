// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"fmt"
	"unicode/utf8"
)

// Command is one queued outbound record. Payload excludes the tag.
type Command struct {
	Type    MessageType
	Payload []byte
}

// PeerCommand is one record inside the peer passthrough block.
type PeerCommand struct {
	Type    PeerMessageType
	Index   uint8 // characteristic index, unused for connection records
	Payload []byte
}

// ============================================================================
// Builders
// ============================================================================

// NewGetCommand builds a tag-only request.
func NewGetCommand(t MessageType) Command {
	return Command{Type: t}
}

// NewSetTypeCommand builds SET_TYPE.
func NewSetTypeCommand(t DeviceType) (Command, error) {
	if !t.IsValid() {
		return Command{}, fmt.Errorf("%w: device type %d", ErrInvalidArgument, t)
	}
	return Command{Type: MsgSetType, Payload: []byte{byte(t)}}, nil
}

// TruncateName shortens name to MaxNameLength bytes without splitting a rune.
func TruncateName(name string) string {
	if len(name) <= MaxNameLength {
		return name
	}
	cut := MaxNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// NewSetNameCommand builds SET_NAME with the name truncated to MaxNameLength.
func NewSetNameCommand(name string) Command {
	w := NewWriter(1 + MaxNameLength)
	w.String(TruncateName(name))
	b, _ := w.Bytes()
	return Command{Type: MsgSetName, Payload: b}
}

// NewSetSensorDataConfigurationsCommand builds SET_SENSOR_DATA_CONFIGURATIONS.
func NewSetSensorDataConfigurationsCommand(c SensorDataConfigurations, includePressure bool) (Command, error) {
	body := EncodeSensorDataConfigurations(c, includePressure)
	if len(body) > 0xFF {
		return Command{}, fmt.Errorf("%w: sensor configuration of %d bytes", ErrInvalidArgument, len(body))
	}
	w := NewWriter(1 + len(body))
	w.U8(uint8(len(body))).Raw(body)
	b, _ := w.Bytes()
	return Command{Type: MsgSetSensorDataConfigurations, Payload: b}, nil
}

// NewSetWeightDataDelayCommand builds SET_WEIGHT_DATA_DELAY. The delay is
// sent as given; only sensor data delays are stepped.
func NewSetWeightDataDelayCommand(delay int) (Command, error) {
	if delay < 0 || delay > 0xFFFF {
		return Command{}, fmt.Errorf("%w: weight data delay %d", ErrInvalidArgument, delay)
	}
	b, _ := NewWriter(2).U16LE(uint16(delay)).Bytes()
	return Command{Type: MsgSetWeightDataDelay, Payload: b}, nil
}

// NewSendFileCommand announces an upload of size bytes to path.
func NewSendFileCommand(path string, size int) (Command, error) {
	if size < 0 || uint64(size) > 0xFFFFFFFF {
		return Command{}, fmt.Errorf("%w: file size %d", ErrInvalidArgument, size)
	}
	b, err := NewWriter(5 + len(path)).U32LE(uint32(size)).String(path).Bytes()
	if err != nil {
		return Command{}, err
	}
	return Command{Type: MsgSendFile, Payload: b}, nil
}

// NewReceiveFileCommand requests the contents of path.
func NewReceiveFileCommand(path string) (Command, error) {
	return pathCommand(MsgReceiveFile, path)
}

// NewRemoveFileCommand removes path.
func NewRemoveFileCommand(path string) (Command, error) {
	return pathCommand(MsgRemoveFile, path)
}

// NewFormatFilesystemCommand erases the device filesystem.
func NewFormatFilesystemCommand() Command {
	return Command{Type: MsgFormatFilesystem}
}

func pathCommand(t MessageType, path string) (Command, error) {
	b, err := NewWriter(1 + len(path)).String(path).Bytes()
	if err != nil {
		return Command{}, err
	}
	return Command{Type: t, Payload: b}, nil
}

// NewFirmwareUpdateCommand announces a firmware image of size bytes.
func NewFirmwareUpdateCommand(size int) (Command, error) {
	if size <= 0 || uint64(size) > 0xFFFFFFFF {
		return Command{}, fmt.Errorf("%w: firmware size %d", ErrInvalidArgument, size)
	}
	b, _ := NewWriter(4).U32LE(uint32(size)).Bytes()
	return Command{Type: MsgFirmwareUpdate, Payload: b}, nil
}

// NewPeerGetConnectionCommand asks whether the peer link is up.
func NewPeerGetConnectionCommand() PeerCommand {
	return PeerCommand{Type: PeerGetConnection}
}

// NewPeerSetConnectionCommand connects or disconnects the peer.
func NewPeerSetConnectionCommand(connect bool) PeerCommand {
	b, _ := NewWriter(1).Bool(connect).Bytes()
	return PeerCommand{Type: PeerSetConnection, Payload: b}
}

// NewPeerGetCharacteristicCommand reads a remote characteristic.
func NewPeerGetCharacteristicCommand(index uint8) PeerCommand {
	return PeerCommand{Type: PeerGetRemoteCharacteristicValue, Index: index, Payload: []byte{index}}
}

// NewPeerSetCharacteristicCommand writes a remote characteristic.
func NewPeerSetCharacteristicCommand(index uint8, value []byte) PeerCommand {
	b, _ := NewWriter(1 + len(value)).U8(index).Raw(value).Bytes()
	return PeerCommand{Type: PeerSetRemoteCharacteristicValue, Index: index, Payload: b}
}

// ============================================================================
// Queue
// ============================================================================

type peerKey struct {
	typ   PeerMessageType
	index uint8
}

// CommandQueue coalesces outbound commands until the next flush. It keeps
// at most one command per message type, in first-insertion order; a later
// Set replaces the payload in place. It is not safe for concurrent use.
type CommandQueue struct {
	order    []MessageType
	commands map[MessageType]Command

	peerOrder []peerKey
	peer      map[peerKey]PeerCommand
}

// Set queues cmd, replacing any queued command of the same type.
func (q *CommandQueue) Set(cmd Command) {
	if q.commands == nil {
		q.commands = make(map[MessageType]Command)
	}
	if _, ok := q.commands[cmd.Type]; !ok {
		q.order = append(q.order, cmd.Type)
	}
	q.commands[cmd.Type] = cmd
}

// Delete drops a queued command.
func (q *CommandQueue) Delete(t MessageType) {
	if _, ok := q.commands[t]; !ok {
		return
	}
	delete(q.commands, t)
	for i, o := range q.order {
		if o == t {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Has reports whether a command of type t is queued.
func (q *CommandQueue) Has(t MessageType) bool {
	_, ok := q.commands[t]
	return ok
}

// SetPeer queues a peer record. Characteristic records are keyed by index.
func (q *CommandQueue) SetPeer(cmd PeerCommand) {
	if q.peer == nil {
		q.peer = make(map[peerKey]PeerCommand)
	}
	k := peerKey{typ: cmd.Type, index: cmd.Index}
	if _, ok := q.peer[k]; !ok {
		q.peerOrder = append(q.peerOrder, k)
	}
	q.peer[k] = cmd
}

// DeletePeer drops a queued peer record.
func (q *CommandQueue) DeletePeer(t PeerMessageType, index uint8) {
	k := peerKey{typ: t, index: index}
	if _, ok := q.peer[k]; !ok {
		return
	}
	delete(q.peer, k)
	for i, o := range q.peerOrder {
		if o == k {
			q.peerOrder = append(q.peerOrder[:i], q.peerOrder[i+1:]...)
			break
		}
	}
}

// Len returns the number of queued records, peer records included.
func (q *CommandQueue) Len() int {
	return len(q.order) + len(q.peerOrder)
}

// Reset drops everything queued.
func (q *CommandQueue) Reset() {
	q.order = nil
	q.commands = nil
	q.peerOrder = nil
	q.peer = nil
}

// Flatten encodes the queue as one frame and clears it. Peer records are
// appended last as a single MsgPeer block. Commands the dialect cannot
// carry fail the whole flush and leave the queue untouched.
func (q *CommandQueue) Flatten(d *Dialect) ([]byte, error) {
	var out []byte
	for _, t := range q.order {
		tag, ok := d.Encode(t)
		if !ok {
			return nil, fmt.Errorf("%w: %s not supported by %s dialect", ErrUnknownMessageType, t, d.Name())
		}
		out = append(out, tag)
		out = append(out, q.commands[t].Payload...)
	}

	if len(q.peerOrder) > 0 {
		tag, ok := d.Encode(MsgPeer)
		if !ok {
			return nil, fmt.Errorf("%w: %s not supported by %s dialect", ErrUnknownMessageType, MsgPeer, d.Name())
		}
		var block []byte
		for _, k := range q.peerOrder {
			block = append(block, byte(k.typ))
			block = append(block, q.peer[k].Payload...)
		}
		if len(block) > 0xFF {
			return nil, fmt.Errorf("%w: peer block of %d bytes", ErrInvalidArgument, len(block))
		}
		out = append(out, tag, byte(len(block)))
		out = append(out, block...)
	}

	q.Reset()
	return out, nil
}
