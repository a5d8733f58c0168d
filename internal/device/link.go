// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned for commands issued without an open link.
	ErrNotConnected = errors.New("device: not connected")

	// ErrDisconnected rejects every pending request when the link goes away.
	ErrDisconnected = errors.New("device: disconnected")

	// ErrUnsupported is returned for commands the link's dialect cannot carry.
	ErrUnsupported = errors.New("device: unsupported by dialect")
)

// Link is the transport capability a device needs. Direct connections and
// gateway slots both implement it.
type Link interface {
	// Send writes one outbound frame.
	Send(frame []byte) error

	// Connected reports whether Send can succeed.
	Connected() bool

	// Buffered returns the number of bytes accepted by Send but not yet
	// written to the wire.
	Buffered() int
}

// Conn is a Link that owns its own receive side.
type Conn interface {
	Link

	// Receive blocks until the next inbound frame.
	Receive() ([]byte, error)

	Close() error
}

// DialFunc opens a new connection. It is called again on reconnect.
type DialFunc func(ctx context.Context) (Conn, error)
