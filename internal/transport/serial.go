// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// SerialConn carries protocol frames over a UART bridge.
type SerialConn struct {
	port io.ReadWriteCloser
	log  zerolog.Logger

	dec     *Decoder
	buf     []byte
	pending []byte

	writeMu  sync.Mutex
	buffered atomic.Int64
	closed   atomic.Bool
}

// OpenSerial opens a serial port at baudRate, 8N1.
func OpenSerial(portName string, baudRate int, log zerolog.Logger) (*SerialConn, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return NewSerialConn(port, log), nil
}

// NewSerialConn wraps an already open byte stream.
func NewSerialConn(port io.ReadWriteCloser, log zerolog.Logger) *SerialConn {
	return &SerialConn{
		port: port,
		log:  log,
		dec:  NewDecoder(),
		buf:  make([]byte, 256),
	}
}

// Receive returns the next valid frame. Corrupt frames are logged and skipped.
func (s *SerialConn) Receive() ([]byte, error) {
	for {
		for len(s.pending) > 0 {
			b := s.pending[0]
			s.pending = s.pending[1:]
			frame, err := s.dec.DecodeByte(b)
			if err != nil {
				s.log.Warn().Err(err).Msg("serial frame dropped")
				continue
			}
			if frame != nil {
				return frame, nil
			}
		}

		n, err := s.port.Read(s.buf)
		if n > 0 {
			s.pending = s.buf[:n]
		}
		if err != nil && n == 0 {
			s.closed.Store(true)
			if errors.Is(err, io.EOF) {
				return nil, ErrConnectionClosed
			}
			return nil, err
		}
	}
}

// Send encodes and writes one frame.
func (s *SerialConn) Send(frame []byte) error {
	if s.closed.Load() {
		return ErrConnectionClosed
	}
	data, err := EncodeFrame(frame)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.buffered.Add(int64(len(data)))
	defer s.buffered.Add(-int64(len(data)))
	_, err = s.port.Write(data)
	return err
}

// Connected reports whether the port is still open.
func (s *SerialConn) Connected() bool {
	return !s.closed.Load()
}

// Buffered returns the bytes of the frame currently being written.
func (s *SerialConn) Buffered() int {
	return int(s.buffered.Load())
}

func (s *SerialConn) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.port.Close()
}
