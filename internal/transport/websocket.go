// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the byte transports a mission can be reached
// over: a WebSocket (direct or through a gateway) and a serial bridge.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrConnectionClosed is returned after the connection has failed or closed.
var ErrConnectionClosed = errors.New("transport: connection closed")

// writeChunk is the size of each write into a WebSocket message. Buffered
// drops as chunks reach the socket.
const writeChunk = 1024

// DialOptions configures DialWebSocket.
type DialOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
	Logger        zerolog.Logger
}

// WebSocketConn sends and receives binary WebSocket messages. Sends are
// queued to a writer goroutine so Buffered reports unsent bytes.
type WebSocketConn struct {
	conn *websocket.Conn
	log  zerolog.Logger

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	buffered  atomic.Int64
}

// DeviceURL returns the WebSocket URL of a directly connected mission.
// A value that already has a scheme is returned unchanged.
func DeviceURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "ws://" + addr + "/ws"
}

// GatewayURL returns the WebSocket URL of a gateway.
func GatewayURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "wss://" + addr + ":8080"
}

// DialWebSocket opens a WebSocket connection with optional HTTP Basic auth.
func DialWebSocket(ctx context.Context, wsURL string, opts DialOptions) (*WebSocketConn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	opts.Logger.Debug().Str("url", wsURL).Msg("websocket connected")
	return NewWebSocketConn(conn, opts.Logger), nil
}

// NewWebSocketConn wraps an established connection and starts its writer.
func NewWebSocketConn(conn *websocket.Conn, log zerolog.Logger) *WebSocketConn {
	w := &WebSocketConn{
		conn: conn,
		log:  log,
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go w.writeLoop()
	return w
}

func (w *WebSocketConn) writeLoop() {
	for {
		select {
		case <-w.done:
			return
		case frame := <-w.out:
			if err := w.write(frame); err != nil {
				w.log.Warn().Err(err).Msg("websocket write failed")
				w.shutdown()
				return
			}
		}
	}
}

func (w *WebSocketConn) write(frame []byte) error {
	wr, err := w.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		w.buffered.Add(-int64(len(frame)))
		return err
	}
	for len(frame) > 0 {
		n := min(writeChunk, len(frame))
		if _, err := wr.Write(frame[:n]); err != nil {
			w.buffered.Add(-int64(len(frame)))
			return err
		}
		w.buffered.Add(-int64(n))
		frame = frame[n:]
	}
	return wr.Close()
}

// Send queues frame as one binary message.
func (w *WebSocketConn) Send(frame []byte) error {
	if w.closed.Load() {
		return ErrConnectionClosed
	}
	if len(frame) == 0 {
		return nil
	}
	w.buffered.Add(int64(len(frame)))
	select {
	case w.out <- frame:
		return nil
	case <-w.done:
		w.buffered.Add(-int64(len(frame)))
		return ErrConnectionClosed
	}
}

// Receive returns the next binary message. Text messages are skipped.
func (w *WebSocketConn) Receive() ([]byte, error) {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.shutdown()
			return nil, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

// Connected reports whether the connection is still usable.
func (w *WebSocketConn) Connected() bool {
	return !w.closed.Load()
}

// Buffered returns the bytes queued by Send but not yet written.
func (w *WebSocketConn) Buffered() int {
	return int(w.buffered.Load())
}

func (w *WebSocketConn) shutdown() {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.done)
	})
}

// Close sends a close message and closes the socket.
func (w *WebSocketConn) Close() error {
	wasClosed := w.closed.Load()
	w.shutdown()
	if !wasClosed {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	return w.conn.Close()
}
