// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

// ============================================================
// Framing Tests
// ============================================================

func TestCalculateCRC(t *testing.T) {
	is := is.New(t)
	is.Equal(CalculateCRC([]byte("123456789")), uint16(0x29B1))
}

func decodeAll(d *Decoder, data []byte) ([][]byte, []error) {
	var (
		frames [][]byte
		errs   []error
	)
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"plain", []byte{0x02, 0x04, 0x11}},
		{"special bytes", []byte{StartByte, EndByte, EscByte, 0x00, EscByte}},
		{"large", bytes.Repeat([]byte{0x7E, 0x01}, 600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			enc, err := EncodeFrame(tt.payload)
			is.NoErr(err)
			is.Equal(enc[0], byte(StartByte))
			is.Equal(enc[len(enc)-1], byte(EndByte))
			is.Equal(bytes.Count(enc, []byte{StartByte}), 1)

			frames, errs := decodeAll(NewDecoder(), enc)
			is.Equal(len(errs), 0)
			is.Equal(len(frames), 1)
			is.True(bytes.Equal(frames[0], tt.payload))
		})
	}
}

func TestFrameRejectsCorruption(t *testing.T) {
	is := is.New(t)
	enc, err := EncodeFrame([]byte{0x01, 0x02, 0x03})
	is.NoErr(err)
	enc[4] ^= 0x01 // payload byte

	frames, errs := decodeAll(NewDecoder(), enc)
	is.Equal(len(frames), 0)
	is.Equal(len(errs), 1)
	is.True(errors.Is(errs[0], ErrBadFrame))
}

func TestFrameTooLarge(t *testing.T) {
	is := is.New(t)
	_, err := EncodeFrame(make([]byte, MaxSerialPayload+1))
	is.True(errors.Is(err, ErrBadFrame))
}

func TestSerialConn(t *testing.T) {
	is := is.New(t)
	local, remote := net.Pipe()
	s := NewSerialConn(local, zerolog.Nop())
	defer s.Close()

	first, _ := EncodeFrame([]byte{0x01})
	bad, _ := EncodeFrame([]byte{0x02})
	bad[3] ^= 0x40
	second, _ := EncodeFrame([]byte{0x7E, 0x03})

	go func() {
		stream := append([]byte{0x00, 0x55}, first...)
		stream = append(stream, bad...)
		stream = append(stream, second...)
		remote.Write(stream)
	}()

	f, err := s.Receive()
	is.NoErr(err)
	is.Equal(f, []byte{0x01})
	f, err = s.Receive()
	is.NoErr(err)
	is.Equal(f, []byte{0x7E, 0x03})

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := remote.Read(buf)
		frames, _ := decodeAll(NewDecoder(), buf[:n])
		if len(frames) == 1 {
			got <- frames[0]
		} else {
			got <- nil
		}
	}()
	is.NoErr(s.Send([]byte{0x04, 0x7D}))
	is.Equal(<-got, []byte{0x04, 0x7D})
	is.Equal(s.Buffered(), 0)

	is.NoErr(s.Close())
	is.True(!s.Connected())
	is.True(errors.Is(s.Send([]byte{1}), ErrConnectionClosed))
}

// ============================================================
// WebSocket Tests
// ============================================================

func echoServer(t *testing.T, check func(*http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			c.WriteMessage(websocket.TextMessage, []byte("ignored"))
			c.WriteMessage(mt, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocketEcho(t *testing.T) {
	is := is.New(t)

	creds := make(chan [2]string, 1)
	srv := echoServer(t, func(r *http.Request) {
		user, pass, _ := r.BasicAuth()
		creds <- [2]string{user, pass}
	})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, err := DialWebSocket(context.Background(), wsURL, DialOptions{
		Username: "gait",
		Password: "secret",
		Logger:   zerolog.Nop(),
	})
	is.NoErr(err)
	defer conn.Close()
	is.Equal(<-creds, [2]string{"gait", "secret"})

	payload := bytes.Repeat([]byte{0xAB}, 3*writeChunk+17)
	is.NoErr(conn.Send(payload))

	got, err := conn.Receive()
	is.NoErr(err)
	is.True(bytes.Equal(got, payload))
	is.Equal(conn.Buffered(), 0)
	is.True(conn.Connected())

	is.NoErr(conn.Close())
	is.True(!conn.Connected())
	is.True(errors.Is(conn.Send([]byte{1}), ErrConnectionClosed))
}

func TestDialWebSocketRejectsScheme(t *testing.T) {
	is := is.New(t)
	_, err := DialWebSocket(context.Background(), "http://localhost/ws", DialOptions{})
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "unsupported URL scheme"))
}

func TestURLs(t *testing.T) {
	is := is.New(t)
	is.Equal(DeviceURL("192.168.1.20"), "ws://192.168.1.20/ws")
	is.Equal(GatewayURL("192.168.1.5"), "wss://192.168.1.5:8080")
	is.Equal(DeviceURL("ws://host:81/ws"), "ws://host:81/ws")
}
