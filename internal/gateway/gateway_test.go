// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/pkg/mission"
)

type fakeConn struct {
	in   chan []byte
	sent chan []byte

	mu     sync.Mutex
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), sent: make(chan []byte, 64)}
}

func (c *fakeConn) Receive() ([]byte, error) {
	f, ok := <-c.in
	if !ok {
		return nil, io.EOF
	}
	return f, nil
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.sent <- append([]byte(nil), frame...)
	return nil
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Buffered() int { return 0 }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) next(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-c.sent:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame sent")
		return nil
	}
}

func gtag(t mission.MessageType) byte {
	b, ok := mission.GatewayDialect.Encode(t)
	if !ok {
		panic("no gateway tag for " + t.String())
	}
	return b
}

func waitFor(t *testing.T, ch <-chan device.Event, kind device.EventKind) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Kind == kind {
				return
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

// startGateway serves conn and announces two devices. The returned channel
// carries the events of slot 1.
func startGateway(t *testing.T) (*Gateway, *fakeConn, <-chan device.Event) {
	t.Helper()
	g := New(Options{Generation: mission.GenerationBNO085})
	conn := newFakeConn()

	events := make(chan device.Event, 64)
	g.OnNumberOfDevices(func(n int) {
		g.Device(1).Subscribe(func(e device.Event) { events <- e })
	})

	go g.Serve(conn)
	conn.in <- []byte{byte(mission.GatewayNumberOfDevices), 2}
	return g, conn, events
}

func TestNumberOfDevicesCreatesSlots(t *testing.T) {
	is := is.New(t)
	g, conn, _ := startGateway(t)

	is.Equal(conn.next(t), []byte{byte(mission.GatewayDeviceInformation)})
	is.Equal(len(g.Devices()), 2)

	handshake := []byte{
		gtag(mission.MsgGetType),
		gtag(mission.MsgGetName),
		gtag(mission.MsgGetSensorDataConfigurations),
		gtag(mission.MsgBatteryLevel),
	}
	seen := map[byte]bool{}
	for range 2 {
		f := conn.next(t)
		is.Equal(f[0], byte(mission.GatewayDeviceMessage))
		is.Equal(int(f[2]), len(handshake))
		is.Equal(f[3:], handshake)
		seen[f[1]] = true
	}
	is.True(seen[0] && seen[1])
}

func TestDeviceMessageRouting(t *testing.T) {
	is := is.New(t)
	g, conn, events := startGateway(t)
	for range 3 {
		conn.next(t)
	}

	w := mission.NewWriter(40).
		U8(gtag(mission.MsgGetType)).U8(uint8(mission.TypeRightInsole)).
		U8(gtag(mission.MsgGetName)).String("R").
		U8(gtag(mission.MsgGetSensorDataConfigurations)).Raw(make([]byte, 22)).
		U8(gtag(mission.MsgBatteryLevel)).U8(50)
	inner, err := w.Bytes()
	is.NoErr(err)

	frame := append([]byte{byte(mission.GatewayDeviceMessage), 1, byte(len(inner))}, inner...)
	conn.in <- frame

	waitFor(t, events, device.EventConnected)
	is.Equal(g.Device(1).Type(), mission.TypeRightInsole)
	is.Equal(g.Device(0).Type(), mission.TypeMotionModule)
	is.True(!g.Device(0).Connected())
}

func TestPingThroughSlot(t *testing.T) {
	is := is.New(t)
	g, conn, events := startGateway(t)
	for range 3 {
		conn.next(t)
	}

	inner := []byte{
		gtag(mission.MsgGetType), uint8(mission.TypeMotionModule),
		gtag(mission.MsgGetName), 0,
		gtag(mission.MsgGetSensorDataConfigurations),
	}
	inner = append(inner, make([]byte, 22)...)
	inner = append(inner, gtag(mission.MsgBatteryLevel), 80)
	conn.in <- append([]byte{byte(mission.GatewayDeviceMessage), 1, byte(len(inner))}, inner...)
	waitFor(t, events, device.EventConnected)

	type result struct {
		rtt time.Duration
		err error
	}
	done := make(chan result, 1)
	go func() {
		rtt, err := g.Ping(context.Background(), 1)
		done <- result{rtt, err}
	}()

	ping := []byte{byte(mission.GatewayDeviceMessage), 1, 1, gtag(mission.MsgPing)}
	is.Equal(conn.next(t), ping)
	conn.in <- ping

	select {
	case r := <-done:
		is.NoErr(r.err)
		is.True(r.rtt >= 0)
	case <-time.After(2 * time.Second):
		t.Fatal("ping never resolved")
	}

	_, err := g.Ping(context.Background(), 7)
	is.True(errors.Is(err, mission.ErrInvalidArgument))
}

func TestUnknownIndexSkipped(t *testing.T) {
	is := is.New(t)
	g := New(Options{})

	g.HandleFrame([]byte{
		byte(mission.GatewayDeviceMessage), 9, 1, 0x00,
		byte(mission.GatewayNumberOfDevices), 1,
	})
	is.Equal(len(g.Devices()), 1)
	is.True(g.Device(9) == nil)
}

func TestSlotRejectsOversizedFrame(t *testing.T) {
	is := is.New(t)
	s := &slot{gateway: New(Options{}), index: 0}

	err := s.Send(make([]byte, mission.MaxDeviceFrameLength+1))
	is.True(errors.Is(err, mission.ErrInvalidArgument))

	err = s.Send([]byte{gtag(mission.MsgGetName)})
	is.True(errors.Is(err, device.ErrNotConnected))
}

func TestDisconnectKeepsSlots(t *testing.T) {
	is := is.New(t)
	g, conn, events := startGateway(t)
	for range 3 {
		conn.next(t)
	}

	close(conn.in)
	waitFor(t, events, device.EventDisconnected)
	is.Equal(len(g.Devices()), 2)
}

func TestHeldSlotFramesShareOneFrame(t *testing.T) {
	is := is.New(t)
	g := New(Options{})
	conn := newFakeConn()
	g.conn = conn
	a := &slot{gateway: g, index: 0}
	b := &slot{gateway: g, index: 1}

	g.hold()
	is.NoErr(a.Send([]byte{gtag(mission.MsgGetName)}))
	is.NoErr(b.Send([]byte{gtag(mission.MsgBatteryLevel)}))
	is.NoErr(a.Send([]byte{gtag(mission.MsgGetType)}))
	is.Equal(len(conn.sent), 0)
	is.NoErr(g.release())

	is.Equal(conn.next(t), []byte{
		byte(mission.GatewayDeviceMessage),
		0, 2, gtag(mission.MsgGetName), gtag(mission.MsgGetType),
		1, 1, gtag(mission.MsgBatteryLevel),
	})

	// not held: sent straight away
	is.NoErr(b.Send([]byte{gtag(mission.MsgGetName)}))
	is.Equal(conn.next(t), []byte{byte(mission.GatewayDeviceMessage), 1, 1, gtag(mission.MsgGetName)})

	g.mu.Lock()
	g.queueRequestLocked(mission.GatewayDeviceInformation)
	g.mu.Unlock()
	is.NoErr(g.Flush())
	is.Equal(conn.next(t), []byte{byte(mission.GatewayDeviceInformation)})
}
