// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gateway multiplexes several missions over one connection. The
// gateway announces its device count with NUMBER_OF_DEVICES; each device
// then talks through a slot that wraps its frames in DEVICE_MESSAGE.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/pkg/mission"
)

// Options configures a Gateway.
type Options struct {
	Generation     mission.Generation
	Logger         *zerolog.Logger
	Reconnect      bool
	ReconnectDelay time.Duration

	// Sensors, when set, is applied to every slot device after its handshake.
	Sensors *mission.SensorDataConfigurations
}

// Gateway owns the shared connection and one device per slot. Slots and
// their devices survive reconnects.
type Gateway struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	conn     device.Conn
	dial     device.DialFunc
	timer    *time.Timer
	closed   bool
	slots    []*device.Device
	requests []mission.GatewayMessageType

	// While held > 0 slot frames collect in pending and leave as one
	// DEVICE_MESSAGE block on release.
	held    int
	pending []mission.DeviceFrame

	handlers []func(int)
}

// New returns an unconnected gateway.
func New(opts Options) *Gateway {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = device.DefaultReconnectDelay
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "gateway").Logger()
	}
	return &Gateway{opts: opts, log: log}
}

// OnNumberOfDevices registers h, called with the device count every time
// the gateway announces it.
func (g *Gateway) OnNumberOfDevices(h func(n int)) {
	g.mu.Lock()
	g.handlers = append(g.handlers, h)
	g.mu.Unlock()
}

// Devices returns the slot devices in index order.
func (g *Gateway) Devices() []*device.Device {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*device.Device(nil), g.slots...)
}

// Device returns the device in slot index, or nil.
func (g *Gateway) Device(index int) *device.Device {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index < 0 || index >= len(g.slots) {
		return nil
	}
	return g.slots[index]
}

// Connect dials and starts the receive loop.
func (g *Gateway) Connect(ctx context.Context, dial device.DialFunc) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		conn.Close()
		return device.ErrDisconnected
	}
	g.dial = dial
	g.conn = conn
	g.mu.Unlock()

	g.log.Info().Msg("connected")
	go g.receive(conn)
	return nil
}

// Serve runs the receive loop on an already open connection. It returns
// when the connection fails.
func (g *Gateway) Serve(conn device.Conn) error {
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
	return g.receive(conn)
}

func (g *Gateway) receive(conn device.Conn) error {
	for {
		frame, err := conn.Receive()
		if err != nil {
			g.lost(conn, err)
			return err
		}
		g.HandleFrame(frame)
	}
}

func (g *Gateway) lost(conn device.Conn, cause error) {
	g.mu.Lock()
	if g.conn != conn {
		g.mu.Unlock()
		return
	}
	g.conn = nil
	g.requests = nil
	slots := append([]*device.Device(nil), g.slots...)
	if g.opts.Reconnect && !g.closed && g.dial != nil {
		g.timer = time.AfterFunc(g.opts.ReconnectDelay, g.redial)
	}
	g.mu.Unlock()

	g.log.Warn().Err(cause).Msg("connection lost")
	conn.Close()
	for _, d := range slots {
		d.Detach()
	}
}

func (g *Gateway) redial() {
	g.mu.Lock()
	dial, closed := g.dial, g.closed
	g.mu.Unlock()
	if closed || dial == nil {
		return
	}

	conn, err := dial(context.Background())
	if err != nil {
		g.log.Warn().Err(err).Msg("reconnect failed")
		g.mu.Lock()
		if !g.closed {
			g.timer = time.AfterFunc(g.opts.ReconnectDelay, g.redial)
		}
		g.mu.Unlock()
		return
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		conn.Close()
		return
	}
	g.conn = conn
	g.mu.Unlock()

	g.log.Info().Msg("reconnected")
	go g.receive(conn)
}

// Close stops reconnecting, detaches every slot and closes the connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
	}
	conn := g.conn
	g.conn = nil
	slots := append([]*device.Device(nil), g.slots...)
	g.mu.Unlock()

	for _, d := range slots {
		d.Detach()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// HandleFrame decodes one gateway frame. Device messages are handed to the
// slot device; an unknown index is logged and skipped. Whatever the slot
// devices flush while handling the frame goes out as a single frame.
func (g *Gateway) HandleFrame(frame []byte) {
	records, err := mission.ParseGatewayFrame(frame)
	if err != nil {
		g.log.Warn().Err(err).Hex("frame", frame).Msg("decode error")
	}

	var attach []*device.Device
	g.hold()
	for _, rec := range records {
		switch rec.Type {
		case mission.GatewayNumberOfDevices:
			attach = g.setNumberOfDevices(int(rec.NumberOfDevices))

		case mission.GatewayDeviceMessage:
			d := g.Device(int(rec.DeviceIndex))
			if d == nil {
				g.log.Warn().Uint8("index", rec.DeviceIndex).Msg("message for unknown device")
				continue
			}
			d.HandleFrame(rec.Payload)
		}
	}
	if err := g.release(); err != nil && !errors.Is(err, device.ErrNotConnected) {
		g.log.Warn().Err(err).Msg("send failed")
	}

	// Handshakes start after the batch went out.
	for i, d := range attach {
		d.Attach(&slot{gateway: g, index: uint8(i)})
	}
}

// setNumberOfDevices grows the slot list to n, queues a device information
// request and returns the slots to attach to the current connection.
func (g *Gateway) setNumberOfDevices(n int) []*device.Device {
	g.mu.Lock()
	for i := len(g.slots); i < n; i++ {
		label := fmt.Sprintf("slot%d", i)
		log := g.log.With().Int("index", i).Logger()
		g.slots = append(g.slots, device.New(device.Options{
			Label:      label,
			Generation: g.opts.Generation,
			Dialect:    mission.GatewayDialect,
			Logger:     &log,
			Sensors:    g.opts.Sensors,
		}))
	}
	slots := append([]*device.Device(nil), g.slots[:min(n, len(g.slots))]...)
	handlers := append([]func(int){}, g.handlers...)
	g.queueRequestLocked(mission.GatewayDeviceInformation)
	g.mu.Unlock()

	g.log.Info().Int("devices", n).Msg("number of devices")
	for _, h := range handlers {
		h(n)
	}
	return slots
}

func (g *Gateway) queueRequestLocked(t mission.GatewayMessageType) {
	for _, r := range g.requests {
		if r == t {
			return
		}
	}
	g.requests = append(g.requests, t)
}

// Flush sends queued gateway requests.
func (g *Gateway) Flush() error {
	return g.send(nil)
}

// Ping round-trips a PING through slot index.
func (g *Gateway) Ping(ctx context.Context, index int) (time.Duration, error) {
	d := g.Device(index)
	if d == nil {
		return 0, fmt.Errorf("%w: no device in slot %d", mission.ErrInvalidArgument, index)
	}
	return d.Ping(ctx)
}

// hold starts collecting slot frames. Calls nest; the outermost release
// sends.
func (g *Gateway) hold() {
	g.mu.Lock()
	g.held++
	g.mu.Unlock()
}

// release ends a hold and sends the collected frames with any queued
// requests.
func (g *Gateway) release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held--
	if g.held > 0 {
		return nil
	}
	return g.sendLocked()
}

// send queues an optional device frame and, unless held, writes it with
// the queued requests as one frame.
func (g *Gateway) send(df *mission.DeviceFrame) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil || !g.conn.Connected() {
		return device.ErrNotConnected
	}
	if df != nil {
		g.queueFrameLocked(*df)
	}
	if g.held > 0 {
		return nil
	}
	return g.sendLocked()
}

// queueFrameLocked appends df to the slot's pending payload while it fits
// in one DEVICE_MESSAGE entry.
func (g *Gateway) queueFrameLocked(df mission.DeviceFrame) {
	for i := range g.pending {
		p := &g.pending[i]
		if p.Index == df.Index && len(p.Payload)+len(df.Payload) <= mission.MaxDeviceFrameLength {
			p.Payload = append(p.Payload, df.Payload...)
			return
		}
	}
	g.pending = append(g.pending, mission.DeviceFrame{
		Index:   df.Index,
		Payload: append([]byte(nil), df.Payload...),
	})
}

func (g *Gateway) sendLocked() error {
	if len(g.pending) == 0 && len(g.requests) == 0 {
		return nil
	}
	devices := g.pending
	g.pending = nil
	if g.conn == nil || !g.conn.Connected() {
		return device.ErrNotConnected
	}

	frame, err := mission.EncodeGatewayFrame(g.requests, devices)
	if err != nil {
		return err
	}
	if err := g.conn.Send(frame); err != nil {
		return err
	}
	g.requests = nil
	return nil
}

func (g *Gateway) connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn != nil && g.conn.Connected()
}

func (g *Gateway) buffered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return 0
	}
	return g.conn.Buffered()
}

// slot is the device.Link of one gateway device.
type slot struct {
	gateway *Gateway
	index   uint8
}

func (s *slot) Send(frame []byte) error {
	if len(frame) > mission.MaxDeviceFrameLength {
		return fmt.Errorf("%w: device %d frame of %d bytes", mission.ErrInvalidArgument, s.index, len(frame))
	}
	return s.gateway.send(&mission.DeviceFrame{Index: s.index, Payload: frame})
}

func (s *slot) Connected() bool {
	return s.gateway.connected()
}

func (s *slot) Buffered() int {
	return s.gateway.buffered()
}
