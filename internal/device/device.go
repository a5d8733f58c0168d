// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device is the host side connection object for one mission. It
// owns the outbound command queue, correlates replies with pending
// requests, runs file and firmware transfers and reconnects.
package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/gait/pkg/mission"
)

// Defaults
const (
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultReconnectDelay = 3 * time.Second
)

// Options configures a Device.
type Options struct {
	// Label names the device in logs until its name is known.
	Label string

	Generation mission.Generation

	// Dialect defaults to mission.DirectDialect.
	Dialect *mission.Dialect

	Logger *zerolog.Logger

	PollInterval   time.Duration
	Reconnect      bool
	ReconnectDelay time.Duration

	// DisableSensorsOnClose sends an all-zero configuration before Close.
	DisableSensorsOnClose bool

	// Sensors, when set, is applied after every handshake.
	Sensors *mission.SensorDataConfigurations
}

// Device is one mission. All methods are safe for concurrent use.
type Device struct {
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	link   Link
	conn   Conn
	dial   DialFunc
	timer  *time.Timer
	closed bool

	parser      *mission.Parser
	queue       mission.CommandQueue
	initialSent bool
	connected   bool

	calls map[callKey]*call
	cache cache

	motion      mission.Motion
	pressure    mission.Pressure
	calibration *mission.MotionCalibration
	weight      float32
	transfer    *transfer
	stats       *mission.Statistics

	subsMu  sync.Mutex
	subs    map[int]Handler
	nextSub int
}

// cache holds the values answered by get requests. It is dropped on
// disconnect.
type cache struct {
	typ             *mission.DeviceType
	name            *string
	battery         *uint8
	configurations  *mission.SensorDataConfigurations
	weightDelay     *uint16
	firmware        *string
	peerConnected   *bool
	characteristics map[uint8][]byte
}

// New returns an unconnected device.
func New(opts Options) *Device {
	if opts.Dialect == nil {
		opts.Dialect = mission.DirectDialect
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	if opts.Label != "" {
		log = log.With().Str("device", opts.Label).Logger()
	}

	return &Device{
		opts:   opts,
		log:    log,
		parser: mission.NewParser(opts.Dialect, opts.Generation),
		calls:  make(map[callKey]*call),
		stats:  mission.NewStatistics(),
		subs:   make(map[int]Handler),
	}
}

// Label returns the name given in Options.
func (d *Device) Label() string {
	return d.opts.Label
}

// Generation returns the IMU generation used for decoding.
func (d *Device) Generation() mission.Generation {
	return d.opts.Generation
}

// Subscribe registers h for every event. The returned func unsubscribes.
func (d *Device) Subscribe(h Handler) func() {
	d.subsMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = h
	d.subsMu.Unlock()

	return func() {
		d.subsMu.Lock()
		delete(d.subs, id)
		d.subsMu.Unlock()
	}
}

func (d *Device) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	d.subsMu.Lock()
	ids := make([]int, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, d.subs[id])
	}
	d.subsMu.Unlock()

	for _, e := range events {
		e.Device = d
		for _, h := range handlers {
			h(e)
		}
	}
}

// Connected reports whether the handshake has completed on an open link.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected && d.link != nil && d.link.Connected()
}

// ============================================================================
// Connection lifecycle
// ============================================================================

// Connect dials, starts the receive loop and runs the handshake. With
// Options.Reconnect a lost connection is redialed after ReconnectDelay.
func (d *Device) Connect(ctx context.Context, dial DialFunc) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		conn.Close()
		return ErrDisconnected
	}
	d.dial = dial
	d.conn = conn
	d.mu.Unlock()

	d.Attach(conn)
	go d.readLoop(conn)
	return nil
}

func (d *Device) readLoop(conn Conn) {
	for {
		frame, err := conn.Receive()
		if err != nil {
			d.lost(conn, err)
			return
		}
		d.HandleFrame(frame)
	}
}

func (d *Device) lost(conn Conn, cause error) {
	d.mu.Lock()
	if d.conn != conn {
		d.mu.Unlock()
		return
	}
	d.log.Warn().Err(cause).Msg("connection lost")
	d.conn = nil
	var events []Event
	d.detachLocked(&events)
	if d.opts.Reconnect && !d.closed && d.dial != nil {
		d.log.Info().Dur("delay", d.opts.ReconnectDelay).Msg("reconnect scheduled")
		d.timer = time.AfterFunc(d.opts.ReconnectDelay, d.redial)
	}
	d.mu.Unlock()

	conn.Close()
	d.dispatch(events)
}

func (d *Device) redial() {
	d.mu.Lock()
	dial := d.dial
	closed := d.closed
	d.mu.Unlock()
	if closed || dial == nil {
		return
	}

	conn, err := dial(context.Background())
	if err != nil {
		d.log.Warn().Err(err).Msg("reconnect failed")
		d.mu.Lock()
		if !d.closed {
			d.timer = time.AfterFunc(d.opts.ReconnectDelay, d.redial)
		}
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		conn.Close()
		return
	}
	d.conn = conn
	d.mu.Unlock()

	d.Attach(conn)
	go d.readLoop(conn)
}

// Attach binds the device to a link and starts the handshake. Gateways
// call it for their slots; the caller then feeds frames to HandleFrame.
func (d *Device) Attach(link Link) {
	d.attach(link, true)
}

func (d *Device) attach(link Link, handshake bool) {
	d.mu.Lock()
	var events []Event
	if d.link != nil {
		d.detachLocked(&events)
	}
	d.link = link
	d.parser.Reset()
	d.stats = mission.NewStatistics()
	d.mu.Unlock()
	d.dispatch(events)

	if handshake {
		go d.handshake(link)
		return
	}

	d.mu.Lock()
	d.initialSent = true
	d.connected = true
	d.mu.Unlock()
	d.dispatch([]Event{{Kind: EventConnected}})
}

// handshake queues the initial queries, flushes them as one frame and
// emits EventConnected once every reply arrived.
func (d *Device) handshake(link Link) {
	queries := []struct {
		key callKey
		cmd mission.Command
	}{
		{callKey{kind: mission.MsgGetType}, mission.NewGetCommand(mission.MsgGetType)},
		{callKey{kind: mission.MsgGetFirmwareVersion}, mission.NewGetCommand(mission.MsgGetFirmwareVersion)},
		{callKey{kind: mission.MsgGetName}, mission.NewGetCommand(mission.MsgGetName)},
		{callKey{kind: mission.MsgGetSensorDataConfigurations}, mission.NewGetCommand(mission.MsgGetSensorDataConfigurations)},
		{callKey{kind: mission.MsgPeer, peer: mission.PeerGetConnection}, mission.Command{}},
		{callKey{kind: mission.MsgBatteryLevel}, mission.NewGetCommand(mission.MsgBatteryLevel)},
	}

	d.mu.Lock()
	if d.link != link {
		d.mu.Unlock()
		return
	}
	var pending []*call
	for _, q := range queries {
		if !d.parser.Dialect().Supports(q.key.kind) {
			continue
		}
		cmd := q.cmd
		pending = append(pending, d.beginLocked(q.key, func(cq *mission.CommandQueue) {
			if q.key.kind == mission.MsgPeer {
				cq.SetPeer(mission.NewPeerGetConnectionCommand())
				return
			}
			cq.Set(cmd)
		}))
	}
	err := d.flushLocked()
	d.initialSent = true
	d.mu.Unlock()

	if err != nil {
		d.log.Error().Err(err).Msg("handshake send failed")
		return
	}

	for _, c := range pending {
		if _, err := c.wait(context.Background()); err != nil {
			d.log.Debug().Err(err).Msg("handshake aborted")
			return
		}
	}

	d.mu.Lock()
	if d.link != link {
		d.mu.Unlock()
		return
	}
	d.connected = true
	d.mu.Unlock()

	d.log.Info().Msg("connected")
	d.dispatch([]Event{{Kind: EventConnected}})

	if d.opts.Sensors != nil {
		if _, err := d.SetSensorDataConfigurations(context.Background(), *d.opts.Sensors); err != nil {
			d.log.Warn().Err(err).Msg("applying sensor configuration failed")
		}
	}
}

// Detach drops the link. Pending requests fail with ErrDisconnected and an
// active transfer is aborted.
func (d *Device) Detach() {
	d.mu.Lock()
	var events []Event
	d.detachLocked(&events)
	d.mu.Unlock()
	d.dispatch(events)
}

func (d *Device) detachLocked(events *[]Event) {
	if d.link == nil {
		return
	}
	wasConnected := d.connected

	d.link = nil
	d.initialSent = false
	d.connected = false
	d.queue.Reset()
	d.parser.Reset()

	d.abortTransferLocked(ErrDisconnected, events)
	for k, c := range d.calls {
		delete(d.calls, k)
		c.resolve(nil, ErrDisconnected)
	}
	d.cache = cache{}
	d.calibration = nil

	if wasConnected {
		d.log.Info().Msg("disconnected")
	}
	*events = append(*events, Event{Kind: EventDisconnected})
}

// Close stops reconnecting and closes the connection. With
// DisableSensorsOnClose every sensor is switched off first.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.opts.DisableSensorsOnClose && d.link != nil && d.link.Connected() {
		cmd, err := mission.NewSetSensorDataConfigurationsCommand(mission.DisabledSensorDataConfigurations(), d.parser.Type().IsInsole())
		if err == nil {
			d.queue.Set(cmd)
			err = d.flushLocked()
		}
		if err != nil {
			d.log.Warn().Err(err).Msg("disabling sensors failed")
		}
	}
	conn := d.conn
	d.conn = nil
	var events []Event
	d.detachLocked(&events)
	d.mu.Unlock()

	d.dispatch(events)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ============================================================================
// Inbound
// ============================================================================

// HandleFrame decodes one inbound frame. Frames that arrive before the
// initial queries were sent are dropped. Commands queued while handling
// the frame are flushed afterwards.
func (d *Device) HandleFrame(frame []byte) {
	d.mu.Lock()
	if d.link == nil || !d.initialSent {
		d.mu.Unlock()
		return
	}

	msgs, err := d.parser.Parse(frame)
	d.stats.Update(frame, msgs, err)

	var events []Event
	if err != nil {
		d.log.Warn().Err(err).Str("type", d.parser.Type().String()).Hex("frame", frame).Msg("decode error")
		events = append(events, Event{Kind: EventDecodeError, Err: err})
	}
	for _, m := range msgs {
		d.applyLocked(m, &events)
	}

	if err := d.flushLocked(); err != nil {
		d.log.Warn().Err(err).Msg("flush after parse failed")
	}
	d.mu.Unlock()

	d.dispatch(events)
}

func (d *Device) applyLocked(msg mission.Message, events *[]Event) {
	emit := func(e Event) {
		e.Message = msg
		*events = append(*events, e)
	}

	switch m := msg.(type) {
	case mission.BatteryLevel:
		v := m.Level
		d.cache.battery = &v
		d.resolveLocked(callKey{kind: mission.MsgBatteryLevel}, m)
		emit(Event{Kind: EventBatteryLevel})

	case mission.TypeUpdate:
		if !m.Type.IsValid() {
			d.rejectLocked(callKey{kind: m.Reply}, fmt.Errorf("%w: device type %d", mission.ErrInvalidArgument, m.Type))
			return
		}
		t := m.Type
		d.cache.typ = &t
		d.resolveReplyLocked(m.Reply, mission.MsgGetType, mission.MsgSetType, m)
		emit(Event{Kind: EventType})

	case mission.NameUpdate:
		n := m.Name
		d.cache.name = &n
		d.resolveReplyLocked(m.Reply, mission.MsgGetName, mission.MsgSetName, m)
		emit(Event{Kind: EventName})

	case mission.CalibrationUpdate:
		wasFull := d.calibration != nil && d.calibration.IsFullyCalibrated()
		c := m.Calibration
		d.calibration = &c
		emit(Event{Kind: EventMotionCalibration})
		if !wasFull && c.IsFullyCalibrated() {
			emit(Event{Kind: EventMotionFullyCalibrated})
		}

	case mission.SensorDataConfigurationsUpdate:
		c := m.Configurations
		d.cache.configurations = &c
		d.resolveReplyLocked(m.Reply, mission.MsgGetSensorDataConfigurations, mission.MsgSetSensorDataConfigurations, m)
		emit(Event{Kind: EventSensorDataConfigurations})

	case mission.SensorDataUpdate:
		d.applySensorDataLocked(m.Data, emit)

	case mission.WeightDataDelayUpdate:
		v := m.Delay
		d.cache.weightDelay = &v
		d.resolveReplyLocked(m.Reply, mission.MsgGetWeightDataDelay, mission.MsgSetWeightDataDelay, m)
		emit(Event{Kind: EventWeightDataDelay})

	case mission.WeightUpdate:
		d.weight = m.Weight
		emit(Event{Kind: EventWeight})

	case mission.FirmwareVersion:
		v := m.Version
		d.cache.firmware = &v
		d.resolveLocked(callKey{kind: mission.MsgGetFirmwareVersion}, m)
		emit(Event{Kind: EventFirmwareVersion})

	case mission.FileSent:
		d.log.Debug().Str("path", m.Path).Msg("send file acknowledged")

	case mission.FileReceiveHeader:
		d.receiveHeaderLocked(m, events)

	case mission.FileChunk:
		d.receiveChunkLocked(m, events)

	case mission.FileRemoved:
		if d.transfer != nil && d.transfer.state == TransferRemoving {
			d.transfer = nil
		}
		emit(Event{Kind: EventFileRemoved})

	case mission.FilesystemFormatted:
		if d.transfer != nil && d.transfer.state == TransferFormatting {
			d.transfer = nil
		}
		emit(Event{Kind: EventFilesystemFormatted})

	case mission.PeerBatch:
		for _, r := range m.Records {
			d.applyPeerLocked(r, events)
		}

	case mission.Pong:
		d.resolveLocked(callKey{kind: mission.MsgPing}, m)
	}
}

func (d *Device) applySensorDataLocked(data mission.SensorData, emit func(Event)) {
	for _, r := range data.Motion {
		d.motion.Apply(r)
		emit(Event{Kind: EventMotion, Timestamp: data.Timestamp, Motion: r})
		if r.Type == mission.MotionQuaternion {
			emit(Event{Kind: EventEuler, Timestamp: data.Timestamp, Motion: r})
		}
	}
	for _, r := range data.Pressure {
		d.pressure.Apply(r)
		e := Event{Timestamp: data.Timestamp, Pressure: d.pressure, PressureReading: r}
		switch r.Type {
		case mission.PressureMass:
			e.Kind = EventMass
		case mission.PressureCenterOfMass:
			e.Kind = EventCenterOfMass
		case mission.PressureHeelToToe:
			e.Kind = EventHeelToToe
		default:
			// A cell grid also refreshes every derived value.
			for _, k := range []EventKind{EventPressure, EventCenterOfMass, EventMass, EventHeelToToe} {
				e.Kind = k
				emit(e)
			}
			continue
		}
		emit(e)
	}
}

func (d *Device) applyPeerLocked(msg mission.Message, events *[]Event) {
	switch m := msg.(type) {
	case mission.PeerConnectionUpdate:
		v := m.Connected
		d.cache.peerConnected = &v
		d.resolveLocked(callKey{kind: mission.MsgPeer, peer: m.Reply}, m)
		if m.Reply == mission.PeerSetConnection {
			d.resolveLocked(callKey{kind: mission.MsgPeer, peer: mission.PeerGetConnection}, m)
		}
		*events = append(*events, Event{Kind: EventPeerConnection, Message: m})

	case mission.PeerCharacteristicUpdate:
		if d.cache.characteristics == nil {
			d.cache.characteristics = make(map[uint8][]byte)
		}
		d.cache.characteristics[m.Index] = m.Value
		d.resolveLocked(callKey{kind: mission.MsgPeer, peer: m.Reply, index: m.Index}, m)
		if m.Reply == mission.PeerSetRemoteCharacteristicValue {
			d.resolveLocked(callKey{kind: mission.MsgPeer, peer: mission.PeerGetRemoteCharacteristicValue, index: m.Index}, m)
		}
		*events = append(*events, Event{Kind: EventCharacteristic, Message: m})
	}
}

// ============================================================================
// Outbound
// ============================================================================

// Flush sends everything queued as one frame.
func (d *Device) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.link == nil || !d.link.Connected() {
		return ErrNotConnected
	}
	return d.flushLocked()
}

func (d *Device) flushLocked() error {
	if d.queue.Len() == 0 || d.link == nil {
		return nil
	}
	frame, err := d.queue.Flatten(d.parser.Dialect())
	if err != nil {
		d.queue.Reset()
		return err
	}
	if err := d.link.Send(frame); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	d.log.Trace().Hex("frame", frame).Msg("flushed")
	return nil
}

func (d *Device) checkLocked(t mission.MessageType) error {
	if d.link == nil || !d.link.Connected() {
		return ErrNotConnected
	}
	if !d.parser.Dialect().Supports(t) {
		return fmt.Errorf("%w: %s in %s dialect", ErrUnsupported, t, d.parser.Dialect().Name())
	}
	return nil
}

// ============================================================================
// State
// ============================================================================

// Type returns the last reported device type.
func (d *Device) Type() mission.DeviceType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parser.Type()
}

// Motion returns the latest value of every motion sub-type.
func (d *Device) Motion() mission.Motion {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.motion
}

// Pressure returns the latest insole pressure.
func (d *Device) Pressure() mission.Pressure {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pressure
}

// Stats returns a copy of the frame statistics of the current link.
func (d *Device) Stats() mission.Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.CalculateRates()
	s := *d.stats
	s.ByType = make(map[mission.MessageType]uint64, len(d.stats.ByType))
	for k, v := range d.stats.ByType {
		s.ByType[k] = v
	}
	return s
}
