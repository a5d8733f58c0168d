// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/gait/pkg/mission"
)

// callKey identifies a pending request. peer and index are only used for
// peer passthrough records.
type callKey struct {
	kind  mission.MessageType
	peer  mission.PeerMessageType
	index uint8
}

// call is a one-shot future shared by every waiter of the same key.
type call struct {
	done chan struct{}
	msg  mission.Message
	err  error
}

func newCall() *call {
	return &call{done: make(chan struct{})}
}

func (c *call) resolve(m mission.Message, err error) {
	c.msg, c.err = m, err
	close(c.done)
}

func (c *call) wait(ctx context.Context) (mission.Message, error) {
	select {
	case <-c.done:
		return c.msg, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// beginLocked returns the call in flight for key, or registers a new one
// and queues its command.
func (d *Device) beginLocked(key callKey, enqueue func(*mission.CommandQueue)) *call {
	if c, ok := d.calls[key]; ok {
		return c
	}
	c := newCall()
	d.calls[key] = c
	enqueue(&d.queue)
	return c
}

func (d *Device) resolveLocked(key callKey, m mission.Message) {
	if c, ok := d.calls[key]; ok {
		delete(d.calls, key)
		c.resolve(m, nil)
	}
}

// resolveReplyLocked resolves the request matching reply. A set reply also
// answers a pending get, since it carries the current value.
func (d *Device) resolveReplyLocked(reply, get, set mission.MessageType, m mission.Message) {
	d.resolveLocked(callKey{kind: reply}, m)
	if reply == set {
		d.resolveLocked(callKey{kind: get}, m)
	}
}

func (d *Device) rejectLocked(key callKey, err error) {
	if c, ok := d.calls[key]; ok {
		delete(d.calls, key)
		c.resolve(nil, err)
	}
}

// query answers from the cache, joins a request in flight, or sends a new one.
func (d *Device) query(ctx context.Context, key callKey, cached func() mission.Message, enqueue func(*mission.CommandQueue)) (mission.Message, error) {
	d.mu.Lock()
	if err := d.checkLocked(key.kind); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if m := cached(); m != nil {
		d.mu.Unlock()
		return m, nil
	}
	c := d.beginLocked(key, enqueue)
	if err := d.flushLocked(); err != nil {
		d.rejectLocked(key, err)
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()
	return c.wait(ctx)
}

// command always queues a fresh command. Waiters of the same key share the
// next reply.
func (d *Device) command(ctx context.Context, key callKey, enqueue func(*mission.CommandQueue)) (mission.Message, error) {
	d.mu.Lock()
	if err := d.checkLocked(key.kind); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	c, ok := d.calls[key]
	if !ok {
		c = newCall()
		d.calls[key] = c
	}
	enqueue(&d.queue)
	if err := d.flushLocked(); err != nil {
		d.rejectLocked(key, err)
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()
	return c.wait(ctx)
}

func getCommand(t mission.MessageType) func(*mission.CommandQueue) {
	return func(q *mission.CommandQueue) { q.Set(mission.NewGetCommand(t)) }
}

// replaceGet queues cmd and drops a queued get of the same kind.
func replaceGet(get mission.MessageType, cmd mission.Command) func(*mission.CommandQueue) {
	return func(q *mission.CommandQueue) {
		q.Delete(get)
		q.Set(cmd)
	}
}

// Ping round-trips a PING and returns the elapsed time. Only gateway
// slots answer it.
func (d *Device) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := d.command(ctx, callKey{kind: mission.MsgPing}, getCommand(mission.MsgPing)); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// ============================================================================
// Getters
// ============================================================================

// GetType returns the device type.
func (d *Device) GetType(ctx context.Context) (mission.DeviceType, error) {
	m, err := d.query(ctx, callKey{kind: mission.MsgGetType}, func() mission.Message {
		if d.cache.typ == nil {
			return nil
		}
		return mission.TypeUpdate{Reply: mission.MsgGetType, Type: *d.cache.typ}
	}, getCommand(mission.MsgGetType))
	if err != nil {
		return 0, err
	}
	return m.(mission.TypeUpdate).Type, nil
}

// GetName returns the advertised name.
func (d *Device) GetName(ctx context.Context) (string, error) {
	m, err := d.query(ctx, callKey{kind: mission.MsgGetName}, func() mission.Message {
		if d.cache.name == nil {
			return nil
		}
		return mission.NameUpdate{Reply: mission.MsgGetName, Name: *d.cache.name}
	}, getCommand(mission.MsgGetName))
	if err != nil {
		return "", err
	}
	return m.(mission.NameUpdate).Name, nil
}

// GetBatteryLevel returns the battery charge in percent.
func (d *Device) GetBatteryLevel(ctx context.Context) (uint8, error) {
	m, err := d.query(ctx, callKey{kind: mission.MsgBatteryLevel}, func() mission.Message {
		if d.cache.battery == nil {
			return nil
		}
		return mission.BatteryLevel{Level: *d.cache.battery}
	}, getCommand(mission.MsgBatteryLevel))
	if err != nil {
		return 0, err
	}
	return m.(mission.BatteryLevel).Level, nil
}

// GetSensorDataConfigurations returns the sample delays.
func (d *Device) GetSensorDataConfigurations(ctx context.Context) (mission.SensorDataConfigurations, error) {
	m, err := d.query(ctx, callKey{kind: mission.MsgGetSensorDataConfigurations}, func() mission.Message {
		if d.cache.configurations == nil {
			return nil
		}
		return mission.SensorDataConfigurationsUpdate{Reply: mission.MsgGetSensorDataConfigurations, Configurations: *d.cache.configurations}
	}, getCommand(mission.MsgGetSensorDataConfigurations))
	if err != nil {
		return mission.SensorDataConfigurations{}, err
	}
	return m.(mission.SensorDataConfigurationsUpdate).Configurations, nil
}

// GetWeightDataDelay returns the weight report interval in milliseconds.
func (d *Device) GetWeightDataDelay(ctx context.Context) (uint16, error) {
	m, err := d.query(ctx, callKey{kind: mission.MsgGetWeightDataDelay}, func() mission.Message {
		if d.cache.weightDelay == nil {
			return nil
		}
		return mission.WeightDataDelayUpdate{Reply: mission.MsgGetWeightDataDelay, Delay: *d.cache.weightDelay}
	}, getCommand(mission.MsgGetWeightDataDelay))
	if err != nil {
		return 0, err
	}
	return m.(mission.WeightDataDelayUpdate).Delay, nil
}

// GetFirmwareVersion returns the firmware version string.
func (d *Device) GetFirmwareVersion(ctx context.Context) (string, error) {
	m, err := d.query(ctx, callKey{kind: mission.MsgGetFirmwareVersion}, func() mission.Message {
		if d.cache.firmware == nil {
			return nil
		}
		return mission.FirmwareVersion{Version: *d.cache.firmware}
	}, getCommand(mission.MsgGetFirmwareVersion))
	if err != nil {
		return "", err
	}
	return m.(mission.FirmwareVersion).Version, nil
}

// GetPeerConnection reports whether the passthrough peer is connected.
func (d *Device) GetPeerConnection(ctx context.Context) (bool, error) {
	m, err := d.query(ctx, callKey{kind: mission.MsgPeer, peer: mission.PeerGetConnection}, func() mission.Message {
		if d.cache.peerConnected == nil {
			return nil
		}
		return mission.PeerConnectionUpdate{Reply: mission.PeerGetConnection, Connected: *d.cache.peerConnected}
	}, func(q *mission.CommandQueue) { q.SetPeer(mission.NewPeerGetConnectionCommand()) })
	if err != nil {
		return false, err
	}
	return m.(mission.PeerConnectionUpdate).Connected, nil
}

// GetCharacteristic reads a remote characteristic of the passthrough peer.
func (d *Device) GetCharacteristic(ctx context.Context, index uint8) ([]byte, error) {
	key := callKey{kind: mission.MsgPeer, peer: mission.PeerGetRemoteCharacteristicValue, index: index}
	m, err := d.query(ctx, key, func() mission.Message {
		v, ok := d.cache.characteristics[index]
		if !ok {
			return nil
		}
		return mission.PeerCharacteristicUpdate{Reply: mission.PeerGetRemoteCharacteristicValue, Index: index, Value: v}
	}, func(q *mission.CommandQueue) { q.SetPeer(mission.NewPeerGetCharacteristicCommand(index)) })
	if err != nil {
		return nil, err
	}
	return m.(mission.PeerCharacteristicUpdate).Value, nil
}

// ============================================================================
// Setters
// ============================================================================

// SetType changes the device role.
func (d *Device) SetType(ctx context.Context, t mission.DeviceType) (mission.DeviceType, error) {
	cmd, err := mission.NewSetTypeCommand(t)
	if err != nil {
		return 0, err
	}
	m, err := d.command(ctx, callKey{kind: mission.MsgSetType}, replaceGet(mission.MsgGetType, cmd))
	if err != nil {
		return 0, err
	}
	return m.(mission.TypeUpdate).Type, nil
}

// SetName renames the device. Names longer than mission.MaxNameLength bytes
// are truncated.
func (d *Device) SetName(ctx context.Context, name string) (string, error) {
	cmd := mission.NewSetNameCommand(name)
	m, err := d.command(ctx, callKey{kind: mission.MsgSetName}, replaceGet(mission.MsgGetName, cmd))
	if err != nil {
		return "", err
	}
	return m.(mission.NameUpdate).Name, nil
}

// SetSensorDataConfigurations changes the sample delays. Pressure entries
// are only sent to insoles.
func (d *Device) SetSensorDataConfigurations(ctx context.Context, c mission.SensorDataConfigurations) (mission.SensorDataConfigurations, error) {
	d.mu.Lock()
	insole := d.parser.Type().IsInsole()
	d.mu.Unlock()

	cmd, err := mission.NewSetSensorDataConfigurationsCommand(c, insole)
	if err != nil {
		return mission.SensorDataConfigurations{}, err
	}
	m, err := d.command(ctx, callKey{kind: mission.MsgSetSensorDataConfigurations}, replaceGet(mission.MsgGetSensorDataConfigurations, cmd))
	if err != nil {
		return mission.SensorDataConfigurations{}, err
	}
	return m.(mission.SensorDataConfigurationsUpdate).Configurations, nil
}

// SetWeightDataDelay changes the weight report interval.
func (d *Device) SetWeightDataDelay(ctx context.Context, delay int) (uint16, error) {
	cmd, err := mission.NewSetWeightDataDelayCommand(delay)
	if err != nil {
		return 0, err
	}
	m, err := d.command(ctx, callKey{kind: mission.MsgSetWeightDataDelay}, replaceGet(mission.MsgGetWeightDataDelay, cmd))
	if err != nil {
		return 0, err
	}
	return m.(mission.WeightDataDelayUpdate).Delay, nil
}

// SetPeerConnection connects or disconnects the passthrough peer.
func (d *Device) SetPeerConnection(ctx context.Context, connect bool) (bool, error) {
	m, err := d.command(ctx, callKey{kind: mission.MsgPeer, peer: mission.PeerSetConnection}, func(q *mission.CommandQueue) {
		q.DeletePeer(mission.PeerGetConnection, 0)
		q.SetPeer(mission.NewPeerSetConnectionCommand(connect))
	})
	if err != nil {
		return false, err
	}
	return m.(mission.PeerConnectionUpdate).Connected, nil
}

// SetCharacteristic writes a remote characteristic of the passthrough peer.
func (d *Device) SetCharacteristic(ctx context.Context, index uint8, value []byte) ([]byte, error) {
	if len(value) > mission.MaxStringLength-2 {
		return nil, fmt.Errorf("%w: characteristic value of %d bytes", mission.ErrInvalidArgument, len(value))
	}
	key := callKey{kind: mission.MsgPeer, peer: mission.PeerSetRemoteCharacteristicValue, index: index}
	m, err := d.command(ctx, key, func(q *mission.CommandQueue) {
		q.DeletePeer(mission.PeerGetRemoteCharacteristicValue, index)
		q.SetPeer(mission.NewPeerSetCharacteristicCommand(index, value))
	})
	if err != nil {
		return nil, err
	}
	return m.(mission.PeerCharacteristicUpdate).Value, nil
}
