// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"sync"

	"github.com/Thermoquad/gait/pkg/mission"
)

// PairEvent is emitted whenever either insole reports pressure.
type PairEvent struct {
	// Side is the insole whose update triggered the event.
	Side     mission.Side
	Pressure mission.BodyPressure
}

// Pair combines a left and a right insole into body pressure.
type Pair struct {
	mu      sync.Mutex
	devices map[mission.Side]*Device
	unsub   map[mission.Side]func()
	last    map[mission.Side]mission.Pressure
	body    mission.BodyPressure

	handlers []func(PairEvent)
}

// NewPair returns an empty pair.
func NewPair() *Pair {
	return &Pair{
		devices: make(map[mission.Side]*Device),
		unsub:   make(map[mission.Side]func()),
		last:    make(map[mission.Side]mission.Pressure),
	}
}

// Subscribe registers h for combined pressure updates. Register handlers
// before devices are added.
func (p *Pair) Subscribe(h func(PairEvent)) {
	p.mu.Lock()
	p.handlers = append(p.handlers, h)
	p.mu.Unlock()
}

// Replace puts d in the slot for side, dropping the previous device's
// subscription. The other slot keeps its last pressure. A nil d empties
// the slot.
func (p *Pair) Replace(side mission.Side, d *Device) {
	if side != mission.SideLeft && side != mission.SideRight {
		return
	}

	p.mu.Lock()
	if u := p.unsub[side]; u != nil {
		u()
		delete(p.unsub, side)
	}
	delete(p.devices, side)
	p.mu.Unlock()

	if d == nil {
		return
	}

	u := d.Subscribe(func(e Event) {
		if e.Kind != EventPressure {
			return
		}
		p.update(side, d, e.Pressure)
	})

	p.mu.Lock()
	p.devices[side] = d
	p.unsub[side] = u
	p.mu.Unlock()
}

// Device returns the device in the slot for side.
func (p *Pair) Device(side mission.Side) *Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.devices[side]
}

// Pressure returns the last combined reading.
func (p *Pair) Pressure() mission.BodyPressure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body
}

func (p *Pair) update(side mission.Side, from *Device, pressure mission.Pressure) {
	p.mu.Lock()
	if p.devices[side] != from {
		p.mu.Unlock()
		return
	}
	p.last[side] = pressure
	p.body = mission.AggregatePressure(p.last[mission.SideLeft], p.last[mission.SideRight])
	e := PairEvent{Side: side, Pressure: p.body}
	handlers := append([]func(PairEvent){}, p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}
