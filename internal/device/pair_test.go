// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"testing"

	"github.com/matryer/is"

	"github.com/Thermoquad/gait/pkg/mission"
)

func pressureEvent(sum, y float64) []Event {
	return []Event{{Kind: EventPressure, Pressure: mission.Pressure{Sum: sum, CenterOfMass: mission.CenterOfMass{Y: y}}}}
}

func TestPairAggregates(t *testing.T) {
	is := is.New(t)
	left, right := New(Options{}), New(Options{})

	pair := NewPair()
	var got []PairEvent
	pair.Subscribe(func(e PairEvent) { got = append(got, e) })
	pair.Replace(mission.SideLeft, left)
	pair.Replace(mission.SideRight, right)

	left.dispatch(pressureEvent(30, 0.2))
	right.dispatch(pressureEvent(70, 0.6))

	b := pair.Pressure()
	is.True(near(b.LeftMass, 0.3))
	is.True(near(b.RightMass, 0.7))
	is.True(near(b.CenterOfMass.X, 0.7))
	is.Equal(len(got), 2)
	is.Equal(got[0].Side, mission.SideLeft)
	is.Equal(got[1].Side, mission.SideRight)
}

func TestPairReplaceKeepsOtherSide(t *testing.T) {
	is := is.New(t)
	left, right, spare := New(Options{}), New(Options{}), New(Options{})

	pair := NewPair()
	pair.Replace(mission.SideLeft, left)
	pair.Replace(mission.SideRight, right)
	right.dispatch(pressureEvent(70, 0))

	pair.Replace(mission.SideLeft, spare)
	is.Equal(pair.Device(mission.SideLeft), spare)

	left.dispatch(pressureEvent(1000, 0)) // unsubscribed
	is.True(near(pair.Pressure().RightMass, 1))

	spare.dispatch(pressureEvent(70, 0))
	is.True(near(pair.Pressure().LeftMass, 0.5))
	is.True(near(pair.Pressure().RightMass, 0.5))
}

func TestPairIgnoresOtherEvents(t *testing.T) {
	is := is.New(t)
	left := New(Options{})

	pair := NewPair()
	pair.Replace(mission.SideLeft, left)
	left.dispatch([]Event{{Kind: EventMass, Pressure: mission.Pressure{Sum: 50}}})

	is.Equal(pair.Pressure(), mission.BodyPressure{})
}
