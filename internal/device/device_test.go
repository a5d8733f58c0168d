// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/Thermoquad/gait/pkg/mission"
)

// ============================================================
// Helpers
// ============================================================

type fakeLink struct {
	mu        sync.Mutex
	frames    [][]byte
	connected bool
	buffered  int
	sent      chan []byte
}

func newFakeLink() *fakeLink {
	return &fakeLink{connected: true, sent: make(chan []byte, 64)}
}

func (l *fakeLink) Send(frame []byte) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return errors.New("link closed")
	}
	c := append([]byte(nil), frame...)
	l.frames = append(l.frames, c)
	l.mu.Unlock()
	l.sent <- c
	return nil
}

func (l *fakeLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *fakeLink) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffered
}

func (l *fakeLink) setBuffered(n int) {
	l.mu.Lock()
	l.buffered = n
	l.mu.Unlock()
}

func (l *fakeLink) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

func (l *fakeLink) next(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-l.sent:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame sent")
		return nil
	}
}

func tag(t mission.MessageType) byte {
	b, ok := mission.DirectDialect.Encode(t)
	if !ok {
		panic("no direct tag for " + t.String())
	}
	return b
}

func frame(t *testing.T, w *mission.Writer) []byte {
	t.Helper()
	b, err := w.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newAttached(t *testing.T, opts Options) (*Device, *fakeLink) {
	t.Helper()
	d := New(opts)
	link := newFakeLink()
	d.attach(link, false)
	return d, link
}

func collect(d *Device) func() []Event {
	var (
		mu     sync.Mutex
		events []Event
	)
	d.Subscribe(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	return func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), events...)
	}
}

func eventChan(d *Device) <-chan Event {
	ch := make(chan Event, 256)
	d.Subscribe(func(e Event) {
		select {
		case ch <- e:
		default:
		}
	})
	return ch
}

func waitFor(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
			return Event{}
		}
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ============================================================
// Request / Reply Tests
// ============================================================

func TestGetNameDeduplicates(t *testing.T) {
	is := is.New(t)
	d, link := newAttached(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	names := make([]string, 2)
	errs := make([]error, 2)
	for i := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			names[i], errs[i] = d.GetName(ctx)
		}()
	}

	is.Equal(link.next(t), []byte{tag(mission.MsgGetName)})
	d.HandleFrame(frame(t, mission.NewWriter(8).U8(tag(mission.MsgGetName)).String("left boot")))
	wg.Wait()

	is.NoErr(errs[0])
	is.NoErr(errs[1])
	is.Equal(names[0], "left boot")
	is.Equal(names[1], "left boot")
	is.Equal(link.count(), 1) // one round trip
}

func TestCachedQuerySkipsRoundTrip(t *testing.T) {
	is := is.New(t)
	d, link := newAttached(t, Options{})

	d.HandleFrame([]byte{tag(mission.MsgBatteryLevel), 80})
	level, err := d.GetBatteryLevel(context.Background())
	is.NoErr(err)
	is.Equal(level, uint8(80))
	is.Equal(link.count(), 0)
}

func TestPendingRequestRejectsOnDisconnect(t *testing.T) {
	is := is.New(t)
	d, link := newAttached(t, Options{})

	errCh := make(chan error, 1)
	go func() {
		_, err := d.GetBatteryLevel(context.Background())
		errCh <- err
	}()
	link.next(t)
	d.Detach()

	select {
	case err := <-errCh:
		is.True(errors.Is(err, ErrDisconnected))
	case <-time.After(2 * time.Second):
		t.Fatal("pending request never rejected")
	}

	_, err := d.GetBatteryLevel(context.Background())
	is.True(errors.Is(err, ErrNotConnected))
}

func TestCommandsRequireLink(t *testing.T) {
	is := is.New(t)
	d := New(Options{})

	_, err := d.GetName(context.Background())
	is.True(errors.Is(err, ErrNotConnected))
	is.True(errors.Is(d.SendFile("a", []byte{1}), ErrNotConnected))
	is.True(errors.Is(d.FormatFilesystem(), ErrNotConnected))
}

func TestGatewayDialectRejectsFileCommands(t *testing.T) {
	is := is.New(t)
	d, link := newAttached(t, Options{Dialect: mission.GatewayDialect})

	_, err := d.GetFirmwareVersion(context.Background())
	is.True(errors.Is(err, ErrUnsupported))
	is.True(errors.Is(d.ReceiveFile("log.bin"), ErrUnsupported))
	is.Equal(link.count(), 0)
}

func TestSetNameReplacesQueuedGet(t *testing.T) {
	is := is.New(t)
	d, link := newAttached(t, Options{})

	done := make(chan string, 1)
	go func() {
		name, _ := d.SetName(context.Background(), "right")
		done <- name
	}()

	sent := link.next(t)
	is.Equal(sent[0], tag(mission.MsgSetName))
	is.Equal(string(sent[2:]), "right")

	d.HandleFrame(frame(t, mission.NewWriter(8).U8(tag(mission.MsgSetName)).String("right")))
	is.Equal(<-done, "right")

	name, err := d.GetName(context.Background())
	is.NoErr(err)
	is.Equal(name, "right")
	is.Equal(link.count(), 1)
}

func TestHandshake(t *testing.T) {
	is := is.New(t)
	d := New(Options{Generation: mission.GenerationBNO085})
	events := eventChan(d)
	link := newFakeLink()
	d.Attach(link)

	is.Equal(link.next(t), []byte{
		tag(mission.MsgGetType),
		tag(mission.MsgGetFirmwareVersion),
		tag(mission.MsgGetName),
		tag(mission.MsgGetSensorDataConfigurations),
		tag(mission.MsgBatteryLevel),
		tag(mission.MsgPeer), 1, byte(mission.PeerGetConnection),
	})

	w := mission.NewWriter(64).
		U8(tag(mission.MsgGetType)).U8(uint8(mission.TypeLeftInsole)).
		U8(tag(mission.MsgGetFirmwareVersion)).String("2.1.0").
		U8(tag(mission.MsgGetName)).String("L").
		U8(tag(mission.MsgGetSensorDataConfigurations)).Raw(make([]byte, 22)).
		U8(tag(mission.MsgBatteryLevel)).U8(90).
		U8(tag(mission.MsgPeer)).U8(2).U8(uint8(mission.PeerGetConnection)).U8(1)
	d.HandleFrame(frame(t, w))

	waitFor(t, events, EventConnected)
	is.True(d.Connected())
	is.Equal(d.Type(), mission.TypeLeftInsole)

	snap := d.Snapshot()
	is.Equal(snap.Name, "L")
	is.Equal(snap.FirmwareVersion, "2.1.0")
	is.Equal(*snap.BatteryLevel, uint8(90))
	is.True(snap.Pressure != nil)
}

func TestSensorDataEvents(t *testing.T) {
	var cells [mission.PressureSensorCount]float64
	grid := mission.NewWriter(32).U8(uint8(mission.PressureSingleByte))
	for i := range cells {
		cells[i] = float64(i + 1)
		grid.U8(uint8(i + 1))
	}
	gridBytes := frame(t, grid)
	pressure := mission.ComputePressure(cells, false, false)

	tests := []struct {
		name  string
		block *mission.Writer
		want  []string
	}{
		{
			name: "gravity",
			block: mission.NewWriter(16).
				U8(uint8(mission.SensorMotion)).U8(7).
				U8(uint8(mission.MotionGravity)).U16LE(0).U16LE(0).U16LE(256),
			want: []string{"gravity"},
		},
		{
			name: "quaternion",
			block: mission.NewWriter(16).
				U8(uint8(mission.SensorMotion)).U8(9).
				U8(uint8(mission.MotionQuaternion)).U16LE(1 << 14).U16LE(0).U16LE(0).U16LE(0),
			want: []string{"quaternion", "euler"},
		},
		{
			name: "pressure grid",
			block: mission.NewWriter(32).
				U8(uint8(mission.SensorPressure)).U8(uint8(mission.PressureSensorCount + 1)).
				Raw(gridBytes),
			want: []string{"pressure", "centerOfMass", "mass", "heelToToe"},
		},
		{
			name: "several records",
			block: mission.NewWriter(64).
				U8(uint8(mission.SensorMotion)).U8(14).
				U8(uint8(mission.MotionGravity)).U16LE(0).U16LE(0).U16LE(256).
				U8(uint8(mission.MotionAcceleration)).U16LE(1).U16LE(2).U16LE(3).
				U8(uint8(mission.SensorPressure)).U8(uint8(mission.PressureSensorCount + 1)).
				Raw(gridBytes),
			want: []string{"gravity", "acceleration", "pressure", "centerOfMass", "mass", "heelToToe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			d, _ := newAttached(t, Options{})
			events := collect(d)

			w := mission.NewWriter(96).U8(tag(mission.MsgSensorData)).U16LE(5).Raw(frame(t, tt.block))
			d.HandleFrame(frame(t, w))

			got := events()
			is.Equal(len(got), len(tt.want))
			for i, e := range got {
				is.Equal(e.Name(), tt.want[i])
				is.Equal(e.Timestamp, uint64(5))
				if e.Kind == EventPressure || e.Kind == EventCenterOfMass || e.Kind == EventMass || e.Kind == EventHeelToToe {
					is.Equal(e.Pressure, pressure)
				}
				if e.Kind == EventEuler {
					is.Equal(e.Motion.Euler, d.Motion().Euler)
				}
			}
		})
	}
}

func TestSensorDataMotionState(t *testing.T) {
	is := is.New(t)
	d, _ := newAttached(t, Options{})

	w := mission.NewWriter(16).
		U8(tag(mission.MsgSensorData)).U16LE(5).
		U8(uint8(mission.SensorMotion)).U8(7).
		U8(uint8(mission.MotionGravity)).U16LE(0).U16LE(0).U16LE(256)
	d.HandleFrame(frame(t, w))

	is.True(d.Motion().Gravity != (mission.Vector3{}))
}

// ============================================================
// Transfer Tests
// ============================================================

func TestReceiveFileProgress(t *testing.T) {
	is := is.New(t)
	d, link := newAttached(t, Options{})
	events := collect(d)

	is.NoErr(d.ReceiveFile("log.bin"))
	link.next(t)
	is.Equal(d.TransferState(), TransferReceiving)

	// busy: ignored
	is.NoErr(d.ReceiveFile("other.bin"))
	is.NoErr(d.RemoveFile("other.bin"))
	is.Equal(link.count(), 1)

	rf := tag(mission.MsgReceiveFile)
	d.HandleFrame(frame(t, mission.NewWriter(16).U8(rf).String("log.bin").U32LE(1000)))
	d.HandleFrame(append([]byte{rf}, make([]byte, 600)...))
	d.HandleFrame(append([]byte{rf}, make([]byte, 400)...))

	var progress []float64
	var complete []Event
	for _, e := range events() {
		switch e.Kind {
		case EventFileTransferProgress:
			progress = append(progress, e.Progress)
		case EventFileTransferComplete:
			complete = append(complete, e)
		}
	}

	is.Equal(len(progress), 2)
	is.True(near(progress[0], 0.6))
	is.True(near(progress[1], 1.0))
	is.Equal(len(complete), 1)
	is.Equal(complete[0].File.Path, "log.bin")
	is.Equal(len(complete[0].File.Data), 1000)
	is.Equal(d.TransferState(), TransferIdle)
}

func TestSendFileProgress(t *testing.T) {
	is := is.New(t)
	d, link := newAttached(t, Options{PollInterval: 5 * time.Millisecond})
	events := eventChan(d)

	link.setBuffered(100)
	is.NoErr(d.SendFile("notes.txt", make([]byte, 100)))
	is.Equal(link.count(), 2) // command, then data
	is.Equal(d.TransferState(), TransferSending)

	// the firmware path shares the session
	is.NoErr(d.UpdateFirmware([]byte{1, 2, 3}))
	is.NoErr(d.SendFile("again.txt", []byte{1}))
	is.Equal(link.count(), 2)

	e := waitFor(t, events, EventFileTransferProgress)
	is.Equal(e.Progress, 0.0)

	link.setBuffered(0)
	e = waitFor(t, events, EventFileTransferComplete)
	is.Equal(e.Progress, 1.0)
	is.Equal(d.TransferState(), TransferIdle)
}

func TestTransferAbortsOnDisconnect(t *testing.T) {
	is := is.New(t)
	d, link := newAttached(t, Options{PollInterval: time.Hour})
	events := collect(d)

	link.setBuffered(10)
	is.NoErr(d.UpdateFirmware(make([]byte, 10)))
	d.Detach()

	var failed int
	for _, e := range events() {
		if e.Kind == EventFirmwareUpdateFailed {
			failed++
			is.True(errors.Is(e.Err, ErrDisconnected))
		}
	}
	is.Equal(failed, 1)
	is.Equal(d.TransferState(), TransferIdle)
}

func TestRemoveFileAcknowledged(t *testing.T) {
	is := is.New(t)
	d, link := newAttached(t, Options{})
	events := eventChan(d)

	is.NoErr(d.RemoveFile("old.bin"))
	link.next(t)
	is.Equal(d.TransferState(), TransferRemoving)

	d.HandleFrame(frame(t, mission.NewWriter(8).U8(tag(mission.MsgRemoveFile)).String("old.bin")))
	waitFor(t, events, EventFileRemoved)
	is.Equal(d.TransferState(), TransferIdle)
}
