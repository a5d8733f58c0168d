// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Buffer Tests
// ============================================================

func TestReadersLittleEndian(t *testing.T) {
	buf := []byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 0xFF, 0xFF}

	u16, off, err := ReadU16LE(buf, 0)
	if err != nil || u16 != 0x1234 || off != 2 {
		t.Errorf("ReadU16LE = %#x, %d, %v", u16, off, err)
	}

	u32, off, err := ReadU32LE(buf, 2)
	if err != nil || u32 != 0x12345678 || off != 6 {
		t.Errorf("ReadU32LE = %#x, %d, %v", u32, off, err)
	}

	i16, off, err := ReadI16LE(buf, 6)
	if err != nil || i16 != -1 || off != 8 {
		t.Errorf("ReadI16LE = %d, %d, %v", i16, off, err)
	}
}

func TestReadersTruncated(t *testing.T) {
	tests := []struct {
		name string
		read func() error
	}{
		{"u8 at end", func() error { _, _, err := ReadU8([]byte{}, 0); return err }},
		{"u16 short", func() error { _, _, err := ReadU16LE([]byte{1}, 0); return err }},
		{"u32 short", func() error { _, _, err := ReadU32LE([]byte{1, 2, 3}, 0); return err }},
		{"f64 short", func() error { _, _, err := ReadF64LE(make([]byte, 7), 0); return err }},
		{"string body short", func() error { _, _, err := ReadString([]byte{5, 'a', 'b'}, 0); return err }},
		{"bytes past end", func() error { _, _, err := ReadBytes([]byte{1, 2}, 1, 2); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.read(); !errors.Is(err, ErrFrameTruncated) {
				t.Errorf("error = %v, want ErrFrameTruncated", err)
			}
		})
	}
}

func TestWriterString(t *testing.T) {
	b, err := NewWriter(8).U8(7).String("abc").U16LE(0x0102).Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	want := []byte{7, 3, 'a', 'b', 'c', 0x02, 0x01}
	if !bytes.Equal(b, want) {
		t.Errorf("Bytes() = % X, want % X", b, want)
	}

	_, err = NewWriter(0).String(strings.Repeat("x", MaxStringLength+1)).Bytes()
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("oversized string error = %v, want ErrInvalidArgument", err)
	}
}

func TestConcatSkipsEmpty(t *testing.T) {
	got := Concat(nil, []byte{1}, []byte{}, []byte{2, 3})
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Concat() = % X", got)
	}
}

// ============================================================
// Sensor Configuration Tests
// ============================================================

func TestEncodeSensorDataConfigurations(t *testing.T) {
	c := SensorDataConfigurations{
		Motion: map[MotionDataType]int{
			MotionQuaternion:   45,
			MotionAcceleration: 20,
			MotionGravity:      -5,
		},
		Pressure: map[PressureDataType]int{
			PressureDoubleByte: 40,
		},
	}

	tests := []struct {
		name            string
		includePressure bool
		want            []byte
	}{
		{
			name:            "insole",
			includePressure: true,
			want:            []byte{0, 6, 0, 20, 0, 5, 40, 0, 1, 3, 1, 40, 0},
		},
		{
			name:            "motion module drops pressure",
			includePressure: false,
			want:            []byte{0, 6, 0, 20, 0, 5, 40, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeSensorDataConfigurations(c, tt.includePressure)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestEncodeSensorDataConfigurationsEmpty(t *testing.T) {
	c := SensorDataConfigurations{Motion: map[MotionDataType]int{MotionGravity: -1}}
	if got := EncodeSensorDataConfigurations(c, true); len(got) != 0 {
		t.Errorf("Encode() = % X, want empty", got)
	}
}

func TestSensorDataConfigurationsRoundTrip(t *testing.T) {
	in := DisabledSensorDataConfigurations()
	in.Motion[MotionQuaternion] = 20
	in.Pressure[PressureSingleByte] = 100

	// Replies carry every sub-type in wire order.
	w := NewWriter(22)
	for _, mt := range MotionDataTypes {
		w.U16LE(uint16(in.Motion[mt]))
	}
	for _, pt := range PressureDataTypes {
		w.U16LE(uint16(in.Pressure[pt]))
	}
	reply, _ := w.Bytes()

	out, off, err := ParseSensorDataConfigurations(reply, 0)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if off != 22 {
		t.Errorf("offset = %d, want 22", off)
	}
	if out.Motion[MotionQuaternion] != 20 || out.Pressure[PressureSingleByte] != 100 {
		t.Errorf("Parse() = %+v", out)
	}
	if out.Motion[MotionAcceleration] != 0 {
		t.Errorf("acceleration = %d, want 0", out.Motion[MotionAcceleration])
	}
}

func TestQuantizeDelay(t *testing.T) {
	tests := []struct {
		in   int
		want uint16
		ok   bool
	}{
		{0, 0, true},
		{19, 0, true},
		{45, 40, true},
		{100, 100, true},
		{-1, 0, false},
		{70000, 0, false},
	}

	for _, tt := range tests {
		got, ok := QuantizeDelay(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("QuantizeDelay(%d) = %d, %t, want %d, %t", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

// ============================================================
// Command Tests
// ============================================================

func TestTruncateName(t *testing.T) {
	long := strings.Repeat("a", 40)
	if got := TruncateName(long); len(got) != MaxNameLength {
		t.Errorf("TruncateName() length = %d, want %d", len(got), MaxNameLength)
	}

	// 29 ASCII bytes then a two byte rune straddling the limit.
	mixed := strings.Repeat("a", 29) + "é"
	if got := TruncateName(mixed); got != strings.Repeat("a", 29) {
		t.Errorf("TruncateName() = %q, want rune boundary cut", got)
	}

	cmd := NewSetNameCommand(long)
	if cmd.Payload[0] != MaxNameLength || len(cmd.Payload) != MaxNameLength+1 {
		t.Errorf("SET_NAME payload length byte = %d, size %d", cmd.Payload[0], len(cmd.Payload))
	}
}

func TestCommandBuilders(t *testing.T) {
	mustCommand := func(c Command, err error) Command {
		t.Helper()
		if err != nil {
			t.Fatalf("builder error = %v", err)
		}
		return c
	}

	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{"set type", mustCommand(NewSetTypeCommand(TypeRightInsole)), []byte{2}},
		{"weight delay", mustCommand(NewSetWeightDataDelayCommand(105)), []byte{105, 0}},
		{"send file", mustCommand(NewSendFileCommand("/a", 1000)), []byte{0xE8, 0x03, 0, 0, 2, '/', 'a'}},
		{"receive file", mustCommand(NewReceiveFileCommand("/a")), []byte{2, '/', 'a'}},
		{"remove file", mustCommand(NewRemoveFileCommand("/b")), []byte{2, '/', 'b'}},
		{"firmware", mustCommand(NewFirmwareUpdateCommand(0x10000)), []byte{0, 0, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.cmd.Payload, tt.want) {
				t.Errorf("payload = % X, want % X", tt.cmd.Payload, tt.want)
			}
		})
	}

	if _, err := NewSetTypeCommand(DeviceType(9)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("invalid type error = %v", err)
	}
	if _, err := NewSetWeightDataDelayCommand(-20); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative delay error = %v", err)
	}
	if _, err := NewSetWeightDataDelayCommand(0x10000); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("oversized delay error = %v", err)
	}
}

func TestCommandQueueCoalesces(t *testing.T) {
	var q CommandQueue
	q.Set(NewGetCommand(MsgGetName))
	q.Set(NewGetCommand(MsgGetType))
	q.Set(NewGetCommand(MsgGetName))

	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	// A set replaces the pending get of the same kind.
	q.Delete(MsgGetName)
	q.Set(NewSetNameCommand("hi"))

	frame, err := q.Flatten(DirectDialect)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	want := []byte{byte(MsgGetType), byte(MsgSetName), 2, 'h', 'i'}
	if !bytes.Equal(frame, want) {
		t.Errorf("Flatten() = % X, want % X", frame, want)
	}
	if q.Len() != 0 {
		t.Errorf("queue not cleared after flush")
	}
}

func TestCommandQueuePeerBlock(t *testing.T) {
	var q CommandQueue
	q.Set(NewGetCommand(MsgBatteryLevel))
	q.SetPeer(NewPeerGetConnectionCommand())
	q.SetPeer(NewPeerGetCharacteristicCommand(2))

	frame, err := q.Flatten(DirectDialect)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	want := []byte{0, 18, 3, 0, 2, 2}
	if !bytes.Equal(frame, want) {
		t.Errorf("Flatten() = % X, want % X", frame, want)
	}
}

func TestCommandQueueGatewayDialect(t *testing.T) {
	var q CommandQueue
	q.Set(NewGetCommand(MsgGetName))

	frame, err := q.Flatten(GatewayDialect)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	if !bytes.Equal(frame, []byte{4}) {
		t.Errorf("GET_NAME in gateway dialect = % X, want 04", frame)
	}

	q.Set(NewGetCommand(MsgGetFirmwareVersion))
	if _, err := q.Flatten(GatewayDialect); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("unsupported command error = %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("failed flush must keep the queue, Len() = %d", q.Len())
	}
}

// ============================================================
// Parser Tests
// ============================================================

func TestParseReplies(t *testing.T) {
	frame := []byte{
		byte(MsgGetType), byte(TypeRightInsole),
		byte(MsgGetName), 3, 'a', 'b', 'c',
		byte(MsgBatteryLevel), 87,
		byte(MsgGetFirmwareVersion), 5, '1', '.', '2', '.', '3',
	}

	p := NewParser(DirectDialect, GenerationBNO085)
	msgs, err := p.Parse(frame)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("Parse() returned %d messages, want 4", len(msgs))
	}

	if m, ok := msgs[0].(TypeUpdate); !ok || m.Type != TypeRightInsole {
		t.Errorf("msgs[0] = %#v", msgs[0])
	}
	if m, ok := msgs[1].(NameUpdate); !ok || m.Name != "abc" {
		t.Errorf("msgs[1] = %#v", msgs[1])
	}
	if m, ok := msgs[2].(BatteryLevel); !ok || m.Level != 87 {
		t.Errorf("msgs[2] = %#v", msgs[2])
	}
	if m, ok := msgs[3].(FirmwareVersion); !ok || m.Version != "1.2.3" {
		t.Errorf("msgs[3] = %#v", msgs[3])
	}
	if p.Type() != TypeRightInsole {
		t.Errorf("parser type = %s, want rightInsole", p.Type())
	}
}

func TestParseTruncated(t *testing.T) {
	p := NewParser(DirectDialect, GenerationBNO085)
	msgs, err := p.Parse([]byte{byte(MsgBatteryLevel), 50, byte(MsgGetName), 10, 'a'})

	if !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("error = %v, want ErrFrameTruncated", err)
	}
	if len(msgs) != 1 {
		t.Errorf("messages before truncation = %d, want 1", len(msgs))
	}
}

func TestParseUnknownTagSkipsRest(t *testing.T) {
	p := NewParser(DirectDialect, GenerationBNO085)
	msgs, err := p.Parse([]byte{byte(MsgBatteryLevel), 50, 200, byte(MsgBatteryLevel), 60})

	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("error = %v, want ErrUnknownMessageType", err)
	}
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want 1", len(msgs))
	}
}

func TestParseFileReceive(t *testing.T) {
	p := NewParser(DirectDialect, GenerationBNO085)
	p.BeginFileReceive()

	header := []byte{byte(MsgReceiveFile), 4, 'a', '.', 't', 'x', 0xE8, 0x03, 0, 0}
	msgs, err := p.Parse(header)
	if err != nil {
		t.Fatalf("header error = %v", err)
	}
	h, ok := msgs[0].(FileReceiveHeader)
	if !ok || h.Path != "a.tx" || h.Size != 1000 {
		t.Fatalf("header = %#v", msgs[0])
	}

	chunk := append([]byte{byte(MsgReceiveFile)}, bytes.Repeat([]byte{0x55}, 600)...)
	msgs, err = p.Parse(chunk)
	if err != nil {
		t.Fatalf("chunk error = %v", err)
	}
	c, ok := msgs[0].(FileChunk)
	if !ok || len(c.Data) != 600 {
		t.Fatalf("chunk = %T with %d bytes", msgs[0], len(c.Data))
	}
}

func TestParseSensorDataKeepsGoingPastUnknownSubtype(t *testing.T) {
	frame := []byte{
		byte(MsgSensorData), 0x10, 0x00,
		byte(SensorMotion), 7, 9, 0, 0, 0, 0, 0, 0,
		byte(SensorPressure), 5, byte(PressureMass), 0x00, 0x00, 0x01, 0x00,
	}

	p := NewParser(DirectDialect, GenerationBNO085)
	msgs, err := p.Parse(frame)
	if !errors.Is(err, ErrUnknownMotionSubtype) {
		t.Errorf("error = %v, want ErrUnknownMotionSubtype", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}

	d := msgs[0].(SensorDataUpdate).Data
	if d.Timestamp != 16 {
		t.Errorf("timestamp = %d, want 16", d.Timestamp)
	}
	if len(d.Pressure) != 1 || d.Pressure[0].Mass != 1 {
		t.Errorf("pressure = %+v, want one mass reading of 1", d.Pressure)
	}
}

func TestParseSensorBlockOverrun(t *testing.T) {
	p := NewParser(DirectDialect, GenerationBNO085)
	_, err := p.Parse([]byte{byte(MsgSensorData), 0, 0, byte(SensorMotion), 20, 1, 2})
	if !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("error = %v, want ErrFrameTruncated", err)
	}
}

func TestParsePeerBlock(t *testing.T) {
	frame := []byte{
		byte(MsgPeer), 7,
		byte(PeerGetConnection), 1,
		byte(PeerGetRemoteCharacteristicValue), 4, 2, 0xAA, 0xBB,
		byte(MsgBatteryLevel), 42,
	}

	p := NewParser(DirectDialect, GenerationBNO085)
	msgs, err := p.Parse(frame)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	batch := msgs[0].(PeerBatch)
	if len(batch.Records) != 2 {
		t.Fatalf("peer records = %d, want 2", len(batch.Records))
	}
	if c := batch.Records[0].(PeerConnectionUpdate); !c.Connected {
		t.Errorf("connection record = %+v", c)
	}
	ch := batch.Records[1].(PeerCharacteristicUpdate)
	if ch.Index != 4 || !bytes.Equal(ch.Value, []byte{0xAA, 0xBB}) {
		t.Errorf("characteristic record = %+v", ch)
	}
}

func TestParseGatewayDialect(t *testing.T) {
	p := NewParser(GatewayDialect, GenerationBNO085)
	msgs, err := p.Parse([]byte{0, 1, 64, 4, 2, 'h', 'i'})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if _, ok := msgs[0].(Pong); !ok {
		t.Errorf("msgs[0] = %T, want Pong", msgs[0])
	}
	if b := msgs[1].(BatteryLevel); b.Level != 64 {
		t.Errorf("battery = %d", b.Level)
	}
	if n := msgs[2].(NameUpdate); n.Name != "hi" {
		t.Errorf("name = %q", n.Name)
	}
}

// ============================================================
// Gateway Framing Tests
// ============================================================

func TestParseGatewayFrame(t *testing.T) {
	frame := []byte{
		byte(GatewayNumberOfDevices), 2,
		byte(GatewayDeviceMessage), 1, 2, 1, 77,
		9, 1, 2,
	}

	records, err := ParseGatewayFrame(frame)
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("error = %v, want ErrUnknownMessageType", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].NumberOfDevices != 2 {
		t.Errorf("number of devices = %d", records[0].NumberOfDevices)
	}
	if records[1].DeviceIndex != 1 || !bytes.Equal(records[1].Payload, []byte{1, 77}) {
		t.Errorf("device record = %+v", records[1])
	}
}

func TestEncodeGatewayFrame(t *testing.T) {
	got, err := EncodeGatewayFrame(
		[]GatewayMessageType{GatewayDeviceInformation},
		[]DeviceFrame{{Index: 0, Payload: []byte{2}}, {Index: 1}, {Index: 3, Payload: []byte{4, 5}}},
	)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{1, 2, 0, 1, 2, 3, 2, 4, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}

	_, err = EncodeGatewayFrame(nil, []DeviceFrame{{Index: 0, Payload: make([]byte, 256)}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("oversized frame error = %v", err)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatisticsCountsErrors(t *testing.T) {
	s := NewStatistics()
	p := NewParser(DirectDialect, GenerationBNO085)

	frames := [][]byte{
		{byte(MsgBatteryLevel), 50},
		{byte(MsgBatteryLevel), 150},
		{byte(MsgGetName), 9},
		{200},
	}
	for _, f := range frames {
		msgs, err := p.Parse(f)
		s.Update(f, msgs, err)
	}

	if s.TotalFrames != 4 || s.ValidFrames != 1 {
		t.Errorf("total=%d valid=%d", s.TotalFrames, s.ValidFrames)
	}
	if s.AnomalousValues != 1 {
		t.Errorf("anomalous = %d, want 1", s.AnomalousValues)
	}
	if s.TruncatedFrames != 1 || s.UnknownMessages != 1 {
		t.Errorf("truncated=%d unknown=%d", s.TruncatedFrames, s.UnknownMessages)
	}
	if !strings.Contains(s.String(), "Total Frames") {
		t.Errorf("String() missing header")
	}
}
