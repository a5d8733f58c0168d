// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/pkg/mission"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display mission frames as they arrive.

Each frame is shown with a timestamp, its bytes and every decoded record.
Outgoing frames are shown too, prefixed with '>'. The connect handshake
runs as usual so the device type is known before sensor data arrives.

Supports direct WebSocket, gateway and serial bridge connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

// tapConn hands every frame in both directions to observe before passing
// it on.
type tapConn struct {
	device.Conn
	observe func(frame []byte, outgoing bool)
}

func (t *tapConn) Receive() ([]byte, error) {
	frame, err := t.Conn.Receive()
	if err == nil {
		t.observe(frame, false)
	}
	return frame, err
}

func (t *tapConn) Send(frame []byte) error {
	t.observe(frame, true)
	return t.Conn.Send(frame)
}

// decodedFrame is one device frame. Slot is -1 outside gateway mode.
type decodedFrame struct {
	Slot     int
	Payload  []byte
	Messages []mission.Message
	Err      error
}

// frameDecoder decodes observed inbound frames with its own parsers. In
// gateway mode each slot gets one.
type frameDecoder struct {
	mu      sync.Mutex
	gen     mission.Generation
	gateway bool
	direct  *mission.Parser
	slots   map[uint8]*mission.Parser
}

func newFrameDecoder(gen mission.Generation, gateway bool) *frameDecoder {
	return &frameDecoder{
		gen:     gen,
		gateway: gateway,
		direct:  mission.NewParser(mission.DirectDialect, gen),
		slots:   make(map[uint8]*mission.Parser),
	}
}

// Decode splits and decodes frame. The error covers the gateway envelope
// only; per device errors are in the results.
func (fd *frameDecoder) Decode(frame []byte) ([]decodedFrame, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	if !fd.gateway {
		msgs, err := fd.direct.Parse(frame)
		return []decodedFrame{{Slot: -1, Payload: frame, Messages: msgs, Err: err}}, nil
	}

	records, err := mission.ParseGatewayFrame(frame)
	var out []decodedFrame
	for _, r := range records {
		if r.Type != mission.GatewayDeviceMessage {
			continue
		}
		p, ok := fd.slots[r.DeviceIndex]
		if !ok {
			p = mission.NewParser(mission.GatewayDialect, fd.gen)
			fd.slots[r.DeviceIndex] = p
		}
		msgs, perr := p.Parse(r.Payload)
		out = append(out, decodedFrame{Slot: int(r.DeviceIndex), Payload: r.Payload, Messages: msgs, Err: perr})
	}
	return out, err
}

// printFrame prints one frame in the raw log format.
func printFrame(at time.Time, frame []byte, outgoing bool, fd *frameDecoder) {
	if outgoing {
		fmt.Printf("> [%s] len=%d % X\n", at.Format("15:04:05.000"), len(frame), frame)
		return
	}
	decoded, err := fd.Decode(frame)
	if fd.gateway {
		fmt.Printf("[%s] gateway len=%d % X\n", at.Format("15:04:05.000"), len(frame), frame)
	}
	for _, f := range decoded {
		if f.Slot >= 0 {
			fmt.Printf("  slot %d ", f.Slot)
		}
		fmt.Print(mission.FormatFrame(at, f.Payload, f.Messages, f.Err))
	}
	if err != nil {
		fmt.Printf("  ! %v\n", err)
	}
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	gen, err := generation()
	if err != nil {
		return err
	}

	fd := newFrameDecoder(gen, gatewayAddr != "")
	var printMu sync.Mutex
	wrap := func(c device.Conn) device.Conn {
		return &tapConn{Conn: c, observe: func(frame []byte, outgoing bool) {
			printMu.Lock()
			defer printMu.Unlock()
			printFrame(time.Now(), frame, outgoing, fd)
		}}
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, log, true, wrap)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Gait - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", s.ConnInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	<-ctx.Done()
	return nil
}
