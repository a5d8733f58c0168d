// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/pkg/mission"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that a mission answers on the raw link",
	Long: `Open the link without the connect handshake, ask for the device type and
battery level and wait for the first frame that decodes cleanly.

Only direct links (--url or --port) can be probed.

Exit codes:
  0 - Valid frame received
  1 - Timeout, no valid frame
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 5, "Seconds to wait for a valid frame")
}

func runProbe(cmd *cobra.Command, args []string) error {
	if gatewayAddr != "" {
		return errors.New("probe works on direct links only")
	}
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
	dial, connInfo, err := deviceDialer(log)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	conn, err := dial(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Probing %s\n", connInfo)
	fmt.Printf("Waiting for valid frame (timeout: %ds)...\n", probeTimeout)

	var q mission.CommandQueue
	q.Set(mission.NewGetCommand(mission.MsgGetType))
	q.Set(mission.NewGetCommand(mission.MsgBatteryLevel))
	request, err := q.Flatten(mission.DirectDialect)
	if err != nil {
		return err
	}
	if err := conn.Send(request); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(2)
	}

	frameChan := make(chan probeResult, 1)
	errChan := make(chan error, 1)
	go readFirstValidFrame(conn, mission.NewParser(mission.DirectDialect, gen), frameChan, errChan)

	select {
	case r := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		if r.skipped > 0 {
			fmt.Printf("  (skipped %d frames that did not decode)\n", r.skipped)
		}
		fmt.Printf("  Length: %d bytes\n", len(r.frame))
		for _, m := range r.messages {
			fmt.Printf("  %s\n", strings.TrimSpace(mission.FormatMessage(m)))
		}
		conn.Close()
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		conn.Close()
		os.Exit(2)

	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", probeTimeout)
		conn.Close()
		os.Exit(1)

	case <-ctx.Done():
	}
	return nil
}

type probeResult struct {
	frame    []byte
	messages []mission.Message
	skipped  int
}

func readFirstValidFrame(conn device.Conn, p *mission.Parser, frames chan<- probeResult, errs chan<- error) {
	skipped := 0
	for {
		frame, err := conn.Receive()
		if err != nil {
			errs <- err
			return
		}
		msgs, err := p.Parse(frame)
		if err != nil || len(msgs) == 0 {
			skipped++
			continue
		}
		frames <- probeResult{frame: frame, messages: msgs, skipped: skipped}
		return
	}
}
