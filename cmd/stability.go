// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/internal/device"
)

var stabilityCmd = &cobra.Command{
	Use:   "stability",
	Short: "Test link stability",
	Long: `Connect to a mission and hold the link open, counting the frames that
arrive and any decode errors. Sensors keep their current configuration.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runStability,
}

var stabilityDuration int

func init() {
	rootCmd.AddCommand(stabilityCmd)
	stabilityCmd.Flags().IntVar(&stabilityDuration, "duration", 30, "Test duration in seconds")
}

func runStability(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var frames, bytesReceived atomic.Uint64
	wrap := func(c device.Conn) device.Conn {
		return &tapConn{Conn: c, observe: func(frame []byte, outgoing bool) {
			if !outgoing {
				frames.Add(1)
				bytesReceived.Add(uint64(len(frame)))
			}
		}}
	}

	s, err := openSession(ctx, log, false, wrap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	lost := make(chan struct{}, 1)
	s.Device.Subscribe(func(e device.Event) {
		if e.Kind == device.EventDisconnected {
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	})

	fmt.Printf("Link Stability Test\n")
	fmt.Printf("Connection: %s\n", s.ConnInfo)
	fmt.Printf("Duration: %d seconds\n\n", stabilityDuration)

	start := time.Now()
	endTime := start.Add(time.Duration(stabilityDuration) * time.Second)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	results := func(result string) {
		st := s.Device.Stats()
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Frames received: %d\n", frames.Load())
		fmt.Printf("Bytes received: %d\n", bytesReceived.Load())
		fmt.Printf("Messages decoded: %d\n", st.TotalMessages)
		fmt.Printf("Decode errors: %d\n", st.DecodeErrors)
		fmt.Printf("Result: %s\n", result)
	}

	for time.Now().Before(endTime) {
		select {
		case <-lost:
			fmt.Printf("\n[%s] Connection lost\n", time.Now().Format("15:04:05.000"))
			results("FAILED (connection lost)")
			s.Close()
			os.Exit(1)

		case <-ctx.Done():
			results("INTERRUPTED")
			return nil

		case <-ticker.C:
			fmt.Printf("[%s] Still connected... %d frames (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), frames.Load(), time.Until(endTime).Seconds())
		}
	}

	if st := s.Device.Stats(); st.DecodeErrors > 0 {
		results("FAILED (decode errors)")
		s.Close()
		os.Exit(1)
	}
	results("PASSED (connection stable)")
	return nil
}
