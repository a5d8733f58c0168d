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

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and anomalous values",
	Long: `Track decode errors and anomalous values with statistics.

This command validates each inbound frame and detects:
  - Truncated frames and unknown message or sensor sub-types
  - Anomalous values (battery above 100%, calibration above 3,
    non-unit quaternions, center of mass outside the insole)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Statistics summaries are printed at a configurable interval.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

// frameChecker validates inbound frames and keeps statistics.
type frameChecker struct {
	mu      sync.Mutex
	decoder *frameDecoder
	stats   *mission.Statistics
	showAll bool
}

func (c *frameChecker) observe(frame []byte, outgoing bool) {
	if outgoing {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	decoded, err := c.decoder.Decode(frame)
	if err != nil {
		printDecodeError(-1, err)
	}
	for _, f := range decoded {
		c.stats.Update(f.Payload, f.Messages, f.Err)
		if f.Err != nil {
			printDecodeError(f.Slot, f.Err)
		}
		for _, m := range f.Messages {
			if errs := mission.ValidateMessage(m); len(errs) > 0 {
				printValidationErrors(f.Slot, m, errs)
			} else if c.showAll {
				fmt.Print(mission.FormatMessage(m))
			}
		}
	}
}

func slotPrefix(slot int) string {
	if slot < 0 {
		return ""
	}
	return fmt.Sprintf("slot %d ", slot)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(slot int, err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] %s\033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, slotPrefix(slot), err)
	fmt.Printf("  >>> FRAME DISCARDED FROM HERE <<<\n\n")
}

// printValidationErrors prints validation errors for a message
func printValidationErrors(slot int, m mission.Message, errors []mission.ValidationError) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] %s\033[1;33mVALIDATION ERROR:\033[0m %s\n", timestamp, slotPrefix(slot), m.MessageType())

	for i, err := range errors {
		switch err.Type {
		case mission.AnomalyQuaternionNorm:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if norm, ok := err.Details["norm"].(float64); ok {
				fmt.Printf("    norm=%.4f (want 1)\n", norm)
			}

		case mission.AnomalyCenterOfMassRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		case mission.AnomalyInvalidValue, mission.AnomalyNameLength:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}
	fmt.Print(mission.FormatMessage(m))
	fmt.Println()
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
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
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive")
	}

	checker := &frameChecker{
		decoder: newFrameDecoder(gen, gatewayAddr != ""),
		stats:   mission.NewStatistics(),
		showAll: showAll,
	}
	wrap := func(c device.Conn) device.Conn {
		return &tapConn{Conn: c, observe: checker.observe}
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, log, true, wrap)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Gait - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", s.ConnInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-statsTicker.C:
			checker.mu.Lock()
			summary := checker.stats.String()
			checker.mu.Unlock()
			fmt.Println()
			fmt.Print(summary)
			fmt.Println()
		}
	}
}
