// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Round-trip PING to a device behind a gateway",
	Long: `Send PING to the device in --slot and wait for it to echo.

This verifies the gateway connection, its authentication and that the
gateway relays traffic to the device and back. Directly connected missions
do not answer PING.

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	if gatewayAddr == "" {
		return fmt.Errorf("ping needs --gateway")
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

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, log, false, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	fmt.Printf("Gait - Ping Test\n")
	fmt.Printf("Connection: %s\n", s.ConnInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		pctx, pcancel := context.WithTimeout(ctx, time.Duration(pingTimeout)*time.Second)
		rtt, err := s.Gateway.Ping(pctx, slotIndex)
		pcancel()

		switch {
		case err == nil:
			fmt.Printf("PONG from slot %d, rtt=%v\n", slotIndex, rtt.Round(time.Millisecond))
			successCount++
		case pctx.Err() == context.DeadlineExceeded:
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		if ctx.Err() != nil {
			break
		}
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		s.Close()
		os.Exit(1)
	}
	return nil
}
