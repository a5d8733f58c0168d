// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/pkg/mission"
)

var (
	infoJSON    bool
	infoTimeout int
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show type, name, firmware, battery and sensor configuration",
	Long: `Connect, run the handshake and print what the device reported.

The weight data delay is queried on top of the handshake values. Use --json
for the status API snapshot format.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Print a JSON snapshot")
	infoCmd.Flags().IntVar(&infoTimeout, "timeout", 5, "Timeout in seconds for each query")
}

// withSession runs fn against a connected device and closes it afterwards.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
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
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		d := s.Device
		ctx, cancel := context.WithTimeout(ctx, time.Duration(infoTimeout)*time.Second)
		defer cancel()

		if infoJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(d.Snapshot())
		}

		typ, err := d.GetType(ctx)
		if err != nil {
			return fmt.Errorf("type: %w", err)
		}
		name, err := d.GetName(ctx)
		if err != nil {
			return fmt.Errorf("name: %w", err)
		}
		battery, err := d.GetBatteryLevel(ctx)
		if err != nil {
			return fmt.Errorf("battery: %w", err)
		}
		configurations, err := d.GetSensorDataConfigurations(ctx)
		if err != nil {
			return fmt.Errorf("sensor configuration: %w", err)
		}

		fmt.Printf("Connection: %s\n", s.ConnInfo)
		fmt.Printf("Type:       %s\n", typ)
		fmt.Printf("Name:       %q\n", name)
		fmt.Printf("Generation: %s\n", d.Generation())
		fmt.Printf("Battery:    %d%%\n", battery)

		// The gateway dialect has no firmware or peer queries.
		if fw, err := d.GetFirmwareVersion(ctx); err == nil {
			fmt.Printf("Firmware:   %s\n", fw)
		}
		if up, err := d.GetPeerConnection(ctx); err == nil {
			fmt.Printf("Peer:       %s\n", connectedString(up))
		}

		// Missions without a weight sensor never answer.
		wctx, wcancel := context.WithTimeout(ctx, time.Second)
		defer wcancel()
		if delay, err := d.GetWeightDataDelay(wctx); err == nil {
			fmt.Printf("Weight delay: %d ms\n", delay)
		}

		fmt.Printf("Sensors:    ")
		fmt.Println(mission.FormatSensorDataConfigurations(configurations))
		return nil
	})
}

func connectedString(up bool) string {
	if up {
		return "connected"
	}
	return "disconnected"
}
