// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var firmwareCmd = &cobra.Command{
	Use:   "firmware <image>",
	Short: "Stream a firmware image to the device",
	Long: `Announce the image size, stream the image and wait until the connection
has drained it. The device reboots into the new firmware on its own.

An interrupted update is not resumed; run the command again.`,
	Args: cobra.ExactArgs(1),
	RunE: runFirmware,
}

func init() {
	rootCmd.AddCommand(firmwareCmd)
}

func runFirmware(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		if fw, err := s.Device.GetFirmwareVersion(ctx); err == nil {
			fmt.Printf("Current firmware: %s\n", fw)
		}
		fmt.Printf("Updating with %s (%d bytes)\n", args[0], len(image))
		if _, err := awaitTransfer(ctx, s.Device, transferFirmware, func() error {
			return s.Device.UpdateFirmware(image)
		}); err != nil {
			return err
		}
		fmt.Println("Firmware sent")
		return nil
	})
}
