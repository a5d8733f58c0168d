// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/pkg/mission"
)

var setTypeCmd = &cobra.Command{
	Use:   "set_type <motion|left|right>",
	Short: "Set the device role",
	Long: `Set whether the mission is a motion module or a left or right insole.

The role selects the correction table applied to motion data and whether
pressure data is decoded.`,
	Args: cobra.ExactArgs(1),
	RunE: runSetType,
}

func init() {
	rootCmd.AddCommand(setTypeCmd)
}

func runSetType(cmd *cobra.Command, args []string) error {
	t, err := mission.ParseDeviceType(args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		got, err := s.Device.SetType(ctx, t)
		if err != nil {
			return err
		}
		fmt.Printf("Type: %s\n", got)
		return nil
	})
}
