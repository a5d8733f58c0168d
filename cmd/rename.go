// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/pkg/mission"
)

var renameCmd = &cobra.Command{
	Use:   "rename <name>",
	Short: "Set the advertised device name",
	Long: fmt.Sprintf(`Set the name the device advertises.

Names longer than %d bytes are truncated on a character boundary.`, mission.MaxNameLength),
	Args: cobra.ExactArgs(1),
	RunE: runRename,
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		if t := mission.TruncateName(args[0]); t != args[0] {
			fmt.Printf("Name truncated to %q\n", t)
		}
		name, err := s.Device.SetName(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Name: %q\n", name)
		return nil
	})
}
