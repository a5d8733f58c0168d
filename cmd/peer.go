// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/pkg/mission"
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Control the device's BLE peer",
	Long: `Missions can relay a BLE peripheral. These commands connect or disconnect
the peer and read or write its remote characteristics by index.`,
}

var peerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the peer is connected",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			up, err := s.Device.GetPeerConnection(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Peer: %s\n", connectedString(up))
			return nil
		})
	},
}

var peerConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the peer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPeerConnection(cmd, true)
	},
}

var peerDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the peer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPeerConnection(cmd, false)
	},
}

var peerReadCmd = &cobra.Command{
	Use:   "read <index>",
	Short: "Read a remote characteristic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseCharacteristicIndex(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, s *session) error {
			v, err := s.Device.GetCharacteristic(ctx, index)
			if err != nil {
				return err
			}
			fmt.Printf("[%d] %s\n", index, hex.EncodeToString(v))
			return nil
		})
	},
}

var peerWriteCmd = &cobra.Command{
	Use:   "write <index> <hex>",
	Short: "Write a remote characteristic",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseCharacteristicIndex(args[0])
		if err != nil {
			return err
		}
		value, err := hex.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("%w: value: %v", mission.ErrInvalidArgument, err)
		}
		return withSession(cmd, func(ctx context.Context, s *session) error {
			v, err := s.Device.SetCharacteristic(ctx, index, value)
			if err != nil {
				return err
			}
			fmt.Printf("[%d] %s\n", index, hex.EncodeToString(v))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(peerCmd)
	peerCmd.AddCommand(peerStatusCmd, peerConnectCmd, peerDisconnectCmd, peerReadCmd, peerWriteCmd)
}

func parseCharacteristicIndex(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: characteristic index %q", mission.ErrInvalidArgument, s)
	}
	return uint8(v), nil
}

func setPeerConnection(cmd *cobra.Command, connect bool) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		up, err := s.Device.SetPeerConnection(ctx, connect)
		if err != nil {
			return err
		}
		fmt.Printf("Peer: %s\n", connectedString(up))
		return nil
	})
}
