// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/internal/device"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Transfer files to and from the device filesystem",
	Long: `Upload, download and remove files on the device, or format its filesystem.

Only one transfer runs per device at a time. File commands are not available
through a gateway.`,
}

var fileSendCmd = &cobra.Command{
	Use:   "send <local> <remote>",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, s *session) error {
			fmt.Printf("Sending %s (%d bytes) to %s\n", args[0], len(data), args[1])
			_, err := awaitTransfer(ctx, s.Device, transferFile, func() error {
				return s.Device.SendFile(args[1], data)
			})
			return err
		})
	},
}

var fileGetCmd = &cobra.Command{
	Use:   "get <remote> [local]",
	Short: "Download a file",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		local := filepath.Base(args[0])
		if len(args) == 2 {
			local = args[1]
		}
		return withSession(cmd, func(ctx context.Context, s *session) error {
			fmt.Printf("Receiving %s\n", args[0])
			f, err := awaitTransfer(ctx, s.Device, transferFile, func() error {
				return s.Device.ReceiveFile(args[0])
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(local, f.Data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(f.Data), local)
			return nil
		})
	},
}

var fileRemoveCmd = &cobra.Command{
	Use:   "rm <remote>",
	Short: "Remove a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := awaitAck(ctx, s.Device, device.EventFileRemoved, func() error {
				return s.Device.RemoveFile(args[0])
			}); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		})
	},
}

var fileFormatCmd = &cobra.Command{
	Use:   "format",
	Short: "Erase the device filesystem",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := awaitAck(ctx, s.Device, device.EventFilesystemFormatted, s.Device.FormatFilesystem); err != nil {
				return err
			}
			fmt.Println("Filesystem formatted")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(fileCmd)
	fileCmd.AddCommand(fileSendCmd, fileGetCmd, fileRemoveCmd, fileFormatCmd)
}

// transferKinds names the events of one kind of transfer.
type transferKinds struct {
	progress, complete, failed device.EventKind
}

var (
	transferFile     = transferKinds{device.EventFileTransferProgress, device.EventFileTransferComplete, device.EventFileTransferFailed}
	transferFirmware = transferKinds{device.EventFirmwareUpdateProgress, device.EventFirmwareUpdateComplete, device.EventFirmwareUpdateFailed}
)

// awaitTransfer runs start and renders progress until the transfer ends.
func awaitTransfer(ctx context.Context, d *device.Device, kinds transferKinds, start func() error) (*device.File, error) {
	if st := d.TransferState(); st != device.TransferIdle {
		return nil, fmt.Errorf("device busy: %s", st)
	}

	events := make(chan device.Event, 16)
	stop := make(chan struct{})
	unsubscribe := d.Subscribe(func(e device.Event) {
		switch e.Kind {
		case kinds.progress:
			select {
			case events <- e:
			default:
			}
		case kinds.complete, kinds.failed, device.EventDisconnected:
			select {
			case events <- e:
			case <-stop:
			}
		}
	})
	defer unsubscribe()
	defer close(stop)

	if err := start(); err != nil {
		return nil, err
	}

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil, ctx.Err()
		case e := <-events:
			switch e.Kind {
			case kinds.progress:
				fmt.Printf("\r%s", bar.ViewAs(e.Progress))
			case kinds.complete:
				fmt.Printf("\r%s\n", bar.ViewAs(1))
				return e.File, nil
			case kinds.failed:
				fmt.Println()
				return nil, fmt.Errorf("transfer failed: %w", e.Err)
			case device.EventDisconnected:
				fmt.Println()
				return nil, device.ErrDisconnected
			}
		}
	}
}

// awaitAck runs start and waits for the acknowledging event.
func awaitAck(ctx context.Context, d *device.Device, ack device.EventKind, start func() error) error {
	done := make(chan error, 1)
	unsubscribe := d.Subscribe(func(e device.Event) {
		var err error
		switch e.Kind {
		case ack:
		case device.EventFileTransferFailed:
			err = e.Err
		case device.EventDisconnected:
			err = device.ErrDisconnected
		default:
			return
		}
		select {
		case done <- err:
		default:
		}
	})
	defer unsubscribe()

	if err := start(); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
