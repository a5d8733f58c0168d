// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial bridge flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	gatewayAddr   string
	wsUsername    string
	wsNoSSLVerify bool

	// Decoding and logging
	generationName string
	configPath     string
	logLevel       string
)

var rootCmd = &cobra.Command{
	Use:   "gait",
	Short: "Mission sensor protocol host",
	Long: `Gait - A CLI tool for talking to mission motion modules and insoles.

Provides commands for raw frame logging, querying and configuring devices,
file and firmware transfer, a live monitor and a long running status service.

Connection modes:
  Device:         --url 192.168.4.1 (ws://<addr>/ws) or a full ws:// URL
  Gateway:        --gateway 192.168.4.1 (wss://<addr>:8080) or a full URL
  Serial bridge:  --port /dev/ttyUSB0 [--baud 115200]

For WebSocket authentication, the password is read from the GAIT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "0.4.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Serial bridge flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial bridge device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Device address or WebSocket URL")
	rootCmd.PersistentFlags().StringVar(&gatewayAddr, "gateway", "", "Gateway address or WebSocket URL")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&generationName, "generation", "BNO085", "IMU generation (BNO055, BNO080, BNO085)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
