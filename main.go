// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Gait - host tool for mission wearable sensors
//
// Connects to missions over serial, WebSocket or a gateway, decodes their
// motion and pressure data and drives configuration and file transfers.

package main

import (
	"os"

	"github.com/Thermoquad/gait/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
