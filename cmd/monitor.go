// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/internal/gateway"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for watching missions",
	Long: `Watch one mission, or every mission behind a gateway, in a terminal UI.

Features:
  - Device list with type, name and battery level
  - Live motion, pressure and calibration for the selected device
  - Frame statistics
  - Event logging
  - Rename the selected device
  - Automatic reconnection on connection loss

Tab switches between the device list and the name field. Arrow keys navigate
the device list. Log output goes to the configured log file only.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The alt screen owns the terminal.
	if cfg.Log.File == "" {
		cfg.Log.Level = "disabled"
		logLevel = ""
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

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var (
		dial     device.DialFunc
		connInfo string
	)
	if gatewayAddr != "" {
		dial, connInfo, err = gatewayDialer(log)
	} else {
		dial, connInfo, err = deviceDialer(log)
	}
	if err != nil {
		return err
	}

	hub := &monitorHub{seen: make(map[*device.Device]bool)}
	m := initialMonitorModel(ctx, connInfo)

	var (
		closeTarget func() error
		connect     func(context.Context) error
	)
	if gatewayAddr != "" {
		g := gateway.New(gateway.Options{Generation: gen, Logger: &log, Reconnect: true})
		g.OnNumberOfDevices(func(n int) {
			hub.publish(g.Devices())
		})
		closeTarget = g.Close
		connect = func(ctx context.Context) error { return g.Connect(ctx, dial) }
	} else {
		d := device.New(device.Options{
			Label:        "device",
			Generation:   gen,
			Logger:       &log,
			PollInterval: cfg.Transfer.PollInterval,
			Reconnect:    true,
		})
		m.setDevices([]*device.Device{d})
		hub.watch(0, d)
		closeTarget = d.Close
		connect = func(ctx context.Context) error { return d.Connect(ctx, dial) }
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	hub.setProgram(p)
	go connectWithRetry(ctx, log, cfg.Reconnect.Delay, connect)

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, runErr := p.Run()
	cancel()
	closeTarget()
	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

// monitorHub forwards device events into the program. Sensor rate events
// stay out of the message queue; the view reads them from snapshots.
type monitorHub struct {
	mu   sync.Mutex
	p    *tea.Program
	seen map[*device.Device]bool
}

func (h *monitorHub) setProgram(p *tea.Program) {
	h.mu.Lock()
	h.p = p
	h.mu.Unlock()
}

func (h *monitorHub) send(msg tea.Msg) {
	h.mu.Lock()
	p := h.p
	h.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (h *monitorHub) publish(devices []*device.Device) {
	for i, d := range devices {
		h.watch(i, d)
	}
	h.send(devicesMsg{devices: devices})
}

func (h *monitorHub) watch(i int, d *device.Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen[d] {
		return
	}
	h.seen[d] = true

	d.Subscribe(func(e device.Event) {
		switch e.Kind {
		case device.EventMotion, device.EventEuler, device.EventPressure, device.EventMass,
			device.EventCenterOfMass, device.EventHeelToToe, device.EventWeight:
			return
		}
		h.send(deviceEventMsg{index: i, event: e})
	})
}
