// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/internal/gateway"
)

var (
	gatewayWatch     bool
	gatewayTelemetry bool
	gatewayWait      int
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "List the missions behind a gateway",
	Long: `Connect to a gateway, wait for it to announce its devices and print the
type, name and battery level of each one.

With --watch the command keeps running and prints device events, reconnecting
when the gateway drops the connection.`,
	Args: cobra.NoArgs,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
	gatewayCmd.Flags().BoolVar(&gatewayWatch, "watch", false, "Keep running and print device events")
	gatewayCmd.Flags().BoolVar(&gatewayTelemetry, "telemetry", false, "Include sensor data events when watching")
	gatewayCmd.Flags().IntVar(&gatewayWait, "wait", 5, "Seconds to wait for slot handshakes")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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
	dial, info, err := gatewayDialer(log)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	g := gateway.New(gateway.Options{
		Generation: gen,
		Logger:     &log,
		Reconnect:  gatewayWatch,
	})
	defer g.Close()

	var printMu sync.Mutex
	watcher := &slotWatcher{printMu: &printMu, telemetry: gatewayTelemetry, seen: make(map[*device.Device]bool)}
	counted := make(chan int, 1)
	g.OnNumberOfDevices(func(n int) {
		if gatewayWatch {
			for i, d := range g.Devices() {
				watcher.watch(i, d)
			}
		}
		select {
		case counted <- n:
		default:
		}
	})

	cctx, ccancel := context.WithTimeout(ctx, connectTimeout)
	defer ccancel()
	if err := g.Connect(cctx, dial); err != nil {
		return err
	}

	fmt.Printf("Gait - Gateway\n")
	fmt.Printf("Connection: %s\n\n", info)

	var n int
	select {
	case n = <-counted:
	case <-cctx.Done():
		return fmt.Errorf("waiting for device count: %w", cctx.Err())
	}

	wctx, wcancel := context.WithTimeout(ctx, time.Duration(gatewayWait)*time.Second)
	defer wcancel()
	printMu.Lock()
	fmt.Printf("%d device(s)\n", n)
	printMu.Unlock()
	for i := 0; i < n; i++ {
		d := g.Device(i)
		if d == nil {
			continue
		}
		line := describeSlot(wctx, i, d)
		printMu.Lock()
		fmt.Println(line)
		printMu.Unlock()
	}

	if !gatewayWatch {
		return nil
	}
	<-ctx.Done()
	return nil
}

func describeSlot(ctx context.Context, i int, d *device.Device) string {
	if err := waitConnected(ctx, d); err != nil {
		return fmt.Sprintf("  [%d] no answer", i)
	}
	typ, _ := d.GetType(ctx)
	name, _ := d.GetName(ctx)
	battery, err := d.GetBatteryLevel(ctx)
	if err != nil {
		return fmt.Sprintf("  [%d] %-12s %q", i, typ, name)
	}
	return fmt.Sprintf("  [%d] %-12s %-32q %3d%%", i, typ, name, battery)
}

// slotWatcher prints slot events. Slots survive reconnects, so each device
// is subscribed once.
type slotWatcher struct {
	mu        sync.Mutex
	printMu   *sync.Mutex
	telemetry bool
	seen      map[*device.Device]bool
}

func (w *slotWatcher) watch(i int, d *device.Device) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[d] {
		return
	}
	w.seen[d] = true

	d.Subscribe(func(e device.Event) {
		if isTelemetry(e.Kind) && !w.telemetry {
			return
		}
		w.printMu.Lock()
		defer w.printMu.Unlock()
		fmt.Printf("[%s] slot %d %s\n", time.Now().Format("15:04:05.000"), i, describeEvent(e))
	})
}
