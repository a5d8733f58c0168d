// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/internal/config"
	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/internal/gateway"
	"github.com/Thermoquad/gait/internal/status"
	"github.com/Thermoquad/gait/internal/transport"
	"github.com/Thermoquad/gait/pkg/mission"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep configured missions connected and serve their state over HTTP",
	Long: `Connect to every device and the gateway named in --config, apply their
sensor configurations and reconnect when links drop.

Left and right insoles are paired automatically as their types become known.
The status API reports each device and the combined body pressure:

  GET /health
  GET /devices
  GET /devices/{index}
  GET /pressure`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Status API listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return errors.New("serve needs --config")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Status.Addr = serveAddr
	}

	log, closer, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	password, err := servePassword(cfg.Auth)
	if err != nil {
		return err
	}
	dialOpts := transport.DialOptions{
		Username:      cfg.Auth.Username,
		Password:      password,
		SkipSSLVerify: cfg.Auth.NoSSLVerify,
		Logger:        log,
	}

	pair := device.NewPair()
	pair.Subscribe(func(e device.PairEvent) {
		log.Debug().
			Str("side", e.Side.String()).
			Float64("sum", e.Pressure.Sum).
			Float64("left", e.Pressure.LeftMass).
			Float64("right", e.Pressure.RightMass).
			Msg("body pressure")
	})
	tracker := &insoleTracker{pair: pair, log: log}

	f := &fleet{}
	defer f.Close()

	for _, dc := range cfg.Devices {
		d, err := newConfiguredDevice(cfg, dc, &log)
		if err != nil {
			return err
		}
		d.Subscribe(tracker.observe)
		f.addDevice(d)
		go connectWithRetry(ctx, log.With().Str("device", dc.Name).Logger(), cfg.Reconnect.Delay,
			func(ctx context.Context) error { return d.Connect(ctx, configuredDialer(dc, dialOpts, log)) })
	}

	if gc := cfg.Gateway; gc != nil {
		g, err := newConfiguredGateway(cfg, *gc, &log)
		if err != nil {
			return err
		}
		g.OnNumberOfDevices(func(n int) {
			log.Info().Int("devices", n).Msg("gateway slots")
			for _, d := range g.Devices() {
				tracker.watch(d)
			}
		})
		f.setGateway(g)
		u := transport.GatewayURL(gc.URL)
		go connectWithRetry(ctx, log.With().Str("gateway", u).Logger(), cfg.Reconnect.Delay,
			func(ctx context.Context) error {
				return g.Connect(ctx, func(ctx context.Context) (device.Conn, error) {
					return transport.DialWebSocket(ctx, u, dialOpts)
				})
			})
	}

	srv := status.New(f.Devices, pair, log)
	if err := srv.ListenAndServe(ctx, cfg.Status.Addr); err != nil {
		return fmt.Errorf("status API: %w", err)
	}
	log.Info().Msg("shutting down")
	return nil
}

// servePassword reads the password from the configured variable, then the
// default one, then the terminal.
func servePassword(auth config.AuthConfig) (string, error) {
	if auth.Username == "" {
		return "", nil
	}
	if auth.PasswordEnvar != "" {
		if pw := os.Getenv(auth.PasswordEnvar); pw != "" {
			return pw, nil
		}
	}
	return GetPassword()
}

func newConfiguredDevice(cfg config.Config, dc config.DeviceConfig, log *zerolog.Logger) (*device.Device, error) {
	gen, err := mission.ParseGeneration(dc.Generation)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", dc.Name, err)
	}
	sensors, err := sensorsOption(dc.Sensors)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", dc.Name, err)
	}
	return device.New(device.Options{
		Label:                 dc.Name,
		Generation:            gen,
		Logger:                log,
		PollInterval:          cfg.Transfer.PollInterval,
		Reconnect:             cfg.Reconnect.Enabled,
		ReconnectDelay:        cfg.Reconnect.Delay,
		DisableSensorsOnClose: true,
		Sensors:               sensors,
	}), nil
}

func newConfiguredGateway(cfg config.Config, gc config.GatewayConfig, log *zerolog.Logger) (*gateway.Gateway, error) {
	gen, err := mission.ParseGeneration(gc.Generation)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	sensors, err := sensorsOption(gc.Sensors)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return gateway.New(gateway.Options{
		Generation:     gen,
		Logger:         log,
		Reconnect:      cfg.Reconnect.Enabled,
		ReconnectDelay: cfg.Reconnect.Delay,
		Sensors:        sensors,
	}), nil
}

// sensorsOption returns nil for an empty section so the device keeps its
// own configuration.
func sensorsOption(s config.SensorsConfig) (*mission.SensorDataConfigurations, error) {
	if s.Empty() {
		return nil, nil
	}
	c, err := s.SensorDataConfigurations()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func configuredDialer(dc config.DeviceConfig, opts transport.DialOptions, log zerolog.Logger) device.DialFunc {
	if dc.URL != "" {
		u := transport.DeviceURL(dc.URL)
		return func(ctx context.Context) (device.Conn, error) {
			return transport.DialWebSocket(ctx, u, opts)
		}
	}
	return func(ctx context.Context) (device.Conn, error) {
		return transport.OpenSerial(dc.Port, dc.Baud, log)
	}
}

// connectWithRetry repeats the first connect until it succeeds. Later
// drops are handled by the device or gateway itself.
func connectWithRetry(ctx context.Context, log zerolog.Logger, delay time.Duration, connect func(context.Context) error) {
	for {
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := connect(cctx)
		cancel()
		if err == nil {
			log.Info().Msg("connected")
			return
		}
		log.Warn().Err(err).Dur("retry", delay).Msg("connect failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// fleet holds everything serve connects to.
type fleet struct {
	mu      sync.Mutex
	devices []*device.Device
	gateway *gateway.Gateway
}

func (f *fleet) addDevice(d *device.Device) {
	f.mu.Lock()
	f.devices = append(f.devices, d)
	f.mu.Unlock()
}

func (f *fleet) setGateway(g *gateway.Gateway) {
	f.mu.Lock()
	f.gateway = g
	f.mu.Unlock()
}

// Devices lists direct devices first, then gateway slots.
func (f *fleet) Devices() []*device.Device {
	f.mu.Lock()
	out := append([]*device.Device(nil), f.devices...)
	g := f.gateway
	f.mu.Unlock()
	if g != nil {
		out = append(out, g.Devices()...)
	}
	return out
}

func (f *fleet) Close() error {
	f.mu.Lock()
	devices := f.devices
	g := f.gateway
	f.mu.Unlock()

	var errs []error
	for _, d := range devices {
		errs = append(errs, d.Close())
	}
	if g != nil {
		errs = append(errs, g.Close())
	}
	return errors.Join(errs...)
}

// insoleTracker keeps the pair in step with device types.
type insoleTracker struct {
	pair *device.Pair
	log  zerolog.Logger

	mu   sync.Mutex
	seen map[*device.Device]bool
}

// watch subscribes a gateway slot device once. Slots survive reconnects.
func (t *insoleTracker) watch(d *device.Device) {
	t.mu.Lock()
	if t.seen == nil {
		t.seen = make(map[*device.Device]bool)
	}
	if t.seen[d] {
		t.mu.Unlock()
		return
	}
	t.seen[d] = true
	t.mu.Unlock()

	d.Subscribe(t.observe)
	if d.Connected() {
		t.place(d)
	}
}

func (t *insoleTracker) observe(e device.Event) {
	switch e.Kind {
	case device.EventConnected, device.EventType:
		t.place(e.Device)
	}
}

// place moves d to the side its type names, or out of the pair.
func (t *insoleTracker) place(d *device.Device) {
	t.mu.Lock()
	defer t.mu.Unlock()

	typ := d.Type()
	for _, side := range []mission.Side{mission.SideLeft, mission.SideRight} {
		if t.pair.Device(side) == d && (!typ.IsInsole() || typ.Side() != side) {
			t.pair.Replace(side, nil)
			t.log.Info().Str("device", d.Label()).Str("side", side.String()).Msg("left insole pair")
		}
	}
	if !typ.IsInsole() {
		return
	}
	side := typ.Side()
	if t.pair.Device(side) == d {
		return
	}
	t.pair.Replace(side, d)
	t.log.Info().Str("device", d.Label()).Str("side", side.String()).Msg("joined insole pair")
}
