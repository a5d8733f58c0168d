// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/gait/internal/config"
	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/internal/gateway"
	"github.com/Thermoquad/gait/internal/logging"
	"github.com/Thermoquad/gait/internal/transport"
	"github.com/Thermoquad/gait/pkg/mission"
)

// connectTimeout bounds dialing plus the connect handshake.
const connectTimeout = 15 * time.Second

// PasswordEnvar holds the Basic auth password.
const PasswordEnvar = "GAIT_PASSWORD"

var slotIndex int

func init() {
	rootCmd.PersistentFlags().IntVar(&slotIndex, "slot", 0, "Gateway slot to talk to (gateway only)")
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(PasswordEnvar); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a plain line
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// commandContext is cancelled on Ctrl+C or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig returns the --config file, or defaults when none was given.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		c := config.Default()
		c.Log = c.Log.ApplyEnv()
		return c, nil
	}
	return config.Load(configPath)
}

// newLogger builds the command logger. --log-level wins over the
// configuration and the environment.
func newLogger(c logging.Config) (zerolog.Logger, io.Closer, error) {
	if logLevel != "" {
		c.Level = logLevel
	}
	return logging.New(c, os.Stderr)
}

func generation() (mission.Generation, error) {
	return mission.ParseGeneration(generationName)
}

func dialOptions(log zerolog.Logger) (transport.DialOptions, error) {
	opts := transport.DialOptions{
		Username:      wsUsername,
		SkipSSLVerify: wsNoSSLVerify,
		Logger:        log,
	}
	if wsUsername != "" {
		password, err := GetPassword()
		if err != nil {
			return opts, err
		}
		opts.Password = password
	}
	return opts, nil
}

// deviceDialer builds a dialer for --url or --port.
func deviceDialer(log zerolog.Logger) (device.DialFunc, string, error) {
	if wsURL != "" {
		opts, err := dialOptions(log)
		if err != nil {
			return nil, "", err
		}
		u := transport.DeviceURL(wsURL)
		dial := func(ctx context.Context) (device.Conn, error) {
			return transport.DialWebSocket(ctx, u, opts)
		}
		return dial, fmt.Sprintf("WebSocket: %s", u), nil
	}

	if portName != "" {
		dial := func(ctx context.Context) (device.Conn, error) {
			return transport.OpenSerial(portName, baudRate, log)
		}
		return dial, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", errors.New("either --url, --gateway or --port must be specified")
}

// gatewayDialer builds a dialer for --gateway.
func gatewayDialer(log zerolog.Logger) (device.DialFunc, string, error) {
	if gatewayAddr == "" {
		return nil, "", errors.New("--gateway must be specified")
	}
	opts, err := dialOptions(log)
	if err != nil {
		return nil, "", err
	}
	u := transport.GatewayURL(gatewayAddr)
	dial := func(ctx context.Context) (device.Conn, error) {
		return transport.DialWebSocket(ctx, u, opts)
	}
	return dial, fmt.Sprintf("Gateway: %s", u), nil
}

// session is one connected mission, direct or behind a gateway.
type session struct {
	Device   *device.Device
	Gateway  *gateway.Gateway
	ConnInfo string
}

func (s *session) Close() error {
	if s.Gateway != nil {
		return s.Gateway.Close()
	}
	return s.Device.Close()
}

// openSession connects to the device selected by the flags and waits for
// its handshake. wrap, when set, decorates every connection.
func openSession(ctx context.Context, log zerolog.Logger, reconnect bool, wrap func(device.Conn) device.Conn) (*session, error) {
	gen, err := generation()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if gatewayAddr != "" {
		return openGatewaySession(ctx, log, gen, reconnect, wrap)
	}

	dial, info, err := deviceDialer(log)
	if err != nil {
		return nil, err
	}
	d := device.New(device.Options{
		Label:      "device",
		Generation: gen,
		Logger:     &log,
		Reconnect:  reconnect,
	})
	if err := d.Connect(ctx, wrapDial(dial, wrap)); err != nil {
		return nil, err
	}
	if err := waitConnected(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	return &session{Device: d, ConnInfo: info}, nil
}

func openGatewaySession(ctx context.Context, log zerolog.Logger, gen mission.Generation, reconnect bool, wrap func(device.Conn) device.Conn) (*session, error) {
	dial, info, err := gatewayDialer(log)
	if err != nil {
		return nil, err
	}
	g := gateway.New(gateway.Options{
		Generation: gen,
		Logger:     &log,
		Reconnect:  reconnect,
	})

	counted := make(chan int, 1)
	g.OnNumberOfDevices(func(n int) {
		select {
		case counted <- n:
		default:
		}
	})
	if err := g.Connect(ctx, wrapDial(dial, wrap)); err != nil {
		return nil, err
	}

	select {
	case n := <-counted:
		if slotIndex < 0 || slotIndex >= n {
			g.Close()
			return nil, fmt.Errorf("gateway has %d devices, no slot %d", n, slotIndex)
		}
	case <-ctx.Done():
		g.Close()
		return nil, fmt.Errorf("waiting for device count: %w", ctx.Err())
	}

	d := g.Device(slotIndex)
	if err := waitConnected(ctx, d); err != nil {
		g.Close()
		return nil, err
	}
	return &session{Device: d, Gateway: g, ConnInfo: fmt.Sprintf("%s slot %d", info, slotIndex)}, nil
}

func wrapDial(dial device.DialFunc, wrap func(device.Conn) device.Conn) device.DialFunc {
	if wrap == nil {
		return dial
	}
	return func(ctx context.Context) (device.Conn, error) {
		conn, err := dial(ctx)
		if err != nil {
			return nil, err
		}
		return wrap(conn), nil
	}
}

// waitConnected blocks until d finished its handshake.
func waitConnected(ctx context.Context, d *device.Device) error {
	ready := make(chan struct{}, 1)
	unsubscribe := d.Subscribe(func(e device.Event) {
		if e.Kind == device.EventConnected {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if d.Connected() {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for handshake: %w", ctx.Err())
	}
}
