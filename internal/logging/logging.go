// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the zerolog logger shared by every gait command.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Environment overrides
const (
	EnvLevel  = "GAIT_LOG_LEVEL"
	EnvFormat = "GAIT_LOG_FORMAT"
)

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config selects level, format and an optional rotated log file.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// Runtime is the profile used by the CLI.
func Runtime() Config {
	return Config{
		Level:      "info",
		Format:     FormatConsole,
		MaxSizeMB:  10,
		MaxAgeDays: 14,
		MaxBackups: 3,
	}
}

// Test is the profile used by package tests: quiet and machine readable.
func Test() Config {
	return Config{
		Level:  "warn",
		Format: FormatJSON,
	}
}

// ApplyEnv overrides level and format from the environment.
func (c Config) ApplyEnv() Config {
	if v := os.Getenv(EnvLevel); v != "" {
		c.Level = v
	}
	if v := os.Getenv(EnvFormat); v != "" {
		c.Format = v
	}
	return c
}

// Validate checks level and format.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("log level %q: %w", c.Level, err)
	}
	switch c.Format {
	case "", FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("log format %q: must be %s or %s", c.Format, FormatConsole, FormatJSON)
	}
	return nil
}

// New builds a logger writing to out and, when File is set, to a rotated
// file. The returned closer releases the file.
func New(c Config, out io.Writer) (zerolog.Logger, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	level, _ := zerolog.ParseLevel(strings.ToLower(c.Level))

	var w io.Writer = out
	if c.Format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if c.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxAge:     c.MaxAgeDays,
			MaxBackups: c.MaxBackups,
			Compress:   c.Compress,
		}
		// The file always gets JSON.
		w = zerolog.MultiLevelWriter(w, rotator)
		closer = rotator
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Str("app", "gait").Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
