// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
)

func TestNewJSON(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "debug", Format: FormatJSON}, &buf)
	is.NoErr(err)
	defer closer.Close()

	logger.Debug().Str("device", "left").Msg("connected")

	var entry map[string]any
	is.NoErr(json.Unmarshal(buf.Bytes(), &entry))
	is.Equal(entry["message"], "connected")
	is.Equal(entry["device"], "left")
	is.Equal(entry["app"], "gait")
}

func TestLevelFilters(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	logger, _, err := New(Test(), &buf)
	is.NoErr(err)

	logger.Info().Msg("hidden")
	is.Equal(buf.Len(), 0)

	logger.Warn().Msg("shown")
	is.True(buf.Len() > 0)
}

func TestApplyEnv(t *testing.T) {
	is := is.New(t)
	t.Setenv(EnvLevel, "trace")
	t.Setenv(EnvFormat, FormatJSON)

	c := Runtime().ApplyEnv()
	is.Equal(c.Level, "trace")
	is.Equal(c.Format, FormatJSON)
}

func TestValidate(t *testing.T) {
	is := is.New(t)

	is.True(Config{Level: "loud"}.Validate() != nil)
	is.True(Config{Level: "info", Format: "xml"}.Validate() != nil)
	is.NoErr(Runtime().Validate())
}

func TestRotatedFile(t *testing.T) {
	is := is.New(t)

	c := Test()
	c.File = filepath.Join(t.TempDir(), "gait.log")

	var buf bytes.Buffer
	logger, closer, err := New(c, &buf)
	is.NoErr(err)

	logger.Error().Msg("to both")
	is.NoErr(closer.Close())
	is.True(buf.Len() > 0)
}
