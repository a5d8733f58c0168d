// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package status serves device snapshots over HTTP as JSON, or CBOR when
// the client asks for application/cbor.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/gait/internal/device"
)

const contentTypeCBOR = "application/cbor"

// DeviceSource lists the devices to report.
type DeviceSource func() []*device.Device

// Server is the status HTTP API.
type Server struct {
	router  chi.Router
	log     zerolog.Logger
	devices DeviceSource
	pair    *device.Pair
}

// New builds the router. pair may be nil when no insole pair is configured.
func New(devices DeviceSource, pair *device.Pair, log zerolog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     log,
		devices: devices,
		pair:    pair,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/health", s.health)
	s.router.Get("/devices", s.listDevices)
	s.router.Get("/devices/{index}", s.getDevice)
	s.router.Get("/pressure", s.getPressure)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("status API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.devices()
	snaps := make([]device.Snapshot, 0, len(devices))
	for _, d := range devices {
		snaps = append(snaps, d.Snapshot())
	}
	s.write(w, r, snaps)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "device index must be a number", http.StatusBadRequest)
		return
	}
	devices := s.devices()
	if index < 0 || index >= len(devices) {
		http.Error(w, "no such device", http.StatusNotFound)
		return
	}
	s.write(w, r, devices[index].Snapshot())
}

func (s *Server) getPressure(w http.ResponseWriter, r *http.Request) {
	if s.pair == nil {
		http.Error(w, "no insole pair configured", http.StatusNotFound)
		return
	}
	s.write(w, r, s.pair.Pressure())
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, v any) {
	var (
		body        []byte
		err         error
		contentType string
	)
	if strings.Contains(r.Header.Get("Accept"), contentTypeCBOR) {
		body, err = cbor.Marshal(v)
		contentType = contentTypeCBOR
	} else {
		body, err = json.Marshal(v)
		contentType = "application/json"
	}
	if err != nil {
		s.log.Error().Err(err).Msg("encoding response failed")
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
