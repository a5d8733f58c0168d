// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ValidFrames      uint64
	TotalBytes       uint64
	TotalMessages    uint64
	SensorDataFrames uint64
	DecodeErrors     uint64
	TruncatedFrames  uint64
	UnknownMessages  uint64
	UnknownSubtypes  uint64
	AnomalousValues  uint64

	// Per message type counters
	ByType map[MessageType]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByType:         make(map[MessageType]uint64),
	}
}

// Update updates statistics based on a parsed frame
func (s *Statistics) Update(frame []byte, msgs []Message, parseErr error) {
	s.TotalFrames++
	s.TotalBytes += uint64(len(frame))
	s.LastUpdateTime = time.Now()

	sawSensorData := false
	anomalous := false
	for _, m := range msgs {
		s.TotalMessages++
		s.ByType[m.MessageType()]++
		if m.MessageType() == MsgSensorData {
			sawSensorData = true
		}
		if n := len(ValidateMessage(m)); n > 0 {
			s.AnomalousValues += uint64(n)
			anomalous = true
		}
	}
	if sawSensorData {
		s.SensorDataFrames++
	}

	if parseErr != nil {
		s.DecodeErrors++
		switch {
		case errors.Is(parseErr, ErrFrameTruncated):
			s.TruncatedFrames++
		case errors.Is(parseErr, ErrUnknownMotionSubtype), errors.Is(parseErr, ErrUnknownPressureSubtype):
			s.UnknownSubtypes++
		case errors.Is(parseErr, ErrUnknownMessageType):
			s.UnknownMessages++
		}
		return
	}

	if !anomalous {
		s.ValidFrames++
	}
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.DecodeErrors+s.AnomalousValues) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, errorPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		errorPercent = float64(s.DecodeErrors) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d (%d bytes)\n", s.TotalFrames, s.TotalBytes)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	result += fmt.Sprintf("Messages:        %8d\n", s.TotalMessages)
	result += fmt.Sprintf("Sensor Frames:   %8d\n", s.SensorDataFrames)

	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, errorPercent)
		if s.TruncatedFrames > 0 {
			result += fmt.Sprintf("  Truncated:        %5d\n", s.TruncatedFrames)
		}
		if s.UnknownMessages > 0 {
			result += fmt.Sprintf("  Unknown Types:    %5d\n", s.UnknownMessages)
		}
		if s.UnknownSubtypes > 0 {
			result += fmt.Sprintf("  Unknown Subtypes: %5d\n", s.UnknownSubtypes)
		}
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", s.AnomalousValues)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}
