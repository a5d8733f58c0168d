// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the codec. Callers match them with errors.Is.
var (
	// ErrFrameTruncated means a read or a declared length ran past the end of the frame.
	ErrFrameTruncated = errors.New("mission: frame truncated")

	// ErrUnknownMessageType means a record tag is not defined by the dialect.
	ErrUnknownMessageType = errors.New("mission: unknown message type")

	// ErrUnknownMotionSubtype means a motion record tag is not a MotionDataType.
	ErrUnknownMotionSubtype = errors.New("mission: unknown motion subtype")

	// ErrUnknownPressureSubtype means a pressure record tag is not a PressureDataType.
	ErrUnknownPressureSubtype = errors.New("mission: unknown pressure subtype")

	// ErrInvalidArgument means an outbound value cannot be encoded.
	ErrInvalidArgument = errors.New("mission: invalid argument")
)

// DecodeError locates a decode failure inside a frame.
type DecodeError struct {
	Offset int
	Tag    byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("offset %d (tag 0x%02X): %v", e.Offset, e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func truncated(what string, offset, need, have int) error {
	return fmt.Errorf("%w: %s needs %d bytes at offset %d, frame has %d", ErrFrameTruncated, what, need, offset, have)
}
