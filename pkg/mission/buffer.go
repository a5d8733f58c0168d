// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Readers take a frame and an offset and return the value and the offset
// just past it. All multi-byte values are little-endian.

// ReadU8 reads one byte.
func ReadU8(buf []byte, off int) (uint8, int, error) {
	if off < 0 || off+1 > len(buf) {
		return 0, off, truncated("u8", off, 1, len(buf))
	}
	return buf[off], off + 1, nil
}

// ReadU16LE reads an unsigned 16-bit value.
func ReadU16LE(buf []byte, off int) (uint16, int, error) {
	if off < 0 || off+2 > len(buf) {
		return 0, off, truncated("u16", off, 2, len(buf))
	}
	return binary.LittleEndian.Uint16(buf[off:]), off + 2, nil
}

// ReadI16LE reads a signed 16-bit value.
func ReadI16LE(buf []byte, off int) (int16, int, error) {
	v, next, err := ReadU16LE(buf, off)
	return int16(v), next, err
}

// ReadU32LE reads an unsigned 32-bit value.
func ReadU32LE(buf []byte, off int) (uint32, int, error) {
	if off < 0 || off+4 > len(buf) {
		return 0, off, truncated("u32", off, 4, len(buf))
	}
	return binary.LittleEndian.Uint32(buf[off:]), off + 4, nil
}

// ReadF32LE reads an IEEE-754 single.
func ReadF32LE(buf []byte, off int) (float32, int, error) {
	v, next, err := ReadU32LE(buf, off)
	return math.Float32frombits(v), next, err
}

// ReadF64LE reads an IEEE-754 double.
func ReadF64LE(buf []byte, off int) (float64, int, error) {
	if off < 0 || off+8 > len(buf) {
		return 0, off, truncated("f64", off, 8, len(buf))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[off:])), off + 8, nil
}

// ReadBytes returns a copy of the next n bytes.
func ReadBytes(buf []byte, off, n int) ([]byte, int, error) {
	if n < 0 || off < 0 || off+n > len(buf) {
		return nil, off, truncated("bytes", off, n, len(buf))
	}
	out := make([]byte, n)
	copy(out, buf[off:off+n])
	return out, off + n, nil
}

// ReadString reads a u8 length followed by that many bytes.
func ReadString(buf []byte, off int) (string, int, error) {
	n, next, err := ReadU8(buf, off)
	if err != nil {
		return "", off, err
	}
	if next+int(n) > len(buf) {
		return "", off, truncated("string", next, int(n), len(buf))
	}
	return string(buf[next : next+int(n)]), next + int(n), nil
}

// Writer builds an outbound record.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns a writer with room for n bytes.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// U8 appends one byte.
func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// Bool appends 1 or 0.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

// U16LE appends an unsigned 16-bit value.
func (w *Writer) U16LE(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

// U32LE appends an unsigned 32-bit value.
func (w *Writer) U32LE(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// String appends a u8 length and s. Strings over MaxStringLength bytes
// poison the writer with ErrInvalidArgument.
func (w *Writer) String(s string) *Writer {
	if len(s) > MaxStringLength {
		if w.err == nil {
			w.err = fmt.Errorf("%w: string of %d bytes exceeds %d", ErrInvalidArgument, len(s), MaxStringLength)
		}
		return w
	}
	w.buf = append(w.buf, byte(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written bytes or the first error.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// Concat joins buffers, skipping empty ones.
func Concat(bufs ...[]byte) []byte {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		out = append(out, b...)
	}
	return out
}
