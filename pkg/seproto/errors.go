// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seproto

import (
	"errors"
	"fmt"
)

var (
	ErrLengthMismatch   = errors.New("seproto: length mismatch")
	ErrChecksumMismatch = errors.New("seproto: checksum mismatch")
)

// LengthError reports a header whose length field disagrees with its
// inverted twin, or a message too short for the declared length.
type LengthError struct {
	DataLen    uint16
	DataLenInv uint16
	Available  int
}

func (e *LengthError) Error() string {
	if e.DataLen != ^e.DataLenInv {
		return fmt.Sprintf("length error: dataLen 0x%04X, dataLenInv 0x%04X", e.DataLen, e.DataLenInv)
	}
	return fmt.Sprintf("length error: dataLen %d, only %d bytes available", e.DataLen, e.Available)
}

// Is lets errors.Is match the ErrLengthMismatch sentinel.
func (e *LengthError) Is(target error) bool {
	return target == ErrLengthMismatch
}

// ChecksumError reports a frame whose wire checksum does not match the
// checksum computed over its contents.
type ChecksumError struct {
	Expected uint16 // from the wire
	Computed uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum error: expected 0x%04X, got 0x%04X", e.Expected, e.Computed)
}

// Is lets errors.Is match the ErrChecksumMismatch sentinel.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}
