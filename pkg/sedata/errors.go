// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sedata

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownFunction = errors.New("sedata: unknown function")
	ErrUnknownOpMode   = errors.New("sedata: unknown operating mode")
	ErrTruncated       = errors.New("sedata: truncated payload")
)

// UnknownFunctionError reports a function code with no registered decoder.
type UnknownFunctionError struct {
	Function uint16
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function 0x%04x", e.Function)
}

// Is lets errors.Is match the ErrUnknownFunction sentinel.
func (e *UnknownFunctionError) Is(target error) bool {
	return target == ErrUnknownFunction
}

func truncated(what string, need, have int) error {
	return fmt.Errorf("%w: %s needs %d bytes, have %d", ErrTruncated, what, need, have)
}
