// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrFirmwareRange is returned for an upgrade chunk outside the buffer
var ErrFirmwareRange = errors.New("session: firmware chunk out of range")

// FirmwareBuffer assembles a firmware image from upgrade-write chunks
// observed on the bus. Unwritten regions stay zero.
type FirmwareBuffer struct {
	path    string
	buf     []byte
	written int
	once    sync.Once
}

// NewFirmwareBuffer creates a zero-filled buffer of size bytes that is
// flushed to path.
func NewFirmwareBuffer(path string, size int) *FirmwareBuffer {
	return &FirmwareBuffer{path: path, buf: make([]byte, size)}
}

// Write places data at offset. At most length bytes are copied.
func (f *FirmwareBuffer) Write(offset, length uint32, data []byte) error {
	n := min(int(length), len(data))
	end := uint64(offset) + uint64(n)
	if end > uint64(len(f.buf)) {
		return fmt.Errorf("%w: offset 0x%08X length %d, buffer %d bytes", ErrFirmwareRange, offset, n, len(f.buf))
	}
	copy(f.buf[offset:end], data[:n])
	f.written += n
	return nil
}

// Bytes returns the assembled image
func (f *FirmwareBuffer) Bytes() []byte {
	return f.buf
}

// Written returns the number of bytes received so far
func (f *FirmwareBuffer) Written() int {
	return f.written
}

// Flush writes the image to its file. Only the first call writes.
func (f *FirmwareBuffer) Flush() error {
	var err error
	f.once.Do(func() {
		if werr := os.WriteFile(f.path, f.buf, 0o644); werr != nil {
			err = fmt.Errorf("write firmware image %s: %w", f.path, werr)
		}
	})
	return err
}
