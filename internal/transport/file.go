// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// FileConn reads a capture file. Replies cannot be written to it.
type FileConn struct {
	f      *os.File
	follow bool
}

// OpenFile opens a capture file. "-" reads standard input. A followed file
// reports end of file as an empty read so the caller keeps waiting for
// appended data.
func OpenFile(path string, follow bool) (*FileConn, error) {
	if path == "-" || path == "" {
		return &FileConn{f: os.Stdin, follow: follow}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &FileConn{f: f, follow: follow}, nil
}

func (c *FileConn) Read(p []byte) (int, error) {
	n, err := c.f.Read(p)
	if c.follow && errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (c *FileConn) Write(p []byte) (int, error) {
	return 0, ErrReadOnly
}

func (c *FileConn) Close() error {
	if c.f == os.Stdin {
		return nil
	}
	return c.f.Close()
}
