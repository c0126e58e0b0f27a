// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// JSONSink writes one JSON object per line
type JSONSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewJSONSink creates a JSON lines sink on w. If w is an io.Closer it is
// closed with the sink.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w, enc: json.NewEncoder(w)}
}

func (s *JSONSink) Write(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("json sink: %w", err)
	}
	return nil
}

func (s *JSONSink) Close() error {
	return closeWriter(s.w)
}

// CBORSink writes records as a CBOR sequence
type CBORSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *cbor.Encoder
}

// NewCBORSink creates a CBOR sequence sink on w
func NewCBORSink(w io.Writer) *CBORSink {
	return &CBORSink{w: w, enc: cbor.NewEncoder(w)}
}

func (s *CBORSink) Write(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("cbor sink: %w", err)
	}
	return nil
}

func (s *CBORSink) Close() error {
	return closeWriter(s.w)
}

// closeWriter closes w unless it is a standard stream
func closeWriter(w io.Writer) error {
	if w == os.Stdout || w == os.Stderr {
		return nil
	}
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenStream opens path for appending. "-" selects standard output.
func OpenStream(path string) (io.Writer, error) {
	if path == "-" {
		return os.Stdout, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}
