// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport opens the byte streams the monitor reads from: capture
// files, RS485 serial adapters, TCP connections and websocket bridges.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Conn is a bidirectional byte stream
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Kind selects the transport
type Kind string

const (
	KindFile      Kind = "file"
	KindSerial    Kind = "serial"
	KindNetwork   Kind = "network"
	KindWebSocket Kind = "websocket"
)

// ErrReadOnly is returned when writing to a capture file
var ErrReadOnly = errors.New("transport: read-only connection")

// DefaultSerialReadTimeout bounds a single serial read so cancellation is
// noticed promptly.
const DefaultSerialReadTimeout = 500 * time.Millisecond

// Options describes how to open a transport
type Options struct {
	Kind Kind

	// File
	Path   string
	Follow bool

	// Serial
	Port        string
	Baud        int
	ReadTimeout time.Duration

	// Network: Listen accepts one peer at a time, Dial connects out
	Listen string
	Dial   string

	// WebSocket
	URL           string
	Username      string
	Password      string
	SkipTLSVerify bool
}

// Opener opens (and reopens) the configured transport
type Opener struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewOpener creates an Opener for opts
func NewOpener(opts Options, log zerolog.Logger) *Opener {
	if opts.Baud == 0 {
		opts.Baud = 115200
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultSerialReadTimeout
	}
	return &Opener{opts: opts, log: log.With().Str("component", "transport").Logger()}
}

// Open opens a new connection
func (o *Opener) Open(ctx context.Context) (Conn, error) {
	switch o.opts.Kind {
	case KindFile:
		return OpenFile(o.opts.Path, o.opts.Follow)
	case KindSerial:
		return OpenSerial(o.opts.Port, o.opts.Baud, o.opts.ReadTimeout)
	case KindNetwork:
		if o.opts.Listen != "" {
			return o.accept(ctx)
		}
		return DialTCP(ctx, o.opts.Dial)
	case KindWebSocket:
		return OpenWebSocket(ctx, o.opts.URL, o.opts.Username, o.opts.Password, o.opts.SkipTLSVerify)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", o.opts.Kind)
	}
}

// Live reports whether an empty read means "no data yet" rather than end
// of stream.
func (o *Opener) Live() bool {
	return o.opts.Kind != KindFile || o.opts.Follow
}

// Reconnectable reports whether a lost connection should be reopened
func (o *Opener) Reconnectable() bool {
	return o.opts.Kind == KindNetwork || o.opts.Kind == KindWebSocket
}

// Writable reports whether replies can be sent on this transport
func (o *Opener) Writable() bool {
	return o.opts.Kind != KindFile
}

// Describe returns a human-readable description of the transport
func (o *Opener) Describe() string {
	switch o.opts.Kind {
	case KindFile:
		if o.opts.Follow {
			return fmt.Sprintf("File: %s (follow)", o.opts.Path)
		}
		return fmt.Sprintf("File: %s", o.opts.Path)
	case KindSerial:
		return fmt.Sprintf("Serial: %s @ %d baud", o.opts.Port, o.opts.Baud)
	case KindNetwork:
		if o.opts.Listen != "" {
			return fmt.Sprintf("TCP listen: %s", o.opts.Listen)
		}
		return fmt.Sprintf("TCP: %s", o.opts.Dial)
	case KindWebSocket:
		return fmt.Sprintf("WebSocket: %s", o.opts.URL)
	}
	return string(o.opts.Kind)
}

// Close releases the listening socket, if any
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.listener == nil {
		return nil
	}
	err := o.listener.Close()
	o.listener = nil
	return err
}

func (o *Opener) accept(ctx context.Context) (Conn, error) {
	o.mu.Lock()
	if o.listener == nil {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", o.opts.Listen)
		if err != nil {
			o.mu.Unlock()
			return nil, fmt.Errorf("failed to listen on %s: %w", o.opts.Listen, err)
		}
		o.listener = l
		o.log.Info().Str("addr", l.Addr().String()).Msg("waiting for connection")
	}
	l := o.listener
	o.mu.Unlock()

	conn, err := acceptContext(ctx, l)
	if err != nil {
		return nil, err
	}
	o.log.Info().Str("peer", conn.RemoteAddr().String()).Msg("accepted connection")
	return conn, nil
}
