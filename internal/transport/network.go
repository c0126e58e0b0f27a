// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// netPollInterval bounds each blocking network read or accept
const netPollInterval = 500 * time.Millisecond

// NetConn wraps a TCP connection. Reads time out periodically and report
// zero bytes so that callers polling a live stream can observe cancellation.
type NetConn struct {
	conn net.Conn
}

// NewNetConn wraps conn
func NewNetConn(conn net.Conn) *NetConn {
	return &NetConn{conn: conn}
}

func (n *NetConn) Read(p []byte) (int, error) {
	if err := n.conn.SetReadDeadline(time.Now().Add(netPollInterval)); err != nil {
		return 0, err
	}
	c, err := n.conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return c, nil
	}
	return c, err
}

func (n *NetConn) Write(p []byte) (int, error) {
	return n.conn.Write(p)
}

func (n *NetConn) Close() error {
	return n.conn.Close()
}

// RemoteAddr returns the peer address
func (n *NetConn) RemoteAddr() net.Addr {
	return n.conn.RemoteAddr()
}

// DialTCP connects to addr
func DialTCP(ctx context.Context, addr string) (*NetConn, error) {
	var d net.Dialer
	d.Timeout = 15 * time.Second
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewNetConn(conn), nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// acceptContext waits for one connection on l until ctx is done
func acceptContext(ctx context.Context, l net.Listener) (*NetConn, error) {
	dl, canDeadline := l.(deadliner)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if canDeadline {
			if err := dl.SetDeadline(time.Now().Add(netPollInterval)); err != nil {
				return nil, err
			}
		}
		conn, err := l.Accept()
		if err == nil {
			return NewNetConn(conn), nil
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			continue
		}
		return nil, fmt.Errorf("accept failed: %w", err)
	}
}
