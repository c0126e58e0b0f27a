// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestOpener_Properties(t *testing.T) {
	tests := []struct {
		name          string
		opts          Options
		live          bool
		reconnectable bool
		writable      bool
	}{
		{"file", Options{Kind: KindFile, Path: "x"}, false, false, false},
		{"file follow", Options{Kind: KindFile, Path: "x", Follow: true}, true, false, false},
		{"serial", Options{Kind: KindSerial, Port: "/dev/ttyUSB0"}, true, false, true},
		{"network listen", Options{Kind: KindNetwork, Listen: ":22222"}, true, true, true},
		{"websocket", Options{Kind: KindWebSocket, URL: "ws://x"}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOpener(tt.opts, zerolog.Nop())
			if o.Live() != tt.live {
				t.Errorf("Live() = %v, want %v", o.Live(), tt.live)
			}
			if o.Reconnectable() != tt.reconnectable {
				t.Errorf("Reconnectable() = %v, want %v", o.Reconnectable(), tt.reconnectable)
			}
			if o.Writable() != tt.writable {
				t.Errorf("Writable() = %v, want %v", o.Writable(), tt.writable)
			}
			if o.Describe() == "" {
				t.Error("Describe() is empty")
			}
		})
	}
}

func TestOpener_UnknownKind(t *testing.T) {
	o := NewOpener(Options{Kind: "carrier-pigeon"}, zerolog.Nop())
	if _, err := o.Open(context.Background()); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestFileConn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}

	o := NewOpener(Options{Kind: KindFile, Path: path}, zerolog.Nop())
	conn, err := o.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	data, err := io.ReadAll(conn)
	if err != nil || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("ReadAll = %v, %v", data, err)
	}
	if _, err := conn.Write([]byte{0}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write error = %v, want ErrReadOnly", err)
	}
}

func TestFileConn_Missing(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing"), false); err == nil {
		t.Fatal("expected error opening missing file")
	}
}

func TestFileConn_FollowHidesEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.bin")
	if err := os.WriteFile(path, []byte{7}, 0o644); err != nil {
		t.Fatal(err)
	}
	conn, err := OpenFile(path, true)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 4)
	if n, err := conn.Read(buf); n != 1 || err != nil {
		t.Fatalf("first Read = %d, %v", n, err)
	}
	if n, err := conn.Read(buf); n != 0 || err != nil {
		t.Errorf("Read at end of followed file = %d, %v, want 0, nil", n, err)
	}
}

func TestNetwork_ListenAcceptsAndReaccepts(t *testing.T) {
	o := NewOpener(Options{Kind: KindNetwork, Listen: "127.0.0.1:0"}, zerolog.Nop())
	defer o.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for round := 0; round < 2; round++ {
		type result struct {
			conn Conn
			err  error
		}
		done := make(chan result, 1)
		go func() {
			c, err := o.Open(ctx)
			done <- result{c, err}
		}()

		// Wait for the listener to exist
		var addr string
		for addr == "" {
			o.mu.Lock()
			if o.listener != nil {
				addr = o.listener.Addr().String()
			}
			o.mu.Unlock()
			time.Sleep(time.Millisecond)
		}

		peer, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("round %d: dial: %v", round, err)
		}
		res := <-done
		if res.err != nil {
			t.Fatalf("round %d: Open: %v", round, res.err)
		}

		if _, err := peer.Write([]byte("ping")); err != nil {
			t.Fatal(err)
		}
		buf := make([]byte, 4)
		n := 0
		for n < 4 {
			m, err := res.conn.Read(buf[n:])
			if err != nil {
				t.Fatalf("round %d: Read: %v", round, err)
			}
			n += m
		}
		if string(buf) != "ping" {
			t.Errorf("round %d: got %q", round, buf)
		}
		peer.Close()
		res.conn.Close()
	}
}

func TestNetwork_AcceptCancelled(t *testing.T) {
	o := NewOpener(Options{Kind: KindNetwork, Listen: "127.0.0.1:0"}, zerolog.Nop())
	defer o.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := o.Open(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestNetConn_IdleReadReturnsZero(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewNetConn(client)
	n, err := conn.Read(make([]byte, 8))
	if n != 0 || err != nil {
		t.Errorf("idle Read = %d, %v; want 0, nil", n, err)
	}
}

func TestDialTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		c, err := l.Accept()
		if err == nil {
			c.Write([]byte{0x12, 0x34})
			c.Close()
		}
	}()

	conn, err := DialTCP(context.Background(), l.Addr().String())
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer conn.Close()

	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(data, []byte{0x12, 0x34}) {
		t.Errorf("got %X", data)
	}
}

func TestWebSocket_BinaryOnly(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.WriteMessage(websocket.TextMessage, []byte("ignored"))
		c.WriteMessage(websocket.BinaryMessage, []byte{0x12, 0x34, 0x56, 0x79})
		if _, data, err := c.ReadMessage(); err == nil {
			received <- data
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := OpenWebSocket(context.Background(), url, "admin", "secret", false)
	if err != nil {
		t.Fatalf("OpenWebSocket: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 2)
	var got []byte
	for len(got) < 4 {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, []byte{0x12, 0x34, 0x56, 0x79}) {
		t.Errorf("got %X", got)
	}

	if _, err := conn.Write([]byte{0xAB}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case data := <-received:
		if !bytes.Equal(data, []byte{0xAB}) {
			t.Errorf("server received %X", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive write")
	}
}

func TestWebSocket_BadScheme(t *testing.T) {
	if _, err := OpenWebSocket(context.Background(), "http://example.com", "", "", false); err == nil {
		t.Fatal("expected scheme error")
	}
}
