// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seproto

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is the retry interval for live transports that
// momentarily have no data.
const DefaultPollInterval = 100 * time.Millisecond

// Reader pulls raw messages off a byte stream.
//
// In framed mode (the default) it reads the magic and fixed header, then
// exactly the declared data length plus checksum. In passive mode it
// consumes one byte at a time until the accumulated bytes end with the
// magic sequence, and returns everything before it; this recognizes a
// message only once the following message's magic has been seen.
//
// Transport faults are never returned: they are logged and reported as
// io.EOF, as is a message cut short by the end of the stream.
type Reader struct {
	r            io.Reader
	passive      bool
	live         bool
	pollInterval time.Duration
	recorder     io.Writer
	log          zerolog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPassive selects byte-sync mode for tapping an already framed stream.
func WithPassive(passive bool) ReaderOption {
	return func(r *Reader) {
		r.passive = passive
	}
}

// WithLive marks the stream as long-lived: zero-byte reads are retried
// every interval instead of ending the stream.
func WithLive(live bool, interval time.Duration) ReaderOption {
	return func(r *Reader) {
		r.live = live
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithRecorder copies every message read, magic included, to w.
func WithRecorder(w io.Writer) ReaderOption {
	return func(r *Reader) {
		r.recorder = w
	}
}

// WithReaderLogger sets the logger used for transport diagnostics.
func WithReaderLogger(log zerolog.Logger) ReaderOption {
	return func(r *Reader) {
		r.log = log
	}
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{
		r:            r,
		pollInterval: DefaultPollInterval,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Passive reports whether the reader is in byte-sync mode.
func (r *Reader) Passive() bool {
	return r.passive
}

// Sync discards input up to the first magic sequence. It is a no-op in
// framed mode.
func (r *Reader) Sync(ctx context.Context) error {
	if !r.passive {
		return nil
	}
	skipped, err := r.ReadMessage(ctx)
	if err != nil {
		return err
	}
	r.log.Debug().Int("skipped", len(skipped)).Msg("synchronized to first magic")
	return nil
}

// ReadMessage returns the next raw message (header, data and checksum,
// without the magic). It returns io.EOF when no message is available.
func (r *Reader) ReadMessage(ctx context.Context) ([]byte, error) {
	var msg []byte
	var err error
	if r.passive {
		msg, err = r.readPassive(ctx)
	} else {
		msg, err = r.readFramed(ctx)
	}
	if err != nil {
		return nil, err
	}

	if r.recorder != nil {
		frame := make([]byte, 0, MagicLen+len(msg))
		frame = append(frame, Magic[:]...)
		frame = append(frame, msg...)
		if _, werr := r.recorder.Write(frame); werr != nil {
			r.log.Warn().Err(werr).Msg("record write failed")
		}
	}
	return msg, nil
}

func (r *Reader) readFramed(ctx context.Context) ([]byte, error) {
	head := make([]byte, MagicLen+HeaderLen)
	n, err := r.readFull(ctx, head)
	if n == 0 {
		r.log.Debug().Msg("end of stream")
		return nil, io.EOF
	}
	if err != nil {
		r.log.Debug().Int("bytes", n).Msg("discarding partial header at end of stream")
		return nil, io.EOF
	}
	if !bytes.Equal(head[:MagicLen], Magic[:]) {
		r.log.Debug().Hex("magic", head[:MagicLen]).Msg("frame does not start with magic")
	}

	dataLen := binary.LittleEndian.Uint16(head[MagicLen : MagicLen+2])
	msg := make([]byte, HeaderLen+int(dataLen)+ChecksumLen)
	copy(msg, head[MagicLen:])
	if n, err := r.readFull(ctx, msg[HeaderLen:]); err != nil {
		r.log.Debug().Int("bytes", HeaderLen+n).Uint16("dataLen", dataLen).Msg("discarding partial message at end of stream")
		return nil, io.EOF
	}
	return msg, nil
}

func (r *Reader) readPassive(ctx context.Context) ([]byte, error) {
	var msg []byte
	b := make([]byte, 1)
	for !bytes.HasSuffix(msg, Magic[:]) {
		if n, _ := r.readFull(ctx, b); n == 0 {
			if len(msg) > 0 {
				r.log.Debug().Int("bytes", len(msg)).Msg("discarding unterminated message at end of stream")
			}
			return nil, io.EOF
		}
		msg = append(msg, b[0])
	}
	return msg[:len(msg)-MagicLen], nil
}

// readFull fills buf. Any read error ends the stream. An empty read ends a
// finite stream; a live stream polls until data arrives or ctx is done.
func (r *Reader) readFull(ctx context.Context, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.r.Read(buf[n:])
		n += m
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debug().Err(err).Msg("transport read failed")
			}
			if n == len(buf) {
				return n, nil
			}
			return n, io.EOF
		}
		if m > 0 {
			continue
		}
		if !r.live {
			return n, io.EOF
		}
		select {
		case <-ctx.Done():
			return n, io.EOF
		case <-time.After(r.pollInterval):
		}
	}
	return n, nil
}
