// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session drives a monitoring session: it reads messages off a
// transport, decodes and emits them, answers the peer when acting as the
// monitoring server or bus master, arbitrates the RS485 bus among slaves
// and runs scripted commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/semonitor/internal/output"
	"github.com/Thermoquad/semonitor/internal/transport"
	"github.com/Thermoquad/semonitor/pkg/sedata"
	"github.com/Thermoquad/semonitor/pkg/seproto"
)

// Reconnect backoff defaults
const (
	DefaultReconnectBackoff = time.Second
	DefaultMaxBackoff       = 30 * time.Second
)

// Transport opens the connection a session reads from
type Transport interface {
	Open(ctx context.Context) (transport.Conn, error)
	Live() bool
	Reconnectable() bool
	Writable() bool
	Describe() string
}

// PayloadDecoder turns message payloads into results
type PayloadDecoder interface {
	Decode(function uint16, data []byte, command uint16) (sedata.Result, error)
}

// Config holds the session behavior
type Config struct {
	Passive bool // tap an existing bus: byte-sync reads, never write
	Network bool // act as the monitoring server for a network-attached inverter
	Master  bool // act as RS485 bus master

	MasterAddress uint32
	Slaves        []uint32

	RoundInterval  time.Duration // pause after each full grant round
	CommandDelay   time.Duration // pause between scripted commands
	ReleaseTimeout time.Duration // zero waits for the release indefinitely

	HaltOnError bool

	Firmware *FirmwareBuffer // captures upgrade-write chunks when set
	Record   io.Writer       // raw capture of every frame read and sent

	PollInterval     time.Duration
	ReconnectBackoff time.Duration
	MaxBackoff       time.Duration
}

// Counters are diagnostic message counts, updated under the session lock
type Counters struct {
	InSeq  uint64
	OutSeq uint64
}

// Event describes one processed message
type Event struct {
	Time    time.Time
	Message seproto.Message
	Result  sedata.Result
	Err     error
}

// Command is one scripted request
type Command struct {
	Function uint16
	Payload  []byte
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithClock overrides the time source used for GMT replies
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithObserver registers a callback invoked for every processed message.
// It runs under the session lock and must not block.
func WithObserver(fn func(Event)) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

// WithStatistics shares a statistics tracker with the caller
func WithStatistics(st *Statistics) Option {
	return func(s *Session) {
		s.stats = st
	}
}

// Session is a monitoring session over one transport
type Session struct {
	cfg      Config
	tr       Transport
	dec      PayloadDecoder
	em       *output.Emitter
	stats    *Statistics
	arbiter  *Arbiter
	recorder io.Writer
	observer func(Event)
	now      func() time.Time
	log      zerolog.Logger

	// mu guards conn writes, counters and the outbound sequence
	mu       sync.Mutex
	conn     transport.Conn
	counters Counters
	seq      uint16
}

// New creates a session
func New(cfg Config, tr Transport, dec PayloadDecoder, em *output.Emitter, opts ...Option) *Session {
	if cfg.MasterAddress == 0 {
		cfg.MasterAddress = seproto.AddressMaster
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = DefaultReconnectBackoff
	}
	if cfg.MaxBackoff < cfg.ReconnectBackoff {
		cfg.MaxBackoff = max(DefaultMaxBackoff, cfg.ReconnectBackoff)
	}

	s := &Session{
		cfg: cfg,
		tr:  tr,
		dec: dec,
		em:  em,
		now: time.Now,
		log: zerolog.Nop(),
		seq: uint16(rand.N(1 << 16)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = NewStatistics()
	}
	s.log = s.log.With().Str("component", "session").Logger()
	if cfg.Record != nil {
		s.recorder = &syncWriter{w: cfg.Record}
	}
	if cfg.Master {
		s.arbiter = newArbiter(s, cfg.Slaves, cfg.RoundInterval, cfg.ReleaseTimeout, s.log, s.stats)
	}
	return s
}

// Stats returns the session statistics
func (s *Session) Stats() *Statistics {
	return s.stats
}

// Describe returns a description of the transport
func (s *Session) Describe() string {
	return s.tr.Describe()
}

// Counters returns a copy of the diagnostic counters
func (s *Session) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Run reads and processes messages until the stream ends or ctx is
// cancelled. Network transports are reopened when the peer goes away.
// Cancellation is a clean exit and returns nil.
func (s *Session) Run(ctx context.Context) error {
	conn, err := s.tr.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", s.tr.Describe(), err)
	}
	s.setConn(conn)
	defer s.closeConn()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()

	s.log.Info().
		Str("transport", s.tr.Describe()).
		Bool("passive", s.cfg.Passive).
		Bool("master", s.cfg.Master).
		Bool("replies", s.replies()).
		Msg("session started")

	var wg sync.WaitGroup
	if s.arbiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.arbiter.Run(ctx)
		}()
	}

	err = s.readLoop(ctx)
	cancel()
	wg.Wait()

	if err != nil {
		return err
	}
	if s.cfg.Firmware != nil {
		if ferr := s.cfg.Firmware.Flush(); ferr != nil {
			return ferr
		}
		s.log.Info().Int("bytes", s.cfg.Firmware.Written()).Msg("firmware image written")
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		conn := s.currentConn()
		if conn == nil {
			return nil
		}
		rd := s.newReader(conn)
		if err := rd.Sync(ctx); err == nil {
			for ctx.Err() == nil {
				raw, err := rd.ReadMessage(ctx)
				if err != nil {
					break
				}
				if err := s.handle(ctx, raw); err != nil {
					return err
				}
			}
		}

		if ctx.Err() != nil {
			return nil
		}
		if !s.tr.Reconnectable() {
			s.log.Info().Msg("end of stream")
			return nil
		}
		if err := s.reconnect(ctx); err != nil {
			return nil
		}
	}
}

func (s *Session) newReader(conn io.Reader) *seproto.Reader {
	opts := []seproto.ReaderOption{
		seproto.WithPassive(s.cfg.Passive),
		seproto.WithLive(s.tr.Live(), s.cfg.PollInterval),
		seproto.WithReaderLogger(s.log),
	}
	if s.recorder != nil {
		opts = append(opts, seproto.WithRecorder(s.recorder))
	}
	return seproto.NewReader(conn, opts...)
}

// reconnect reopens the transport, doubling the delay after every failed
// attempt. It returns only on success or cancellation.
func (s *Session) reconnect(ctx context.Context) error {
	s.closeConn()
	delay := s.cfg.ReconnectBackoff
	for {
		s.log.Warn().Str("transport", s.tr.Describe()).Msg("connection lost, reconnecting")
		conn, err := s.tr.Open(ctx)
		if err == nil {
			s.setConn(conn)
			s.stats.Reconnect()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Dur("retry_in", delay).Msg("reconnect failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, s.cfg.MaxBackoff)
	}
}

// handle processes one raw message. It returns an error only when the
// session should halt.
func (s *Session) handle(ctx context.Context, raw []byte) error {
	if allZero(raw) {
		s.log.Debug().Int("bytes", len(raw)).Msg("ignoring all-zero message")
		s.stats.Zero()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.InSeq++
	err := s.dispatch(ctx, raw)
	if err == nil {
		return nil
	}
	if s.cfg.HaltOnError {
		return fmt.Errorf("message %d: %w", s.counters.InSeq, err)
	}
	s.log.Warn().Err(err).Uint64("msg", s.counters.InSeq).Msg("dropping message")
	return nil
}

// dispatch parses, decodes and acts on one message. Called with mu held.
func (s *Session) dispatch(ctx context.Context, raw []byte) error {
	msg, err := seproto.Parse(raw)
	if err != nil {
		s.stats.Message(err)
		s.observe(msg, nil, err)
		return err
	}
	if msg.Empty() {
		s.log.Debug().Hex("raw", raw).Msg("short message")
		s.stats.Short()
		return nil
	}

	s.log.Debug().
		Uint16("seq", msg.Seq).
		Str("from", fmt.Sprintf("%08X", msg.From)).
		Str("to", fmt.Sprintf("%08X", msg.To)).
		Str("function", seproto.FunctionName(msg.Function)).
		Int("len", len(msg.Data)).
		Msg("message")

	res, err := s.dec.Decode(msg.Function, msg.Data, 0)
	s.stats.Message(err)
	s.observe(msg, res, err)
	if err != nil {
		return fmt.Errorf("%s: %w", seproto.FunctionName(msg.Function), err)
	}

	switch msg.Function {
	case seproto.CmdServerPostData:
		if len(msg.Data) > 0 {
			s.emit(ctx, msg, res)
		}
	case seproto.CmdUpgradeWrite:
		if s.cfg.Firmware != nil {
			if err := s.captureFirmware(res); err != nil {
				return err
			}
		}
	}

	if s.replies() {
		s.reply(msg)
	}
	return nil
}

func (s *Session) emit(ctx context.Context, msg seproto.Message, res sedata.Result) {
	if _, err := s.em.Emit(ctx, msg, res); err != nil {
		s.log.Warn().Err(err).Msg("record delivery failed")
	}
	if dd, ok := res.(*sedata.DeviceData); ok {
		s.stats.Records(dd.Len())
	}
}

func (s *Session) captureFirmware(res sedata.Result) error {
	chunk, ok := res.(sedata.OffsetLength)
	if !ok {
		return nil
	}
	if err := s.cfg.Firmware.Write(chunk.Offset, chunk.Length, chunk.Data); err != nil {
		return err
	}
	s.stats.FirmwareChunk()
	s.log.Debug().Uint32("offset", chunk.Offset).Uint32("length", chunk.Length).Msg("firmware chunk")
	return nil
}

// replies reports whether this session answers its peer
func (s *Session) replies() bool {
	return (s.cfg.Network || s.cfg.Master) && !s.cfg.Passive && s.tr.Writable()
}

// reply answers the messages a monitoring server is expected to answer.
// Called with mu held.
func (s *Session) reply(msg seproto.Message) {
	var err error
	switch msg.Function {
	case seproto.CmdServerPostData:
		err = s.send(msg.Reply(seproto.RespAck, nil))
	case seproto.CmdServerGetGMT:
		now := s.now()
		_, offset := now.Zone()
		err = s.send(msg.Reply(seproto.RespServerGMT, sedata.EncodeTime(uint32(now.Unix()), int32(offset))))
	case seproto.RespPolestarMasterGrantAck:
		if s.arbiter != nil {
			s.arbiter.Release()
		}
		return
	default:
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("function", seproto.FunctionName(msg.Function)).Msg("reply failed")
		return
	}
	s.stats.Reply()
}

// send writes one message to the transport. Called with mu held.
func (s *Session) send(msg seproto.Message) error {
	if s.conn == nil {
		return io.ErrClosedPipe
	}
	frame := msg.Frame()
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", seproto.FunctionName(msg.Function), err)
	}
	if s.recorder != nil {
		if _, err := s.recorder.Write(frame); err != nil {
			s.log.Warn().Err(err).Msg("record write failed")
		}
	}
	s.counters.OutSeq++
	s.log.Debug().
		Uint16("seq", msg.Seq).
		Str("to", fmt.Sprintf("%08X", msg.To)).
		Str("function", seproto.FunctionName(msg.Function)).
		Msg("sent")
	return nil
}

// sendGrant gives the bus to slave
func (s *Session) sendGrant(slave uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := seproto.Message{
		Seq:      s.nextSeq(),
		From:     s.cfg.MasterAddress,
		To:       slave,
		Function: seproto.CmdPolestarMasterGrant,
	}
	if err := s.send(msg); err != nil {
		return err
	}
	s.stats.Grant()
	return nil
}

// nextSeq returns a fresh outbound sequence number. Called with mu held.
func (s *Session) nextSeq() uint16 {
	s.seq++
	return s.seq
}

func (s *Session) observe(msg seproto.Message, res sedata.Result, err error) {
	if s.observer != nil {
		s.observer(Event{Time: s.now(), Message: msg, Result: res, Err: err})
	}
}

func (s *Session) setConn(conn transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *Session) currentConn() transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.log.Debug().Err(err).Msg("close failed")
	}
	s.conn = nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// syncWriter serializes writes from the reader and the sender
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
