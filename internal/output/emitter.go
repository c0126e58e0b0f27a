// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package output delivers decoded records to their consumers.
package output

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/semonitor/pkg/sedata"
	"github.com/Thermoquad/semonitor/pkg/seproto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Record is one emitted unit: a decoded message tagged with a local
// sequence number for correlation.
type Record struct {
	Seq          uint64        `json:"seq"`
	Session      string        `json:"session"`
	Time         time.Time     `json:"time"`
	Function     uint16        `json:"function"`
	FunctionName string        `json:"functionName"`
	From         uint32        `json:"from"`
	To           uint32        `json:"to"`
	Kind         string        `json:"kind,omitempty"`
	Data         sedata.Result `json:"data"`
}

// Sink consumes records
type Sink interface {
	Write(ctx context.Context, rec *Record) error
	Close() error
}

// Emitter numbers records and fans them out to every sink. Sequence
// numbers start at 1 and strictly increase.
type Emitter struct {
	mu      sync.Mutex
	seq     uint64
	session string
	sinks   []Sink
	now     func() time.Time
	log     zerolog.Logger
}

// EmitterOption configures an Emitter
type EmitterOption func(*Emitter)

// WithSessionID overrides the generated session id
func WithSessionID(id string) EmitterOption {
	return func(e *Emitter) {
		e.session = id
	}
}

// WithClock sets the time source used to stamp records
func WithClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		e.now = now
	}
}

// WithEmitterLogger sets the logger
func WithEmitterLogger(log zerolog.Logger) EmitterOption {
	return func(e *Emitter) {
		e.log = log
	}
}

// NewEmitter creates an Emitter writing to sinks
func NewEmitter(sinks []Sink, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		session: uuid.NewString(),
		sinks:   sinks,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the id shared by every record from this emitter
func (e *Emitter) Session() string {
	return e.session
}

// Seq returns the sequence number of the last emitted record
func (e *Emitter) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Emit builds a record for msg and its decoded result and writes it to
// every sink. A failing sink does not stop delivery to the others; the
// joined error is returned.
func (e *Emitter) Emit(ctx context.Context, msg seproto.Message, res sedata.Result) (*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	rec := &Record{
		Seq:          e.seq,
		Session:      e.session,
		Time:         e.now(),
		Function:     msg.Function,
		FunctionName: seproto.FunctionName(msg.Function),
		From:         msg.From,
		To:           msg.To,
		Data:         res,
	}
	if res != nil {
		rec.Kind = res.Kind()
	}

	var errs []error
	for _, s := range e.sinks {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	e.log.Debug().Uint64("seq", rec.Seq).Str("function", rec.FunctionName).Msg("emitted record")
	return rec, errors.Join(errs...)
}

// Close closes every sink
func (e *Emitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for _, s := range e.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
