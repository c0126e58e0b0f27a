// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/semonitor/pkg/sedata"
	"github.com/Thermoquad/semonitor/pkg/seproto"
)

// Statistics tracks message counts and error rates for a session.
// It is safe for concurrent use; read it through Snapshot.
type Statistics struct {
	mu sync.Mutex
	s  Snapshot
}

// Snapshot is a point-in-time copy of the statistics
type Snapshot struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalMessages    uint64
	ValidMessages    uint64
	ZeroMessages     uint64
	ShortMessages    uint64
	ChecksumErrors   uint64
	LengthErrors     uint64
	UnknownFunctions uint64
	DecodeErrors     uint64
	Records          uint64
	Replies          uint64
	Grants           uint64
	Releases         uint64
	ReleaseTimeouts  uint64
	FirmwareChunks   uint64
	Reconnects       uint64

	// Rates (calculated)
	MessageRate float64 // messages/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{s: Snapshot{StartTime: now, LastUpdateTime: now}}
}

func (st *Statistics) update(fn func(s *Snapshot)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.s)
	st.s.LastUpdateTime = time.Now()
}

// Message counts one message read from the transport and classifies the
// error that came with it, if any.
func (st *Statistics) Message(err error) {
	st.update(func(s *Snapshot) {
		s.TotalMessages++
		switch {
		case err == nil:
			s.ValidMessages++
		case errors.Is(err, seproto.ErrChecksumMismatch):
			s.ChecksumErrors++
		case errors.Is(err, seproto.ErrLengthMismatch):
			s.LengthErrors++
		case errors.Is(err, sedata.ErrUnknownFunction):
			s.UnknownFunctions++
		default:
			s.DecodeErrors++
		}
	})
}

// Zero counts an all-zero message
func (st *Statistics) Zero() {
	st.update(func(s *Snapshot) {
		s.TotalMessages++
		s.ZeroMessages++
	})
}

func (st *Statistics) Short()          { st.update(func(s *Snapshot) { s.ShortMessages++ }) }
func (st *Statistics) Reply()          { st.update(func(s *Snapshot) { s.Replies++ }) }
func (st *Statistics) Grant()          { st.update(func(s *Snapshot) { s.Grants++ }) }
func (st *Statistics) Release()        { st.update(func(s *Snapshot) { s.Releases++ }) }
func (st *Statistics) ReleaseTimeout() { st.update(func(s *Snapshot) { s.ReleaseTimeouts++ }) }
func (st *Statistics) FirmwareChunk()  { st.update(func(s *Snapshot) { s.FirmwareChunks++ }) }
func (st *Statistics) Reconnect()      { st.update(func(s *Snapshot) { s.Reconnects++ }) }

// Records counts device records emitted
func (st *Statistics) Records(n int) {
	st.update(func(s *Snapshot) { s.Records += uint64(n) })
}

// Snapshot returns a copy with rates calculated
func (st *Statistics) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.s
	s.calculateRates()
	return s
}

// Reset resets all statistics counters
func (st *Statistics) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now()
	st.s = Snapshot{StartTime: now, LastUpdateTime: now}
}

// Errors returns the total number of rejected messages
func (s *Snapshot) Errors() uint64 {
	return s.ChecksumErrors + s.LengthErrors + s.UnknownFunctions + s.DecodeErrors
}

func (s *Snapshot) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.MessageRate = float64(s.TotalMessages) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s Snapshot) String() string {
	var validPercent, checksumPercent, lengthPercent, unknownPercent, decodePercent float64
	if s.TotalMessages > 0 {
		total := float64(s.TotalMessages)
		validPercent = float64(s.ValidMessages) * 100.0 / total
		checksumPercent = float64(s.ChecksumErrors) * 100.0 / total
		lengthPercent = float64(s.LengthErrors) * 100.0 / total
		unknownPercent = float64(s.UnknownFunctions) * 100.0 / total
		decodePercent = float64(s.DecodeErrors) * 100.0 / total
	}

	elapsed := s.LastUpdateTime.Sub(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Messages:  %8d\n", s.TotalMessages)
	result += fmt.Sprintf("Valid Messages:  %8d (%.1f%%)\n", s.ValidMessages, validPercent)

	if s.ZeroMessages > 0 {
		result += fmt.Sprintf("Zero Messages:   %8d\n", s.ZeroMessages)
	}
	if s.ShortMessages > 0 {
		result += fmt.Sprintf("Short Messages:  %8d\n", s.ShortMessages)
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, checksumPercent)
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Errors:   %8d (%.1f%%)\n", s.LengthErrors, lengthPercent)
	}
	if s.UnknownFunctions > 0 {
		result += fmt.Sprintf("Unknown Funcs:   %8d (%.1f%%)\n", s.UnknownFunctions, unknownPercent)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, decodePercent)
	}

	result += fmt.Sprintf("Records:         %8d\n", s.Records)
	if s.Replies > 0 {
		result += fmt.Sprintf("Replies:         %8d\n", s.Replies)
	}
	if s.Grants > 0 {
		result += fmt.Sprintf("Grants:          %8d\n", s.Grants)
		result += fmt.Sprintf("  Released:         %5d\n", s.Releases)
		if s.ReleaseTimeouts > 0 {
			result += fmt.Sprintf("  Timed Out:        %5d\n", s.ReleaseTimeouts)
		}
	}
	if s.FirmwareChunks > 0 {
		result += fmt.Sprintf("Firmware Chunks: %8d\n", s.FirmwareChunks)
	}
	if s.Reconnects > 0 {
		result += fmt.Sprintf("Reconnects:      %8d\n", s.Reconnects)
	}

	result += fmt.Sprintf("Message Rate:    %8.1f msgs/sec\n", s.MessageRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}
