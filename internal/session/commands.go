// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/semonitor/pkg/seproto"
)

// ErrNoSlave is returned when commands are run without a destination
var ErrNoSlave = errors.New("session: no slave to send commands to")

// RunCommands sends each command to the first slave, waits for exactly one
// reply, decodes it in the context of the command and emits the result.
// Commands are spaced by CommandDelay.
func (s *Session) RunCommands(ctx context.Context, cmds []Command) error {
	if len(s.cfg.Slaves) == 0 {
		return ErrNoSlave
	}
	conn, err := s.tr.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.tr.Describe(), err)
	}
	s.setConn(conn)
	defer s.closeConn()
	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()

	rd := s.newReader(conn)
	slave := s.cfg.Slaves[0]

	for i, c := range cmds {
		if ctx.Err() != nil {
			return nil
		}
		if i > 0 && s.cfg.CommandDelay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.CommandDelay):
			}
		}

		if err := s.runCommand(ctx, rd, slave, c); err != nil {
			if s.cfg.HaltOnError {
				return err
			}
			s.log.Warn().Err(err).Msg("command failed")
		}
	}
	return nil
}

func (s *Session) runCommand(ctx context.Context, rd *seproto.Reader, slave uint32, c Command) error {
	name := seproto.FunctionName(c.Function)

	s.mu.Lock()
	req := seproto.Message{
		Seq:      s.nextSeq(),
		From:     s.cfg.MasterAddress,
		To:       slave,
		Function: c.Function,
		Data:     c.Payload,
	}
	err := s.send(req)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	raw, err := rd.ReadMessage(ctx)
	if err != nil {
		return fmt.Errorf("command %04X (%s): no reply: %w", c.Function, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.InSeq++

	reply, err := seproto.Parse(raw)
	if err != nil {
		s.stats.Message(err)
		return fmt.Errorf("command %04X (%s): %w", c.Function, name, err)
	}
	res, err := s.dec.Decode(reply.Function, reply.Data, c.Function)
	s.stats.Message(err)
	s.observe(reply, res, err)
	if err != nil {
		return fmt.Errorf("command %04X (%s): %w", c.Function, name, err)
	}

	s.log.Info().
		Str("command", name).
		Str("reply", seproto.FunctionName(reply.Function)).
		Msg("command complete")
	s.emit(ctx, reply, res)
	return nil
}
