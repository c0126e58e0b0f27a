// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Param is one typed command parameter
type Param struct {
	Type  byte // 'B' byte, 'H' 16-bit, 'L' 32-bit
	Value uint32
}

// Command is a scripted request: a function code and its parameters
type Command struct {
	Function uint16
	Params   []Param
}

// ParseCommand parses "function[,param...]" where the function is hex and
// each parameter is a type letter followed by a hex value, e.g.
// "0012,H0001" or "0018,H0123,L0000000A".
func ParseCommand(s string) (Command, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	fn, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 16)
	if err != nil {
		return Command{}, fmt.Errorf("command %q: invalid function: %w", s, err)
	}

	cmd := Command{Function: uint16(fn)}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if len(p) < 2 {
			return Command{}, fmt.Errorf("command %q: invalid parameter %q", s, p)
		}
		typ := strings.ToUpper(p[:1])[0]
		var bits int
		switch typ {
		case 'B':
			bits = 8
		case 'H':
			bits = 16
		case 'L':
			bits = 32
		default:
			return Command{}, fmt.Errorf("command %q: unknown parameter type %q", s, p[:1])
		}
		v, err := strconv.ParseUint(p[1:], 16, bits)
		if err != nil {
			return Command{}, fmt.Errorf("command %q: parameter %q: %w", s, p, err)
		}
		cmd.Params = append(cmd.Params, Param{Type: typ, Value: uint32(v)})
	}
	return cmd, nil
}

// ParseCommands parses every command in order
func ParseCommands(list []string) ([]Command, error) {
	cmds := make([]Command, 0, len(list))
	for _, s := range list {
		c, err := ParseCommand(s)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// Payload packs the parameters little-endian
func (c Command) Payload() []byte {
	var b []byte
	for _, p := range c.Params {
		switch p.Type {
		case 'B':
			b = append(b, byte(p.Value))
		case 'H':
			b = binary.LittleEndian.AppendUint16(b, uint16(p.Value))
		case 'L':
			b = binary.LittleEndian.AppendUint32(b, p.Value)
		}
	}
	return b
}

func (c Command) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04X", c.Function)
	for _, p := range c.Params {
		switch p.Type {
		case 'B':
			fmt.Fprintf(&sb, ",B%02X", p.Value)
		case 'H':
			fmt.Fprintf(&sb, ",H%04X", p.Value)
		case 'L':
			fmt.Fprintf(&sb, ",L%08X", p.Value)
		}
	}
	return sb.String()
}
