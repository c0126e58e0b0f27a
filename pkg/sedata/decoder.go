// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sedata decodes protocol message payloads into structured results
// and device records.
package sedata

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Thermoquad/semonitor/pkg/seproto"
	"github.com/rs/zerolog"
)

// Decoder turns message payloads into Results. It holds no per-message
// state and is safe for concurrent use.
type Decoder struct {
	loc *time.Location
	log zerolog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLocation sets the zone used to render device timestamps.
func WithLocation(loc *time.Location) Option {
	return func(d *Decoder) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithLogger sets the logger used for record dumps and skipped devices.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Decoder) {
		d.log = log
	}
}

// NewDecoder creates a Decoder rendering timestamps in local time.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		loc: time.Local,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// noArgFunctions carry no payload of interest. Replies to an operating
// mode query arrive under one of these codes.
var noArgFunctions = map[uint16]bool{
	seproto.RespAck:                    true,
	seproto.RespNack:                   true,
	seproto.CmdMiscGetVer:              true,
	seproto.CmdMiscGetType:             true,
	seproto.CmdServerGetGMT:            true,
	seproto.CmdServerGetName:           true,
	seproto.CmdPolestarGetStatus:       true,
	seproto.CmdPolestarMasterGrant:     true,
	seproto.RespPolestarMasterGrantAck: true,
	seproto.CmdPolestarGetSOKStatus:    true,
	seproto.CmdPolestarGetOpMode:       true,
}

// Decode decodes data for the given function code. command is the function
// of the request this message answers, or zero outside command mode.
//
// Functions without arguments and encrypted functions yield a nil Result.
// Unregistered functions yield an *UnknownFunctionError.
func (d *Decoder) Decode(function uint16, data []byte, command uint16) (Result, error) {
	if function == 0 {
		d.log.Debug().Hex("data", data).Msg("message too short")
		return nil, nil
	}
	if noArgFunctions[function] {
		if command == seproto.CmdPolestarGetOpMode {
			return decodeOpMode(data)
		}
		return nil, nil
	}

	switch function {
	case seproto.CmdServerPostData:
		dd, err := d.decodeDeviceData(data)
		if err != nil {
			return nil, err
		}
		return dd, nil
	case seproto.RespPolestarGetSOKStatus:
		return decodeSOKStatus(data)
	case seproto.RespPolestarGetStatus:
		return decodeStatus(data)
	case seproto.CmdParamsGetSingle, seproto.CmdUpgradeStart, seproto.RespMiscGetType:
		return decodeParam(data)
	case seproto.CmdMiscReset, seproto.RespParamsSingle:
		return decodeValueType(data)
	case seproto.RespMiscGetVer:
		return decodeVersion(data)
	case seproto.CmdParamsSetSingle:
		return decodeParamValue(data)
	case seproto.CmdUpgradeWrite:
		return decodeOffsetLength(data)
	case seproto.RespUpgradeSize:
		return decodeLong(data)
	case seproto.RespServerGMT:
		return decodeTime(data)
	case seproto.FuncEncrypted1, seproto.FuncEncrypted2:
		return nil, nil
	default:
		return nil, &UnknownFunctionError{Function: function}
	}
}

func need(what string, data []byte, n int) error {
	if len(data) < n {
		return truncated(what, n, len(data))
	}
	return nil
}

func decodeOpMode(data []byte) (Result, error) {
	if err := need("opmode", data, 4); err != nil {
		return nil, err
	}
	name, err := opModeName(int32(binary.LittleEndian.Uint32(data)))
	if err != nil {
		return nil, err
	}
	return OpMode{Mode: name}, nil
}

func decodeSOKStatus(data []byte) (Result, error) {
	if err := need("sokstatus", data, 2); err != nil {
		return nil, err
	}
	return SOKStatus{Status: sokStatusName(binary.LittleEndian.Uint16(data))}, nil
}

func decodeStatus(data []byte) (Result, error) {
	if len(data) == 0 {
		return Status{Status: []uint16{}}, nil
	}
	if err := need("status", data, statusWords*2); err != nil {
		return nil, err
	}
	status := make([]uint16, statusWords)
	for i := range status {
		status[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return Status{Status: status}, nil
}

func decodeParam(data []byte) (Result, error) {
	if err := need("param", data, 2); err != nil {
		return nil, err
	}
	return Param{Param: binary.LittleEndian.Uint16(data)}, nil
}

func decodeLong(data []byte) (Result, error) {
	if err := need("long", data, 4); err != nil {
		return nil, err
	}
	return Long{Param: binary.LittleEndian.Uint32(data)}, nil
}

func decodeVersion(data []byte) (Result, error) {
	if err := need("version", data, 4); err != nil {
		return nil, err
	}
	major := binary.LittleEndian.Uint16(data[0:2])
	minor := binary.LittleEndian.Uint16(data[2:4])
	return Version{Version: fmt.Sprintf("%04d.%04d", major, minor)}, nil
}

func decodeValueType(data []byte) (Result, error) {
	if err := need("value/type", data, 6); err != nil {
		return nil, err
	}
	return ValueType{
		Value: binary.LittleEndian.Uint32(data[0:4]),
		Type:  binary.LittleEndian.Uint16(data[4:6]),
	}, nil
}

func decodeParamValue(data []byte) (Result, error) {
	if err := need("param/value", data, 6); err != nil {
		return nil, err
	}
	return ParamValue{
		Param: binary.LittleEndian.Uint16(data[0:2]),
		Value: binary.LittleEndian.Uint32(data[2:6]),
	}, nil
}

func decodeOffsetLength(data []byte) (Result, error) {
	if err := need("offset/length", data, offsetLengthHeadSize); err != nil {
		return nil, err
	}
	return OffsetLength{
		Offset: binary.LittleEndian.Uint32(data[0:4]),
		Length: binary.LittleEndian.Uint32(data[4:8]),
		Data:   append([]byte(nil), data[offsetLengthHeadSize:]...),
	}, nil
}

func decodeTime(data []byte) (Result, error) {
	if err := need("time", data, 8); err != nil {
		return nil, err
	}
	return Time{
		Time: binary.LittleEndian.Uint32(data[0:4]),
		TZ:   int32(binary.LittleEndian.Uint32(data[4:8])),
	}, nil
}

// Payload builders for outbound requests and replies

// EncodeParam encodes a 16-bit parameter.
func EncodeParam(param uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, param)
}

// EncodeLong encodes a 32-bit value.
func EncodeLong(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

// EncodeParamValue encodes a parameter write.
func EncodeParamValue(param uint16, value uint32) []byte {
	b := binary.LittleEndian.AppendUint16(nil, param)
	return binary.LittleEndian.AppendUint32(b, value)
}

// EncodeTime encodes a server time reply.
func EncodeTime(epoch uint32, tzOffset int32) []byte {
	b := binary.LittleEndian.AppendUint32(nil, epoch)
	return binary.LittleEndian.AppendUint32(b, uint32(tzOffset))
}
