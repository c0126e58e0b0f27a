// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package seproto implements the framing layer of the SolarEdge inverter
// protocol: message checksums, the fixed header envelope, and byte-stream
// synchronization for framed and passive (tapped) transports.
//
// A frame on the wire is laid out as:
//
//	MAGIC(4) | dataLen(u16) | ^dataLen(u16) | seq(u16) | from(u32) | to(u32) | function(u16) | data | checksum(u16)
//
// All header integers are little-endian. The checksum covers seq, from, to
// and function in big-endian order followed by the data bytes.
package seproto

// Frame layout
const (
	MagicLen    = 4
	HeaderLen   = 16
	ChecksumLen = 2
)

// Magic is the synchronization sequence that starts every frame.
var Magic = [MagicLen]byte{0x12, 0x34, 0x56, 0x79}

// CRC-16 configuration (reflected, poly 0x8005)
const (
	crcPolynomial = 0x8005
	crcInitial    = 0x5a5a
)

// Special addresses
const (
	AddressMaster = 0xFFFFFFFE // Default RS485 bus master
)

// Function codes - Miscellaneous commands 0x0000-0x000F
const (
	CmdMiscReset   = 0x0001
	CmdMiscGetVer  = 0x0003
	CmdMiscGetType = 0x0004
)

// Function codes - Parameter commands 0x0010-0x001F
const (
	CmdParamsGetSingle = 0x0012
	CmdParamsSetSingle = 0x0018
)

// Function codes - Firmware upgrade commands 0x0030-0x003F
const (
	CmdUpgradeStart = 0x0030
	CmdUpgradeWrite = 0x0031
)

// Function codes - Generic responses 0x0080-0x00BF
const (
	RespAck          = 0x0080
	RespNack         = 0x0081
	RespMiscGetVer   = 0x0082
	RespMiscGetType  = 0x0083
	RespParamsSingle = 0x0090
	RespUpgradeSize  = 0x00B0
)

// Function codes - Polestar (bus coordinator) commands 0x0300-0x037F
const (
	CmdPolestarGetStatus    = 0x0301
	CmdPolestarMasterGrant  = 0x0302
	CmdPolestarGetSOKStatus = 0x0303
	CmdPolestarGetOpMode    = 0x0304
)

// Function codes - Polestar responses 0x0380-0x03FF
const (
	RespPolestarGetStatus      = 0x0381
	RespPolestarGetSOKStatus   = 0x0383
	RespPolestarMasterGrantAck = 0x0390
)

// Function codes - Server commands 0x0500-0x057F
const (
	CmdServerPostData = 0x0500
	CmdServerGetGMT   = 0x0501
	CmdServerGetName  = 0x0502
)

// Function codes - Server responses 0x0580-0x05FF
const (
	RespServerGMT = 0x0580
)

// Encrypted function codes. Their payloads cannot be decoded.
const (
	FuncEncrypted1 = 0x003D
	FuncEncrypted2 = 0x0503
)
