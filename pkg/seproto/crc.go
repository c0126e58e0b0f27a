// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seproto

import "github.com/sigurn/crc16"

// crcTable is the reflected CRC-16 table:
// width=16 poly=0x8005 init=0x5a5a refin=true refout=true xorout=0x0000.
// The init value is a bit palindrome, so the table-driven update
// crc = table[(crc^b)&0xFF] ^ (crc>>8) starts from the same register.
var crcTable = crc16.MakeTable(crc16.Params{
	Poly:   crcPolynomial,
	Init:   crcInitial,
	RefIn:  true,
	RefOut: true,
	XorOut: 0x0000,
	Name:   "CRC-16/SOLAREDGE",
})

// Checksum computes the protocol CRC-16 over data
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
