// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seproto

import "encoding/binary"

// Message is one parsed protocol message. The checksum is validated by
// Parse and not retained.
type Message struct {
	Seq      uint16
	From     uint32
	To       uint32
	Function uint16
	Data     []byte
}

// Empty reports whether m is the zero message produced for input too short
// to hold a header and checksum.
func (m Message) Empty() bool {
	return m.Seq == 0 && m.From == 0 && m.To == 0 && m.Function == 0 && len(m.Data) == 0
}

// Frame returns the wire representation of m.
func (m Message) Frame() []byte {
	return Format(m.Seq, m.From, m.To, m.Function, m.Data)
}

// Reply builds a response to m: same sequence number, swapped addresses.
func (m Message) Reply(function uint16, data []byte) Message {
	return Message{
		Seq:      m.Seq,
		From:     m.To,
		To:       m.From,
		Function: function,
		Data:     data,
	}
}

// Parse decodes a raw message: the bytes following the magic sequence,
// i.e. header, data and checksum.
//
// Input shorter than a header plus checksum yields the zero Message and a
// nil error. Length and checksum failures are reported as *LengthError and
// *ChecksumError.
func Parse(raw []byte) (Message, error) {
	if len(raw) < HeaderLen+ChecksumLen {
		return Message{}, nil
	}

	dataLen := binary.LittleEndian.Uint16(raw[0:2])
	dataLenInv := binary.LittleEndian.Uint16(raw[2:4])
	if dataLen != ^dataLenInv {
		return Message{}, &LengthError{DataLen: dataLen, DataLenInv: dataLenInv, Available: len(raw) - HeaderLen - ChecksumLen}
	}
	if len(raw) < HeaderLen+int(dataLen)+ChecksumLen {
		return Message{}, &LengthError{DataLen: dataLen, DataLenInv: dataLenInv, Available: len(raw) - HeaderLen - ChecksumLen}
	}

	m := Message{
		Seq:      binary.LittleEndian.Uint16(raw[4:6]),
		From:     binary.LittleEndian.Uint32(raw[6:10]),
		To:       binary.LittleEndian.Uint32(raw[10:14]),
		Function: binary.LittleEndian.Uint16(raw[14:16]),
	}
	m.Data = make([]byte, dataLen)
	copy(m.Data, raw[HeaderLen:HeaderLen+int(dataLen)])

	checksum := binary.LittleEndian.Uint16(raw[HeaderLen+int(dataLen):])
	calculated := Checksum(checksumInput(m.Seq, m.From, m.To, m.Function, m.Data))
	if checksum != calculated {
		return Message{}, &ChecksumError{Expected: checksum, Computed: calculated}
	}

	return m, nil
}

// Format builds a complete wire frame: magic, header, data and checksum.
func Format(seq uint16, from, to uint32, function uint16, data []byte) []byte {
	checksum := Checksum(checksumInput(seq, from, to, function, data))

	frame := make([]byte, MagicLen+HeaderLen, MagicLen+HeaderLen+len(data)+ChecksumLen)
	copy(frame, Magic[:])

	header := frame[MagicLen:]
	binary.LittleEndian.PutUint16(header[0:2], uint16(len(data)))
	binary.LittleEndian.PutUint16(header[2:4], ^uint16(len(data)))
	binary.LittleEndian.PutUint16(header[4:6], seq)
	binary.LittleEndian.PutUint32(header[6:10], from)
	binary.LittleEndian.PutUint32(header[10:14], to)
	binary.LittleEndian.PutUint16(header[14:16], function)

	frame = append(frame, data...)
	return binary.LittleEndian.AppendUint16(frame, checksum)
}

// checksumInput lays out the checksummed region: big-endian scalars
// followed by the data bytes.
func checksumInput(seq uint16, from, to uint32, function uint16, data []byte) []byte {
	buf := make([]byte, 12, 12+len(data))
	binary.BigEndian.PutUint16(buf[0:2], seq)
	binary.BigEndian.PutUint32(buf[2:6], from)
	binary.BigEndian.PutUint32(buf[6:10], to)
	binary.BigEndian.PutUint16(buf[10:12], function)
	return append(buf, data...)
}
