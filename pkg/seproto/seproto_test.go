// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seproto

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"time"
)

// ============================================================
// CRC Tests
// ============================================================

// referenceTable is the authoritative 256-entry reflected CRC-16 table.
var referenceTable = [256]uint16{
	0x0000, 0xc0c1, 0xc181, 0x0140, 0xc301, 0x03c0, 0x0280, 0xc241,
	0xc601, 0x06c0, 0x0780, 0xc741, 0x0500, 0xc5c1, 0xc481, 0x0440,
	0xcc01, 0x0cc0, 0x0d80, 0xcd41, 0x0f00, 0xcfc1, 0xce81, 0x0e40,
	0x0a00, 0xcac1, 0xcb81, 0x0b40, 0xc901, 0x09c0, 0x0880, 0xc841,
	0xd801, 0x18c0, 0x1980, 0xd941, 0x1b00, 0xdbc1, 0xda81, 0x1a40,
	0x1e00, 0xdec1, 0xdf81, 0x1f40, 0xdd01, 0x1dc0, 0x1c80, 0xdc41,
	0x1400, 0xd4c1, 0xd581, 0x1540, 0xd701, 0x17c0, 0x1680, 0xd641,
	0xd201, 0x12c0, 0x1380, 0xd341, 0x1100, 0xd1c1, 0xd081, 0x1040,
	0xf001, 0x30c0, 0x3180, 0xf141, 0x3300, 0xf3c1, 0xf281, 0x3240,
	0x3600, 0xf6c1, 0xf781, 0x3740, 0xf501, 0x35c0, 0x3480, 0xf441,
	0x3c00, 0xfcc1, 0xfd81, 0x3d40, 0xff01, 0x3fc0, 0x3e80, 0xfe41,
	0xfa01, 0x3ac0, 0x3b80, 0xfb41, 0x3900, 0xf9c1, 0xf881, 0x3840,
	0x2800, 0xe8c1, 0xe981, 0x2940, 0xeb01, 0x2bc0, 0x2a80, 0xea41,
	0xee01, 0x2ec0, 0x2f80, 0xef41, 0x2d00, 0xedc1, 0xec81, 0x2c40,
	0xe401, 0x24c0, 0x2580, 0xe541, 0x2700, 0xe7c1, 0xe681, 0x2640,
	0x2200, 0xe2c1, 0xe381, 0x2340, 0xe101, 0x21c0, 0x2080, 0xe041,
	0xa001, 0x60c0, 0x6180, 0xa141, 0x6300, 0xa3c1, 0xa281, 0x6240,
	0x6600, 0xa6c1, 0xa781, 0x6740, 0xa501, 0x65c0, 0x6480, 0xa441,
	0x6c00, 0xacc1, 0xad81, 0x6d40, 0xaf01, 0x6fc0, 0x6e80, 0xae41,
	0xaa01, 0x6ac0, 0x6b80, 0xab41, 0x6900, 0xa9c1, 0xa881, 0x6840,
	0x7800, 0xb8c1, 0xb981, 0x7940, 0xbb01, 0x7bc0, 0x7a80, 0xba41,
	0xbe01, 0x7ec0, 0x7f80, 0xbf41, 0x7d00, 0xbdc1, 0xbc81, 0x7c40,
	0xb401, 0x74c0, 0x7580, 0xb541, 0x7700, 0xb7c1, 0xb681, 0x7640,
	0x7200, 0xb2c1, 0xb381, 0x7340, 0xb101, 0x71c0, 0x7080, 0xb041,
	0x5000, 0x90c1, 0x9181, 0x5140, 0x9301, 0x53c0, 0x5280, 0x9241,
	0x9601, 0x56c0, 0x5780, 0x9741, 0x5500, 0x95c1, 0x9481, 0x5440,
	0x9c01, 0x5cc0, 0x5d80, 0x9d41, 0x5f00, 0x9fc1, 0x9e81, 0x5e40,
	0x5a00, 0x9ac1, 0x9b81, 0x5b40, 0x9901, 0x59c0, 0x5880, 0x9841,
	0x8801, 0x48c0, 0x4980, 0x8941, 0x4b00, 0x8bc1, 0x8a81, 0x4a40,
	0x4e00, 0x8ec1, 0x8f81, 0x4f40, 0x8d01, 0x4dc0, 0x4c80, 0x8c41,
	0x4400, 0x84c1, 0x8581, 0x4540, 0x8701, 0x47c0, 0x4680, 0x8641,
	0x8201, 0x42c0, 0x4380, 0x8341, 0x4100, 0x81c1, 0x8081, 0x4040,
}

// referenceChecksum is the table-driven reference computation.
func referenceChecksum(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc = referenceTable[(crc^uint16(b))&0xFF] ^ (crc >> 8)
	}
	return crc
}

func TestChecksum_Empty(t *testing.T) {
	crc := Checksum([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x5B3A,
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: referenceTable[0x5A] ^ 0x005A,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := Checksum(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestChecksum_ReferenceTable(t *testing.T) {
	// Each single-byte input lands on a distinct table entry.
	for i := 0; i < 256; i++ {
		data := []byte{byte(i)}
		if got, want := Checksum(data), referenceChecksum(data); got != want {
			t.Fatalf("byte 0x%02X: got 0x%04X, want 0x%04X", i, got, want)
		}
	}
}

func TestChecksum_MatchesReference(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		data := make([]byte, rng.Intn(300))
		rng.Read(data)
		if got, want := Checksum(data), referenceChecksum(data); got != want {
			t.Fatalf("data %X: got 0x%04X, want 0x%04X", data, got, want)
		}
	}
}

// ============================================================
// Format / Parse Tests
// ============================================================

func TestFormat_KnownFrame(t *testing.T) {
	tests := []struct {
		name     string
		seq      uint16
		from     uint32
		to       uint32
		function uint16
		expected string
	}{
		{
			name:     "post data header only",
			seq:      0x1234,
			from:     0x7F101234,
			to:       0xFFFFFFFE,
			function: CmdServerPostData,
			expected: "123456790000ffff34123412107ffeffffff0005726b",
		},
		{
			name:     "ack",
			seq:      1,
			from:     2,
			to:       3,
			function: RespAck,
			expected: "123456790000ffff0100020000000300000080002e9d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hex.EncodeToString(Format(tt.seq, tt.from, tt.to, tt.function, nil))
			if got != tt.expected {
				t.Errorf("Format() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	data := []byte{0x00, 0x00, 0x34, 0x12, 0x80, 0x00, 0x0A, 0x00, 0xDE, 0xAD}
	frame := Format(0xBEEF, 0x7F101234, 0xFFFFFFFE, CmdServerPostData, data)

	m, err := Parse(frame[MagicLen:])
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if m.Seq != 0xBEEF || m.From != 0x7F101234 || m.To != 0xFFFFFFFE || m.Function != CmdServerPostData {
		t.Errorf("header mismatch: %+v", m)
	}
	if !bytes.Equal(m.Data, data) {
		t.Errorf("Data = %X, want %X", m.Data, data)
	}
	if m.Empty() {
		t.Error("parsed message should not be empty")
	}
}

func TestParse_ShortMessage(t *testing.T) {
	for n := 0; n < HeaderLen+ChecksumLen; n++ {
		m, err := Parse(make([]byte, n))
		if err != nil {
			t.Fatalf("len %d: unexpected error %v", n, err)
		}
		if !m.Empty() {
			t.Fatalf("len %d: expected empty message, got %+v", n, m)
		}
	}
}

func TestParse_LengthMismatch(t *testing.T) {
	frame := Format(1, 2, 3, RespAck, []byte{0x01, 0x02})
	raw := frame[MagicLen:]

	// Corrupt the inverted length only: the checksum region is untouched.
	binary.LittleEndian.PutUint16(raw[2:4], 0x1234)

	_, err := Parse(raw)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	var lerr *LengthError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *LengthError, got %T", err)
	}
	if lerr.DataLen != 2 || lerr.DataLenInv != 0x1234 {
		t.Errorf("LengthError = %+v", lerr)
	}
}

func TestParse_TruncatedData(t *testing.T) {
	frame := Format(1, 2, 3, RespAck, make([]byte, 32))
	_, err := Parse(frame[MagicLen : len(frame)-10])
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestParse_ChecksumMismatch(t *testing.T) {
	frame := Format(1, 2, 3, CmdParamsGetSingle, []byte{0x01, 0x00})
	raw := frame[MagicLen:]
	raw[len(raw)-1] ^= 0xFF

	_, err := Parse(raw)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	var cerr *ChecksumError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ChecksumError, got %T", err)
	}
	if cerr.Expected == cerr.Computed {
		t.Errorf("expected and computed should differ: %+v", cerr)
	}
}

func TestParse_SingleBitFlip(t *testing.T) {
	data := []byte{0x10, 0x20, 0x30, 0x40, 0x50}
	frame := Format(0x0102, 0x0A0B0C0D, 0x01020304, CmdServerPostData, data)
	raw := frame[MagicLen:]

	// Every bit of seq, from, to, function and data is covered by the checksum.
	for i := 4; i < len(raw)-ChecksumLen; i++ {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), raw...)
			corrupt[i] ^= 1 << bit
			if _, err := Parse(corrupt); !errors.Is(err, ErrChecksumMismatch) {
				t.Fatalf("byte %d bit %d: expected checksum mismatch, got %v", i, bit, err)
			}
		}
	}
}

func TestMessage_Reply(t *testing.T) {
	m := Message{Seq: 7, From: 0x11, To: 0x22, Function: CmdServerGetGMT}
	r := m.Reply(RespServerGMT, []byte{1, 2})
	if r.Seq != 7 || r.From != 0x22 || r.To != 0x11 || r.Function != RespServerGMT {
		t.Errorf("Reply() = %+v", r)
	}
}

// ============================================================
// Reader Tests
// ============================================================

func TestReader_Framed(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(Format(1, 0x10, 0x20, CmdServerPostData, []byte{0xAA}))
	stream.Write(Format(2, 0x10, 0x20, CmdServerGetGMT, nil))

	var rec bytes.Buffer
	r := NewReader(&stream, WithRecorder(&rec))
	ctx := context.Background()

	for _, wantSeq := range []uint16{1, 2} {
		raw, err := r.ReadMessage(ctx)
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		m, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if m.Seq != wantSeq {
			t.Errorf("Seq = %d, want %d", m.Seq, wantSeq)
		}
	}

	if _, err := r.ReadMessage(ctx); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
	if rec.Len() != 2*(MagicLen+HeaderLen+ChecksumLen)+1 {
		t.Errorf("recorder captured %d bytes", rec.Len())
	}
}

func TestReader_FramedPartialDiscarded(t *testing.T) {
	frame := Format(1, 0x10, 0x20, CmdServerPostData, []byte{1, 2, 3, 4})
	r := NewReader(bytes.NewReader(frame[:len(frame)-3]))
	if _, err := r.ReadMessage(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF for partial frame, got %v", err)
	}
}

func TestReader_PassiveDelaysByOneFrame(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0xDE, 0xAD}) // unaligned lead-in
	stream.Write(Format(1, 0x10, 0x20, CmdServerPostData, []byte{0x01}))
	stream.Write(Format(2, 0x10, 0x20, CmdServerPostData, []byte{0x02}))
	stream.Write(Format(3, 0x10, 0x20, CmdServerPostData, []byte{0x03}))

	r := NewReader(&stream, WithPassive(true))
	ctx := context.Background()
	if err := r.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// Frame 3 is never terminated by a following magic.
	for _, wantSeq := range []uint16{1, 2} {
		raw, err := r.ReadMessage(ctx)
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		m, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if m.Seq != wantSeq {
			t.Errorf("Seq = %d, want %d", m.Seq, wantSeq)
		}
	}
	if _, err := r.ReadMessage(ctx); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

// trickleReader returns no data for the first few reads, like a serial
// port with a read timeout.
type trickleReader struct {
	empty int
	r     io.Reader
}

func (t *trickleReader) Read(p []byte) (int, error) {
	if t.empty > 0 {
		t.empty--
		return 0, nil
	}
	return t.r.Read(p)
}

func TestReader_LivePollsOnEmptyRead(t *testing.T) {
	frame := Format(9, 0x10, 0x20, RespAck, nil)
	src := &trickleReader{empty: 3, r: bytes.NewReader(frame)}
	r := NewReader(src, WithLive(true, time.Millisecond))

	raw, err := r.ReadMessage(context.Background())
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if m, _ := Parse(raw); m.Seq != 9 {
		t.Errorf("Seq = %d, want 9", m.Seq)
	}
}

func TestReader_LiveStopsOnCancel(t *testing.T) {
	r := NewReader(&trickleReader{empty: 1 << 30}, WithLive(true, time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := r.ReadMessage(ctx); err != io.EOF {
		t.Errorf("expected io.EOF after cancel, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device unplugged")
}

func TestReader_TransportFaultIsEOF(t *testing.T) {
	r := NewReader(failingReader{})
	if _, err := r.ReadMessage(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF for transport fault, got %v", err)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFunctionName(t *testing.T) {
	tests := []struct {
		function uint16
		expected string
	}{
		{CmdServerPostData, "PROT_CMD_SERVER_POST_DATA"},
		{RespPolestarMasterGrantAck, "PROT_RESP_POLESTAR_MASTER_GRANT_ACK"},
		{FuncEncrypted2, "ENCRYPTED"},
		{0xFFFF, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := FunctionName(tt.function); got != tt.expected {
			t.Errorf("FunctionName(0x%04X) = %s, want %s", tt.function, got, tt.expected)
		}
	}
}
