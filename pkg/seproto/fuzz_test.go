// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seproto

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomMessage builds a message with random header fields and up to maxData bytes of data
func randomMessage(rng *rand.Rand, maxData int) Message {
	data := make([]byte, rng.Intn(maxData+1))
	rng.Read(data)
	return Message{
		Seq:      uint16(rng.Intn(1 << 16)),
		From:     rng.Uint32(),
		To:       rng.Uint32(),
		Function: uint16(rng.Intn(1 << 16)),
		Data:     data,
	}
}

func TestFuzzParse_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		raw := make([]byte, rng.Intn(600))
		rng.Read(raw)

		// Must never panic; any error must be one of the two known kinds
		_, err := Parse(raw)
		if err != nil && !errors.Is(err, ErrLengthMismatch) && !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("Round %d: unexpected error type %T: %v", i, err, err)
		}
	}
}

func TestFuzzParse_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		want := randomMessage(rng, 512)
		got, err := Parse(want.Frame()[MagicLen:])
		if err != nil {
			t.Fatalf("Round %d: Parse error: %v", i, err)
		}
		if got.Seq != want.Seq || got.From != want.From || got.To != want.To || got.Function != want.Function {
			t.Fatalf("Round %d: header mismatch: got %+v, want %+v", i, got, want)
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("Round %d: data mismatch", i)
		}
	}
}

func TestFuzzParse_CorruptedChecksum(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		m := randomMessage(rng, 64)
		raw := m.Frame()[MagicLen:]

		// Flip one bit anywhere after the length fields
		pos := 4 + rng.Intn(len(raw)-4)
		raw[pos] ^= 1 << uint(rng.Intn(8))

		if _, err := Parse(raw); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("Round %d: corrupted byte %d: expected checksum mismatch, got %v", i, pos, err)
		}
	}
}

func TestFuzzReader_FramedStream(t *testing.T) {
	rounds := getFuzzRounds() / 10
	if rounds == 0 {
		rounds = 1
	}
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		count := rng.Intn(20) + 1
		var stream bytes.Buffer
		msgs := make([]Message, count)
		for j := range msgs {
			msgs[j] = randomMessage(rng, 128)
			stream.Write(msgs[j].Frame())
		}

		r := NewReader(&stream)
		for j, want := range msgs {
			raw, err := r.ReadMessage(context.Background())
			if err != nil {
				t.Fatalf("Round %d msg %d: ReadMessage: %v", i, j, err)
			}
			got, err := Parse(raw)
			if err != nil {
				t.Fatalf("Round %d msg %d: Parse: %v", i, j, err)
			}
			if got.Seq != want.Seq || !bytes.Equal(got.Data, want.Data) {
				t.Fatalf("Round %d msg %d: mismatch", i, j)
			}
		}
		if _, err := r.ReadMessage(context.Background()); err != io.EOF {
			t.Fatalf("Round %d: expected io.EOF, got %v", i, err)
		}
	}
}
