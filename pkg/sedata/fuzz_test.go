// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sedata

import (
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Thermoquad/semonitor/pkg/seproto"
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

var fuzzFunctions = []uint16{
	0,
	seproto.CmdServerPostData,
	seproto.RespPolestarGetSOKStatus,
	seproto.RespPolestarGetStatus,
	seproto.CmdParamsGetSingle,
	seproto.CmdParamsSetSingle,
	seproto.CmdMiscReset,
	seproto.RespMiscGetVer,
	seproto.CmdUpgradeWrite,
	seproto.RespUpgradeSize,
	seproto.RespServerGMT,
	seproto.RespAck,
	seproto.FuncEncrypted2,
}

func TestFuzzDecode_RandomPayloads(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	d := newTestDecoder()
	for i := 0; i < rounds; i++ {
		function := fuzzFunctions[rng.Intn(len(fuzzFunctions))]
		data := make([]byte, rng.Intn(200))
		rng.Read(data)

		// Must never panic; only structural errors are allowed for known functions
		_, err := d.Decode(function, data, 0)
		if err != nil && !errors.Is(err, ErrTruncated) {
			t.Fatalf("Round %d: function 0x%04X: unexpected error %v", i, function, err)
		}
	}
}

func TestFuzzDecode_RandomDeviceData(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	tags := []uint16{TagOptimizer, TagCompactOptimizer, TagInverter, TagEvent, 0x0099}
	sizes := map[uint16]int{
		TagOptimizer:        optimizerLen,
		TagCompactOptimizer: compactOptimizerLen,
		TagInverter:         inverterLen,
		TagEvent:            eventLen,
		0x0099:              17,
	}

	d := newTestDecoder()
	for i := 0; i < rounds; i++ {
		var payload []byte
		ids := make(map[string]bool)
		skipped := 0
		count := rng.Intn(8)
		for j := 0; j < count; j++ {
			tag := tags[rng.Intn(len(tags))]
			body := make([]byte, sizes[tag])
			rng.Read(body)
			id := rng.Uint32()
			payload = append(payload, subRecord(tag, id, body)...)
			if tag == 0x0099 {
				skipped++
			} else {
				ids[tag2class(tag)+NormalizeID(id)] = true
			}
		}

		res, err := d.Decode(seproto.CmdServerPostData, payload, 0)
		if err != nil {
			t.Fatalf("Round %d: Decode error: %v", i, err)
		}
		dd := res.(*DeviceData)
		if dd.Len() != len(ids) {
			t.Fatalf("Round %d: got %d records, want %d", i, dd.Len(), len(ids))
		}
		if len(dd.Skipped) != skipped {
			t.Fatalf("Round %d: got %d skipped, want %d", i, len(dd.Skipped), skipped)
		}
	}
}

func tag2class(tag uint16) string {
	switch tag {
	case TagInverter:
		return ClassInverter
	case TagEvent:
		return ClassEvent
	default:
		return ClassOptimizer
	}
}
