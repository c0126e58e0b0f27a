// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sedata

import "fmt"

// Device sub-record tags inside a performance-data payload
const (
	TagOptimizer        uint16 = 0x0000
	TagInverter         uint16 = 0x0010
	TagCompactOptimizer uint16 = 0x0080
	TagEvent            uint16 = 0x0300
)

// Device sub-record layout sizes
const (
	deviceHeaderLen      = 8
	optimizerLen         = 36
	compactOptimizerLen  = 13
	inverterLen          = 64
	eventLen             = 24
	statusWords          = 7
	offsetLengthHeadSize = 8
)

// OpModeNames maps coordinator operating mode codes to names.
var OpModeNames = map[int32]string{
	0: "Normal",
	1: "Night",
	2: "Wakeup",
	3: "Production",
	4: "Production limited",
	5: "Shutdown",
	6: "Error",
	7: "Maintenance",
	8: "Standby",
}

// SOKStatusNames maps server-connection status codes to names.
var SOKStatusNames = map[uint16]string{
	0: "Disconnected",
	1: "Connected",
	2: "Connecting",
	3: "Server unreachable",
}

func opModeName(code int32) (string, error) {
	name, ok := OpModeNames[code]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownOpMode, code)
	}
	return name, nil
}

func sokStatusName(code uint16) string {
	if name, ok := SOKStatusNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", code)
}
