// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// semonitor - SolarEdge Inverter Protocol Monitor
//
// A CLI tool for decoding SolarEdge inverter and optimizer telemetry,
// answering the inverter as its monitoring server, and driving an RS485
// bus as master.

package main

import (
	"os"

	"github.com/Thermoquad/semonitor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
