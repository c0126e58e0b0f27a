// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/semonitor/internal/session"
	"github.com/Thermoquad/semonitor/internal/transport"
	"github.com/Thermoquad/semonitor/pkg/sedata"
)

var (
	discoveryTimeout int
	discoveryPorts   bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover devices by listening to bus traffic",
	Long: `Listen to the connection and report every device address seen.

Addresses are collected from message headers and from the device records
inside posted telemetry, so optimizers behind an inverter are listed too.
The session runs passively unless --master or a network connection makes it
answer its peer.

Modes:
  Listen (default): Collect addresses until the timeout expires.
  Ports (--ports):  List the serial ports present on this system and exit.

Examples:
  # Find devices on an RS485 tap
  semonitor discovery --port /dev/ttyUSB0 --passive --timeout 30

  # Show candidate serial adapters
  semonitor discovery --ports

Exit codes:
  0 - Discovery successful (at least one device found)
  1 - Discovery failed (no devices or timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 30, "Timeout in seconds for discovery")
	discoveryCmd.Flags().BoolVar(&discoveryPorts, "ports", false, "List serial ports and exit")
}

// discovered tracks devices by address
type discovered map[string]string

func (d discovered) add(id, kind string) {
	if _, ok := d[id]; !ok {
		fmt.Printf("  found %-10s %s\n", id, kind)
	}
	d[id] = kind
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	if discoveryPorts {
		ports, err := transport.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Port enumeration failed: %v\n", err)
			os.Exit(2)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(discoveryTimeout)*time.Second)
	defer cancel()

	cfg.Output.JSON = ""
	found := make(discovered)
	s, cleanup, err := newSession(session.WithObserver(func(ev session.Event) {
		if ev.Err != nil {
			return
		}
		m := ev.Message
		if m.From != 0 {
			found.add(fmt.Sprintf("%08X", m.From), "address")
		}
		if dd, ok := ev.Result.(*sedata.DeviceData); ok {
			for _, rec := range dd.Records() {
				found.add(rec.ID, rec.Class)
			}
		}
	}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	fmt.Printf("semonitor - Device Discovery\n")
	fmt.Printf("Connection: %s\n", s.Describe())
	fmt.Printf("Listening for %d seconds...\n\n", discoveryTimeout)

	if err := s.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Session error: %v\n", err)
		os.Exit(2)
	}

	if len(found) == 0 {
		fmt.Fprintf(os.Stderr, "\nNo devices discovered\n")
		os.Exit(1)
	}
	fmt.Printf("\nDiscovered %d device(s):\n", len(found))
	for _, id := range slices.Sorted(maps.Keys(found)) {
		fmt.Printf("  %-10s %s\n", id, found[id])
	}
	return nil
}
