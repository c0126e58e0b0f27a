// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net/url"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	t := cfg.Transport

	// ------------------------------------------------------------
	// TRANSPORT
	// ------------------------------------------------------------

	switch t.Kind {
	case "file":
		if t.Path == "" {
			return fmt.Errorf("transport: file requires a path")
		}
	case "serial":
		if t.Port == "" {
			return fmt.Errorf("transport: serial requires a port")
		}
		if t.Baud <= 0 {
			return fmt.Errorf("transport: invalid baud rate %d", t.Baud)
		}
	case "network":
		if (t.Listen == "") == (t.Dial == "") {
			return fmt.Errorf("transport: network requires exactly one of listen or dial")
		}
	case "websocket":
		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("transport: websocket requires a ws:// or wss:// url, got %q", t.URL)
		}
	default:
		return fmt.Errorf("transport: unknown kind %q", t.Kind)
	}

	if t.Follow && t.Kind != "file" {
		return fmt.Errorf("transport: follow applies to files only")
	}

	// ------------------------------------------------------------
	// RS485 MASTER AND COMMAND MODE (OPT-IN)
	// ------------------------------------------------------------

	writable := t.Kind != "file" && !t.Passive

	if cfg.Master.Enabled {
		if !writable {
			return fmt.Errorf("master: requires a writable, non-passive transport")
		}
		if len(cfg.Master.Slaves) == 0 {
			return fmt.Errorf("master: enabled but no slaves are defined")
		}
		seen := make(map[Address]bool)
		for _, s := range cfg.Master.Slaves {
			if s == cfg.Master.Address {
				return fmt.Errorf("master: slave %08X equals the master address", uint32(s))
			}
			if seen[s] {
				return fmt.Errorf("master: duplicate slave %08X", uint32(s))
			}
			seen[s] = true
		}
	}

	if len(cfg.Commands) > 0 {
		if !writable {
			return fmt.Errorf("commands: require a writable, non-passive transport")
		}
		if len(cfg.Master.Slaves) == 0 {
			return fmt.Errorf("commands: a destination slave is required")
		}
		if _, err := ParseCommands(cfg.Commands); err != nil {
			return fmt.Errorf("commands: %w", err)
		}
	}

	// ------------------------------------------------------------
	// SESSION TIMING
	// ------------------------------------------------------------

	if cfg.Session.RoundInterval < 0 || cfg.Session.CommandDelay < 0 || cfg.Session.ReleaseTimeout < 0 {
		return fmt.Errorf("session: durations must not be negative")
	}

	// ------------------------------------------------------------
	// FIRMWARE CAPTURE (OPT-IN)
	// ------------------------------------------------------------

	if cfg.Firmware.File != "" && cfg.Firmware.Size <= 0 {
		return fmt.Errorf("firmware: file %q requires a positive size", cfg.Firmware.File)
	}

	// ------------------------------------------------------------
	// OUTPUT SINKS
	// ------------------------------------------------------------

	if m := cfg.Output.MQTT; m != nil {
		if m.Broker == "" || m.Topic == "" {
			return fmt.Errorf("output.mqtt: broker and topic are required")
		}
		if m.QoS < 0 || m.QoS > 2 {
			return fmt.Errorf("output.mqtt: invalid qos %d", m.QoS)
		}
	}
	if i := cfg.Output.Influx; i != nil {
		if i.URL == "" || i.Org == "" || i.Bucket == "" {
			return fmt.Errorf("output.influx: url, org and bucket are required")
		}
	}

	return nil
}
