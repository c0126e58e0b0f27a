// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads and validates the monitor configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/semonitor/internal/logging"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Master    MasterConfig    `yaml:"master" toml:"master"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Firmware  FirmwareConfig  `yaml:"firmware" toml:"firmware"`
	Commands  []string        `yaml:"commands" toml:"commands"`
	Output    OutputConfig    `yaml:"output" toml:"output"`
	Log       logging.Config  `yaml:"log" toml:"log"`
}

// ---- TRANSPORT ----

type TransportConfig struct {
	Kind    string `yaml:"kind" toml:"kind"` // file, serial, network, websocket
	Passive bool   `yaml:"passive" toml:"passive"`
	Record  string `yaml:"record" toml:"record"` // raw capture file

	Path   string `yaml:"path" toml:"path"`
	Follow bool   `yaml:"follow" toml:"follow"`

	Port string `yaml:"port" toml:"port"`
	Baud int    `yaml:"baud" toml:"baud"`

	Listen string `yaml:"listen" toml:"listen"`
	Dial   string `yaml:"dial" toml:"dial"`

	URL           string `yaml:"url" toml:"url"`
	Username      string `yaml:"username" toml:"username"`
	SkipTLSVerify bool   `yaml:"skip_tls_verify" toml:"skip_tls_verify"`
}

// ---- RS485 MASTER ----

type MasterConfig struct {
	Enabled bool    `yaml:"enabled" toml:"enabled"`
	Address Address `yaml:"address" toml:"address"`
	// Slaves also addresses the first command-mode request
	Slaves []Address `yaml:"slaves" toml:"slaves"`
}

// ---- SESSION ----

type SessionConfig struct {
	RoundInterval  Duration `yaml:"round_interval" toml:"round_interval"`
	CommandDelay   Duration `yaml:"command_delay" toml:"command_delay"`
	ReleaseTimeout Duration `yaml:"release_timeout" toml:"release_timeout"` // 0 waits forever
	HaltOnError    bool     `yaml:"halt_on_error" toml:"halt_on_error"`
}

// ---- FIRMWARE CAPTURE ----

type FirmwareConfig struct {
	File string `yaml:"file" toml:"file"`
	Size int    `yaml:"size" toml:"size"`
}

// ---- OUTPUT ----

type OutputConfig struct {
	JSON   string        `yaml:"json" toml:"json"` // "-" for stdout
	CBOR   string        `yaml:"cbor" toml:"cbor"`
	MQTT   *MQTTConfig   `yaml:"mqtt" toml:"mqtt"`
	Influx *InfluxConfig `yaml:"influx" toml:"influx"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker" toml:"broker"`
	Topic    string `yaml:"topic" toml:"topic"`
	ClientID string `yaml:"client_id" toml:"client_id"`
	Username string `yaml:"username" toml:"username"`
	QoS      int    `yaml:"qos" toml:"qos"`
}

type InfluxConfig struct {
	URL    string `yaml:"url" toml:"url"`
	Token  string `yaml:"token" toml:"token"`
	Org    string `yaml:"org" toml:"org"`
	Bucket string `yaml:"bucket" toml:"bucket"`
}

// Defaults returns the configuration used when no file is given
func Defaults() Config {
	return Config{
		Transport: TransportConfig{
			Kind: "file",
			Path: "-",
			Baud: 115200,
		},
		Master: MasterConfig{
			Address: 0xFFFFFFFE,
		},
		Session: SessionConfig{
			RoundInterval: Duration(5 * time.Second),
			CommandDelay:  Duration(2 * time.Second),
		},
		Output: OutputConfig{
			JSON: "-",
		},
		Log: logging.Config{
			Level: "info",
		},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over Defaults.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Defaults()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("parse %s: unknown key %q", path, undecoded[0].String())
		}
	default:
		return Config{}, fmt.Errorf("load config: unsupported extension %q (use .yaml or .toml)", filepath.Ext(path))
	}

	return cfg, nil
}

// Duration is a time.Duration written as "5s", "250ms"
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Address is a 32-bit device address written in hex, with or without 0x
type Address uint32

func (a Address) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%08X", uint32(a))), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	v, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAddress parses a hex device address
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address(v), nil
}
