// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Thermoquad/semonitor/internal/config"
	"github.com/Thermoquad/semonitor/internal/logging"
)

var (
	configPath string

	// File connection flags
	filePath string
	follow   bool

	// Serial connection flags
	portName string
	baudRate int

	// Network connection flags
	listenAddr string
	dialAddr   string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Session flags
	passive        bool
	masterMode     bool
	masterAddress  string
	slaveList      []string
	recordPath     string
	firmwareFile   string
	firmwareSize   int
	haltOnError    bool
	roundInterval  time.Duration
	commandDelay   time.Duration
	releaseTimeout time.Duration

	// Output flags
	jsonOut  string
	cborOut  string
	logLevel string
	logJSON  bool

	// Loaded in PersistentPreRunE
	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "semonitor",
	Short: "SolarEdge inverter protocol monitor",
	Long: `semonitor - A CLI tool for monitoring and driving the SolarEdge inverter protocol.

Decodes telemetry posted by inverters and power optimizers, answers the
inverter when acting as its monitoring server, arbitrates an RS485 bus as
master, and runs scripted commands against a device.

Connection modes:
  File:      --file capture.bin [--follow]   ("-" reads stdin)
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  Network:   --listen :22222 | --dial host:22222
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a YAML or TOML file given with --config; flags
set on the command line take precedence.

For WebSocket authentication, the password is read from the SEMONITOR_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Configuration file (.yaml or .toml)")

	// File connection flags
	pf.StringVarP(&filePath, "file", "f", "", "Capture file to read (\"-\" for stdin)")
	pf.BoolVar(&follow, "follow", false, "Keep reading as the capture file grows")

	// Serial connection flags
	pf.StringVarP(&portName, "port", "p", "", "Serial port device")
	pf.IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// Network connection flags
	pf.StringVar(&listenAddr, "listen", "", "Accept the inverter's TCP connection on this address")
	pf.StringVar(&dialAddr, "dial", "", "Connect to a TCP bridge at host:port")

	// WebSocket connection flags
	pf.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Session flags
	pf.BoolVar(&passive, "passive", false, "Tap an existing bus: sync on magic bytes and never transmit")
	pf.BoolVarP(&masterMode, "master", "m", false, "Act as RS485 bus master")
	pf.StringVar(&masterAddress, "master-address", "FFFFFFFE", "Bus master address (hex)")
	pf.StringSliceVarP(&slaveList, "slaves", "s", nil, "Slave addresses (hex, comma separated)")
	pf.StringVarP(&recordPath, "record", "r", "", "Write a raw capture of all traffic to this file")
	pf.StringVar(&firmwareFile, "firmware", "", "Assemble observed firmware upgrade chunks into this file")
	pf.IntVar(&firmwareSize, "firmware-size", 0x80000, "Firmware image size in bytes")
	pf.BoolVar(&haltOnError, "halt-on-error", false, "Stop on the first malformed or undecodable message")
	pf.DurationVar(&roundInterval, "round-interval", 5*time.Second, "Pause after each bus grant round")
	pf.DurationVar(&commandDelay, "command-delay", 2*time.Second, "Pause between scripted commands")
	pf.DurationVar(&releaseTimeout, "release-timeout", 0, "Stop waiting for a slave to release the bus (0 waits forever)")

	// Output flags
	pf.StringVarP(&jsonOut, "json", "o", "-", "JSON lines output file (\"-\" for stdout, \"\" to disable)")
	pf.StringVar(&cborOut, "cbor", "", "CBOR sequence output file")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig builds the effective configuration: defaults, then the
// config file, then any flags given on the command line.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg = config.Defaults()
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		return err
	}

	logger = logging.New(cfg.Log, nil)

	if err := config.Validate(&cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyFlags(fs *pflag.FlagSet, c *config.Config) error {
	t := &c.Transport

	// Connection: the last explicit selection wins
	switch {
	case fs.Changed("url"):
		t.Kind, t.URL = "websocket", wsURL
	case fs.Changed("listen"):
		t.Kind, t.Listen, t.Dial = "network", listenAddr, ""
	case fs.Changed("dial"):
		t.Kind, t.Dial, t.Listen = "network", dialAddr, ""
	case fs.Changed("port"):
		t.Kind, t.Port = "serial", portName
	case fs.Changed("file"):
		t.Kind, t.Path = "file", filePath
	}
	if fs.Changed("follow") {
		t.Follow = follow
	}
	if fs.Changed("baud") {
		t.Baud = baudRate
	}
	if fs.Changed("username") {
		t.Username = wsUsername
	}
	if fs.Changed("no-ssl-verify") {
		t.SkipTLSVerify = wsNoSSLVerify
	}
	if fs.Changed("passive") {
		t.Passive = passive
	}
	if fs.Changed("record") {
		t.Record = recordPath
	}

	if fs.Changed("master") {
		c.Master.Enabled = masterMode
	}
	if fs.Changed("master-address") {
		a, err := config.ParseAddress(masterAddress)
		if err != nil {
			return fmt.Errorf("--master-address: %w", err)
		}
		c.Master.Address = a
	}
	if fs.Changed("slaves") {
		c.Master.Slaves = c.Master.Slaves[:0]
		for _, s := range slaveList {
			a, err := config.ParseAddress(s)
			if err != nil {
				return fmt.Errorf("--slaves: %w", err)
			}
			c.Master.Slaves = append(c.Master.Slaves, a)
		}
	}

	if fs.Changed("firmware") {
		c.Firmware.File = firmwareFile
		if c.Firmware.Size == 0 {
			c.Firmware.Size = firmwareSize
		}
	}
	if fs.Changed("firmware-size") {
		c.Firmware.Size = firmwareSize
	}
	if fs.Changed("halt-on-error") {
		c.Session.HaltOnError = haltOnError
	}
	if fs.Changed("round-interval") {
		c.Session.RoundInterval = config.Duration(roundInterval)
	}
	if fs.Changed("command-delay") {
		c.Session.CommandDelay = config.Duration(commandDelay)
	}
	if fs.Changed("release-timeout") {
		c.Session.ReleaseTimeout = config.Duration(releaseTimeout)
	}

	if fs.Changed("json") {
		c.Output.JSON = jsonOut
	}
	if fs.Changed("cbor") {
		c.Output.CBOR = cborOut
	}
	if fs.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if fs.Changed("log-json") {
		c.Log.JSON = logJSON
	}
	return nil
}
