// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode telemetry and emit device records",
	Long: `Read messages from the connection, decode them, and emit device records to
the configured outputs until the stream ends or Ctrl+C is pressed.

On a network connection the monitor answers the inverter as its monitoring
server would. With --master it also grants the RS485 bus to each slave in
turn. Lost network connections are re-established automatically.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, cleanup, err := newSession()
	if err != nil {
		return err
	}
	defer cleanup()

	err = s.Run(ctx)

	snap := s.Stats().Snapshot()
	logger.Info().
		Uint64("messages", snap.TotalMessages).
		Uint64("records", snap.Records).
		Uint64("errors", snap.Errors()).
		Msg("session finished")
	logger.Debug().Msg("\n" + snap.String())
	return err
}
