// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/semonitor/internal/config"
	"github.com/Thermoquad/semonitor/internal/session"
)

var commandCmd = &cobra.Command{
	Use:   "command [FUNCTION[,PARAM...]]...",
	Short: "Send scripted commands to the first slave",
	Long: `Send each command to the first slave address, wait for its reply, and emit
the decoded reply to the configured outputs.

A command is a hex function code followed by typed hex parameters:
  B  8-bit     H  16-bit     L  32-bit

Examples:
  semonitor command --port /dev/ttyUSB0 --slaves 7F101234 0304
  semonitor command --port /dev/ttyUSB0 --slaves 7F101234 0012,H0001 0018,H0123,L0000000A

Commands listed in the configuration file run first.`,
	RunE: runCommands,
}

func init() {
	rootCmd.AddCommand(commandCmd)
}

func runCommands(cmd *cobra.Command, args []string) error {
	cfg.Commands = append(cfg.Commands, args...)
	if len(cfg.Commands) == 0 {
		return errors.New("no commands given")
	}
	if err := config.Validate(&cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	parsed, err := config.ParseCommands(cfg.Commands)
	if err != nil {
		return err
	}
	cmds := make([]session.Command, len(parsed))
	for i, c := range parsed {
		cmds[i] = session.Command{Function: c.Function, Payload: c.Payload()}
		logger.Debug().Str("command", c.String()).Msg("queued")
	}

	ctx, stop := signalContext()
	defer stop()

	s, cleanup, err := newSession()
	if err != nil {
		return err
	}
	defer cleanup()

	return s.RunCommands(ctx, cmds)
}
