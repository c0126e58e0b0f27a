// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/semonitor/pkg/seproto"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw message log in human-readable format",
	Long: `Continuously decode and display protocol messages as they arrive.

Each message is shown with timestamp, function, addresses and a hex dump of
its payload, followed by the decoded payload when one is available. Nothing
is ever transmitted.

Supports all connection modes.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	opener, err := OpenConnection()
	if err != nil {
		return err
	}
	defer opener.Close()

	conn, err := opener.Open(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("semonitor - Raw Message Log\n")
	fmt.Printf("Connection: %s\n", opener.Describe())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	rd := seproto.NewReader(conn,
		seproto.WithPassive(cfg.Transport.Passive),
		seproto.WithLive(opener.Live(), 0),
		seproto.WithReaderLogger(logger))
	if err := rd.Sync(ctx); err != nil {
		return nil
	}

	decoder := newDecoder()
	for ctx.Err() == nil {
		raw, err := rd.ReadMessage(ctx)
		if err != nil {
			return nil
		}

		msg, err := seproto.Parse(raw)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}
		if msg.Empty() {
			continue
		}
		fmt.Print(seproto.FormatMessage(msg, time.Now()))

		res, err := decoder.Decode(msg.Function, msg.Data, 0)
		switch {
		case err != nil:
			fmt.Printf("  [DECODE ERROR] %v\n", err)
		case res != nil:
			b, err := json.Marshal(res)
			if err != nil {
				fmt.Printf("  [ENCODE ERROR] %v\n", err)
				continue
			}
			fmt.Printf("  %s: %s\n", res.Kind(), b)
		}
	}
	return nil
}
