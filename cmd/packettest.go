// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/semonitor/pkg/seproto"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid message",
	Long: `Wait for a valid protocol message on the connection until timeout.

This command opens the connection and waits for any message that passes the
length and checksum checks. Malformed messages are counted and skipped.

Exit codes:
  0 - Message received before timeout
  1 - Timeout reached without receiving a valid message
  2 - Connection error

Useful for checking the wiring of an RS485 adapter or a TCP bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	opener, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer opener.Close()

	conn, err := opener.Open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	fmt.Printf("semonitor - Packet Test\n")
	fmt.Printf("Connection: %s\n", opener.Describe())
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid message...\n\n")

	rd := seproto.NewReader(conn,
		seproto.WithPassive(cfg.Transport.Passive),
		seproto.WithLive(opener.Live(), 0),
		seproto.WithReaderLogger(logger))

	invalid := 0
	if err := rd.Sync(ctx); err == nil {
		for {
			raw, err := rd.ReadMessage(ctx)
			if err != nil {
				break
			}
			msg, err := seproto.Parse(raw)
			if err != nil || msg.Empty() {
				invalid++
				continue
			}

			if invalid > 0 {
				fmt.Printf("(skipped %d invalid messages)\n", invalid)
			}
			fmt.Printf("SUCCESS: Received valid message\n")
			fmt.Printf("  Function: %s (0x%04X)\n", seproto.FunctionName(msg.Function), msg.Function)
			fmt.Printf("  From: %08X  To: %08X\n", msg.From, msg.To)
			fmt.Printf("  Sequence: %d\n", msg.Seq)
			fmt.Printf("  Length: %d bytes\n", len(msg.Data))
			os.Exit(0)
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid message received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Connection closed before a valid message arrived\n")
	os.Exit(2)
	return nil
}
