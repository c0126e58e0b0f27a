// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/semonitor/internal/config"
	"github.com/Thermoquad/semonitor/pkg/sedata"
	"github.com/Thermoquad/semonitor/pkg/seproto"
)

var (
	pingTimeout int
	pingCount   int
	pingAddress string
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Query a device firmware version and measure round-trip time",
	Long: `Send version requests to a device and wait for each reply.

The target is --address, or the first configured slave. Requests are sent
from the master address. Other traffic on the bus is ignored while waiting.

Exit codes:
  0 - All pings answered
  1 - One or more pings lost
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds per ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().StringVar(&pingAddress, "address", "", "Device address in hex (default: first slave)")
}

func pingTarget() (uint32, error) {
	if pingAddress != "" {
		a, err := config.ParseAddress(pingAddress)
		return uint32(a), err
	}
	if len(cfg.Master.Slaves) == 0 {
		return 0, errors.New("no target: set --address or --slaves")
	}
	return uint32(cfg.Master.Slaves[0]), nil
}

func runPing(cmd *cobra.Command, args []string) error {
	target, err := pingTarget()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

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

	fmt.Printf("semonitor - Ping Test\n")
	fmt.Printf("Connection: %s\n", opener.Describe())
	fmt.Printf("Target: %08X\n", target)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	rd := seproto.NewReader(conn,
		seproto.WithLive(opener.Live(), 0),
		seproto.WithReaderLogger(logger))
	msgs := make(chan seproto.Message, 16)
	go func() {
		defer close(msgs)
		for {
			raw, err := rd.ReadMessage(ctx)
			if err != nil {
				return
			}
			msg, err := seproto.Parse(raw)
			if err != nil {
				continue
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	dec := newDecoder()
	from := uint32(cfg.Master.Address)
	seq := uint16(rand.Uint32())

	successCount := 0
	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)
		seq++

		start := time.Now()
		if _, err := conn.Write(seproto.Format(seq, from, target, seproto.CmdMiscGetVer, nil)); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			continue
		}

		version, err := awaitVersion(msgs, dec, target, time.Duration(pingTimeout)*time.Second)
		switch {
		case err == nil:
			fmt.Printf("version %s from %08X, rtt=%v\n", version, target, time.Since(start).Round(time.Millisecond))
			successCount++
		case errors.Is(err, errPingTimeout):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
		default:
			fmt.Printf("READ FAILED: %v\n", err)
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(pingCount-successCount)/float64(pingCount)*100)

	if successCount < pingCount {
		os.Exit(1)
	}
	return nil
}

var errPingTimeout = errors.New("ping timeout")

// awaitVersion waits for the target to answer a version request
func awaitVersion(msgs <-chan seproto.Message, dec *sedata.Decoder, target uint32, timeout time.Duration) (string, error) {
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return "", errors.New("connection closed")
			}
			if msg.Function != seproto.RespMiscGetVer || msg.From != target {
				continue
			}
			res, err := dec.Decode(msg.Function, msg.Data, seproto.CmdMiscGetVer)
			if err != nil {
				return "", err
			}
			if v, ok := res.(sedata.Version); ok {
				return v.Version, nil
			}
			return "", fmt.Errorf("unexpected result %T", res)
		case <-deadline:
			return "", errPingTimeout
		}
	}
}
