// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/semonitor/internal/session"
	"github.com/Thermoquad/semonitor/pkg/seproto"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Run a session and track message errors and device values",
	Long: `Run a monitoring session while tracking statistics.

This command counts every message and reports:
  - Checksum and length errors
  - Unknown functions and payload decode failures
  - All-zero and short messages
  - Device records, replies, bus grants and reconnects
  - Message and error rates

By default, only errors are displayed. Use --show-all to display valid messages too.
The session replies and arbitrates exactly as the monitor command does; the
stdout JSON output is disabled while the terminal UI is active.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all messages (not just errors)")
	statsCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval in text mode (seconds)")
	statsCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	if useTUI {
		return runTUIMode(ctx)
	}
	return runTextMode(ctx)
}

// quietConsole stops stdout records and console log lines, which would
// draw over the alternate screen. Errors reach the event log through the
// session observer instead.
func quietConsole() {
	if cfg.Output.JSON == "-" {
		cfg.Output.JSON = ""
	}
	logger = zerolog.Nop()
}

// runTUIMode runs the session behind the statistics TUI
func runTUIMode(ctx context.Context) error {
	quietConsole()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stats := session.NewStatistics()
	var p *tea.Program
	s, cleanup, err := newSession(
		session.WithStatistics(stats),
		session.WithObserver(func(ev session.Event) {
			p.Send(sessionEventMsg(ev))
		}),
	)
	if err != nil {
		return err
	}
	defer cleanup()

	p = tea.NewProgram(initialModel(s.Describe(), stats, showAll), tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		err := s.Run(ctx)
		p.Send(sessionDoneMsg{err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	cancel()
	return <-done
}

// runTextMode prints errors as they happen and periodic statistics
func runTextMode(ctx context.Context) error {
	stats := session.NewStatistics()
	s, cleanup, err := newSession(
		session.WithStatistics(stats),
		session.WithObserver(printEvent),
	)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("semonitor - Statistics Mode\n")
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All messages\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case err := <-done:
			fmt.Println()
			fmt.Print(stats.Snapshot().String())
			return err
		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.Snapshot().String())
			fmt.Println()
		}
	}
}

// printEvent prints an error in highlighted format, or any message with --show-all
func printEvent(ev session.Event) {
	if ev.Err != nil {
		timestamp := ev.Time.Format("15:04:05.000")
		fmt.Printf("[%s] \033[1;31mERROR:\033[0m %s: %v\n\n", timestamp, seproto.FunctionName(ev.Message.Function), ev.Err)
		return
	}
	if showAll {
		fmt.Print(seproto.FormatMessage(ev.Message, ev.Time))
	}
}
