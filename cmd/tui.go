// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/semonitor/internal/session"
	"github.com/Thermoquad/semonitor/pkg/sedata"
	"github.com/Thermoquad/semonitor/pkg/seproto"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// Latest values reported by one device
type deviceRow struct {
	class  string
	id     string
	seen   string
	uptime uint64 // seconds
	values string
}

// TUI model
type model struct {
	connInfo      string
	showAll       bool
	stats         *session.Statistics
	snapshot      session.Snapshot
	eventLog      []eventLogEntry
	maxLogEntries int
	devices       map[string]deviceRow
	table         table.Model
	width         int
	height        int
	quitting      bool
	finished      bool
}

// Messages
type tickMsg time.Time
type sessionEventMsg session.Event
type sessionDoneMsg struct {
	err error
}

// formatUptime formats an uptime in seconds to a human-friendly string
func formatUptime(secs uint64) string {
	minutes := secs / 60
	hours := minutes / 60
	days := hours / 24

	secs %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	plural := func(n uint64, unit string) {
		if n == 1 {
			parts = append(parts, "1 "+unit)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
		}
	}
	if days > 0 {
		plural(days, "day")
	}
	if hours > 0 {
		plural(hours, "hour")
	}
	if minutes > 0 {
		plural(minutes, "minute")
	}
	if secs > 0 || len(parts) == 0 {
		plural(secs, "second")
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, stats *session.Statistics, showAll bool) model {
	columns := []table.Column{
		{Title: "Class", Width: 10},
		{Title: "ID", Width: 10},
		{Title: "Seen", Width: 20},
		{Title: "Uptime", Width: 24},
		{Title: "Values", Width: 40},
	}
	t := table.New(table.WithColumns(columns), table.WithHeight(8))

	return model{
		connInfo:      connInfo,
		showAll:       showAll,
		stats:         stats,
		snapshot:      stats.Snapshot(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		devices:       make(map[string]deviceRow),
		table:         t,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.snapshot = m.stats.Snapshot()
		return m, tickCmd()

	case sessionDoneMsg:
		m.finished = true
		m.snapshot = m.stats.Snapshot()
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("SESSION STOPPED: %v", msg.err), true)
		} else {
			m.addLogEntry("End of stream", false)
		}

	case sessionEventMsg:
		name := seproto.FunctionName(msg.Message.Function)
		switch {
		case msg.Err != nil:
			m.addLogEntry(fmt.Sprintf("%s: %v", name, msg.Err), true)
		case msg.Result != nil:
			if dd, ok := msg.Result.(*sedata.DeviceData); ok {
				m.updateDevices(dd)
				for _, u := range dd.Skipped {
					m.addLogEntry(fmt.Sprintf("unknown device type 0x%04X (%s)", u.Tag, u.ID), true)
				}
			}
			if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s from %08X (%s)", name, msg.Message.From, msg.Result.Kind()), false)
			}
		case m.showAll:
			m.addLogEntry(fmt.Sprintf("%s from %08X", name, msg.Message.From), false)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// updateDevices records the latest values of every device in dd
func (m *model) updateDevices(dd *sedata.DeviceData) {
	for _, rec := range dd.Records() {
		row := deviceRow{
			class: rec.Class,
			id:    rec.ID,
			seen:  rec.Date + " " + rec.Time,
		}
		if v, ok := rec.Get("Uptime"); ok {
			switch u := v.(type) {
			case uint32:
				row.uptime = uint64(u)
			case uint16:
				row.uptime = uint64(u)
			}
		}
		row.values = summarize(rec)
		m.devices[rec.Class+"/"+rec.ID] = row
	}

	keys := make([]string, 0, len(m.devices))
	for k := range m.devices {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		d := m.devices[k]
		uptime := ""
		if d.uptime > 0 {
			uptime = formatUptime(d.uptime)
		}
		rows = append(rows, table.Row{d.class, d.id, d.seen, uptime, d.values})
	}
	m.table.SetRows(rows)
}

// summarize picks the headline values of a record
func summarize(rec *sedata.Record) string {
	var names []string
	switch rec.Class {
	case sedata.ClassInverter:
		names = []string{"Pac", "Vac", "Eday", "Temp"}
	case sedata.ClassOptimizer:
		names = []string{"Vmod", "Imod", "Eday", "Temp"}
	case sedata.ClassEvent:
		names = []string{"Type", "Event1"}
	}
	var parts []string
	for _, n := range names {
		if v, ok := rec.Get(n); ok {
			switch x := v.(type) {
			case float32:
				parts = append(parts, fmt.Sprintf("%s=%.1f", n, x))
			case float64:
				parts = append(parts, fmt.Sprintf("%s=%.1f", n, x))
			default:
				parts = append(parts, fmt.Sprintf("%s=%v", n, x))
			}
		}
	}
	return strings.Join(parts, " ")
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SEMONITOR - SESSION STATISTICS"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All messages"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	if m.finished {
		s.WriteString(warningStyle.Render("Session ended"))
		s.WriteString("\n\n")
	}

	// Statistics
	st := m.snapshot
	var validPercent, errorPercent float64
	if st.TotalMessages > 0 {
		validPercent = float64(st.ValidMessages) * 100.0 / float64(st.TotalMessages)
		errorPercent = float64(st.Errors()) * 100.0 / float64(st.TotalMessages)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalMessages)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidMessages, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Errors(), errorPercent)),
	))

	if st.ChecksumErrors > 0 || st.LengthErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Checksum Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.ChecksumErrors)),
			statsLabelStyle.Render("Length Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.LengthErrors)),
		))
	}
	if st.UnknownFunctions > 0 || st.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Unknown Functions:"), warningStyle.Render(fmt.Sprintf("%d", st.UnknownFunctions)),
			statsLabelStyle.Render("Decode Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.DecodeErrors)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Records:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Records)),
		statsLabelStyle.Render("Replies:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Replies)),
	))
	if st.Grants > 0 {
		statsContent.WriteString(fmt.Sprintf("   %s %s (%s: %d, %s: %d)",
			statsLabelStyle.Render("Grants:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Grants)),
			headerStyle.Render("released"), st.Releases,
			headerStyle.Render("timed out"), st.ReleaseTimeouts,
		))
	}
	statsContent.WriteString("\n")

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Message Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f msg/s", st.MessageRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if st.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Device table (only shown once records arrive)
	if len(m.devices) > 0 {
		s.WriteString(statsLabelStyle.Render("Devices:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.table.View()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15
	if len(m.devices) > 0 {
		logHeight -= 12
	}
	logHeight = max(logHeight, 5)

	logContent := strings.Builder{}
	startIdx := max(len(m.eventLog)-logHeight, 0)

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
