package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/omochice/event-relay/internal/client"
	"github.com/omochice/event-relay/pkg/protocol"
)

const (
	defaultWidth     = 80
	defaultLogHeight = 12
	minLogHeight     = 3

	// chromeHeight is every line of View except the log viewport.
	chromeHeight = 13

	timestampLayout = "15:04:05.000"

	emptyLogText = "No events received yet. Send an event to see it echoed here!"
	footerText   = "Events sent are echoed back by the server."
)

var (
	accentColor = lipgloss.Color("#14b8a6")
	mutedColor  = lipgloss.Color("241")
	dangerColor = lipgloss.Color("#ef4444")

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f766e"))
	accentStyle    = lipgloss.NewStyle().Foreground(accentColor)
	mutedStyle     = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle     = lipgloss.NewStyle().Foreground(dangerColor)
	connectedBadge = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#ffffff")).
			Background(accentColor)
	pendingBadge = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#facc15"))
	disconnectedBadge = lipgloss.NewStyle().
				Padding(0, 1).
				Foreground(lipgloss.Color("#ffffff")).
				Background(dangerColor)
	argsStyle = lipgloss.NewStyle().PaddingLeft(2)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Echo Chamber"))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	b.WriteString(m.name.View())
	b.WriteString("\n")
	b.WriteString(m.data.View())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	b.WriteString("\n")
	b.WriteString(m.renderRule())
	b.WriteString("\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Render("Received Events"))
	b.WriteString("\n")
	b.WriteString(m.log.View())
	b.WriteString("\n")
	b.WriteString(m.renderRule())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(footerText))
	b.WriteString("\n")
	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("error: " + m.lastErr.Error()))
	}
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderStatus() string {
	switch m.status {
	case protocol.StatusOpen:
		return connectedBadge.Render("Connected")
	case protocol.StatusConnecting:
		return pendingBadge.Render(m.spinner.View() + "Connecting")
	default:
		return disconnectedBadge.Render("Disconnected") + "  " + mutedStyle.Render("ctrl+r reconnect")
	}
}

func (m Model) renderHelp() string {
	send := "enter send"
	if !m.canSubmit() {
		send = "enter send (disabled)"
	}
	return mutedStyle.Render(send + " · tab switch field · esc quit")
}

func (m Model) renderRule() string {
	return mutedStyle.Render(strings.Repeat("─", max(m.width, 1)))
}

func (m Model) renderEntries() string {
	entries := m.manager.Log().Entries()
	if len(entries) == 0 {
		return mutedStyle.Render(emptyLogText)
	}

	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		blocks = append(blocks, renderEntry(e))
	}
	return strings.Join(blocks, "\n\n")
}

func renderEntry(e client.LogEntry) string {
	header := fmt.Sprintf("%s %s  %s",
		eventIcon(e.Envelope.Name),
		accentStyle.Render(e.Envelope.Name),
		mutedStyle.Render(e.ReceivedAt.Format(timestampLayout)),
	)
	return header + "\n" + argsStyle.Render(formatArgs(e.Envelope.Args))
}

// eventIcon picks a glyph from the event name, case-insensitively.
func eventIcon(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "message"):
		return "✉"
	case strings.Contains(lower, "action"), strings.Contains(lower, "click"):
		return "⚡"
	default:
		return "◌"
	}
}

// formatArgs renders args as JSON indented by two spaces.
func formatArgs(args []any) string {
	if args == nil {
		args = []any{}
	}
	data, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(data)
}
