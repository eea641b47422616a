package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"desmell/internal/repair"
)

var (
	accent  = lipgloss.Color("#D97706") // amber
	dim     = lipgloss.Color("#6B7280") // muted gray
	success = lipgloss.Color("#22C55E") // green
	danger  = lipgloss.Color("#EF4444") // red
	warning = lipgloss.Color("#F59E0B") // amber-yellow
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle  = lipgloss.NewStyle().Foreground(dim)
	okStyle     = lipgloss.NewStyle().Foreground(success)
	failStyle   = lipgloss.NewStyle().Foreground(danger)
	warnStyle   = lipgloss.NewStyle().Foreground(warning)
)

// renderSummary formats the end-of-run report printed once the event log is
// closed. The run directory itself is printed separately so scripts can read
// it off the last stdout line.
func renderSummary(stats repair.Stats) string {
	var b strings.Builder

	row := func(label, value string) {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(padRight(label, 20)), value)
	}

	b.WriteString("\n")
	b.WriteString("  " + headerStyle.Render("desmell run summary") + "\n")
	b.WriteString("  " + labelStyle.Render(strings.Repeat("─", 38)) + "\n")

	row("test classes", fmt.Sprintf("%d", stats.Keys))
	row("methods visited", fmt.Sprintf("%d", stats.Methods))
	row("repaired", okStyle.Render(fmt.Sprintf("%d", stats.Repaired)))
	failed := fmt.Sprintf("%d", stats.Failed)
	if stats.Failed > 0 {
		failed = failStyle.Render(failed)
	}
	row("failed", failed)
	row("deterministic only", fmt.Sprintf("%d", stats.Deterministic))
	if stats.Skipped > 0 {
		row("skipped", warnStyle.Render(fmt.Sprintf("%d", stats.Skipped)))
	}
	row("diff hunks", fmt.Sprintf("%d (+%d/-%d)", stats.Hunks, stats.Added, stats.Deleted))
	if stats.LimitHit {
		b.WriteString("  " + warnStyle.Render("method limit reached; run stopped early") + "\n")
	}
	b.WriteString("  " + labelStyle.Render(strings.Repeat("─", 38)) + "\n")
	return b.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
