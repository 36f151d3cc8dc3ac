package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/chassisctl/internal/experiment"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ffff"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ccff")).
			Bold(true)

	outcomeStyles = map[string]lipgloss.Style{
		experiment.OutcomeSettled:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88")),
		experiment.OutcomeStalled:  lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaa00")),
		experiment.OutcomeCanceled: lipgloss.NewStyle().Foreground(lipgloss.Color("#666688")),
		experiment.OutcomeFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444")).Bold(true),
	}
)

func outcome(s string) string {
	if style, ok := outcomeStyles[s]; ok {
		return style.Render(s)
	}
	return s
}

func field(label string, value any) string {
	return labelStyle.Render(fmt.Sprintf("%-14s", label)) + valueStyle.Render(fmt.Sprint(value))
}

// renderSummary formats a finished run for the terminal.
func renderSummary(id string, res *experiment.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("run "+id) + "\n")
	b.WriteString(field("layout", res.Plan.Layout) + "\n")
	b.WriteString(field("kinematics", res.Plan.Kinematics) + "\n")
	b.WriteString(field("strategy", res.Plan.Strategy) + "\n")
	b.WriteString(field("estimator", res.Plan.Estimator) + "\n")
	b.WriteString(field("elapsed", res.Elapsed.Round(time.Millisecond)) + "\n")
	b.WriteString(field("final pose", res.Final) + "\n")

	if len(res.Steps) > 0 {
		b.WriteString("\n" + titleStyle.Render("steps") + "\n")
		for i, s := range res.Steps {
			fmt.Fprintf(&b, "%2d  %-30s %s  %6.2fs\n", i, s.Step, outcome(s.Outcome), s.Elapsed)
		}
	}

	if len(res.Metrics) > 0 {
		b.WriteString("\n" + titleStyle.Render("metrics") + "\n")
		names := make([]string, 0, len(res.Metrics))
		for name := range res.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(field(name, fmt.Sprintf("%.4f", res.Metrics[name])) + "\n")
		}
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}
