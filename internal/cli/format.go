package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gmsas95/meditrack/internal/interactions"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true)

	overdueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func (c *Commands) render(style lipgloss.Style, text string) string {
	if !c.color {
		return text
	}
	return style.Render(text)
}

func rateStyle(rate int) lipgloss.Style {
	switch {
	case rate >= 90:
		return successStyle
	case rate >= 70:
		return warningStyle
	default:
		return overdueStyle
	}
}

func (c *Commands) severityBadge(s interactions.Severity) string {
	label := "[" + strings.ToUpper(string(s)) + "]"
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color(interactions.SeverityColor(s))).
		Bold(true)
	return c.render(style, label)
}

// Report builds the markdown adherence report.
func (c *Commands) Report() string {
	now := c.tracker.Now()
	var b strings.Builder

	fmt.Fprintf(&b, "# Medication report, %s\n\n", health.DateOf(now))
	fmt.Fprintf(&b, "- **Adherence (%d days):** %d%%\n", c.adherenceWindow, c.tracker.AdherenceRateWindow(now, c.adherenceWindow))
	fmt.Fprintf(&b, "- **Current streak:** %d day(s)\n", c.tracker.Streak())
	if next, ok := c.tracker.NextDose(now); ok {
		fmt.Fprintf(&b, "- **Next dose:** %s at %s (in %s)\n", next.MedicationName, next.ScheduledTime, health.FormatTimeUntil(next.At, now))
	}

	b.WriteString("\n## Medications\n\n")
	meds := c.tracker.ListMedications()
	if len(meds) == 0 {
		b.WriteString("_None._\n")
	} else {
		b.WriteString("| Name | Dosage | Times | Since |\n|---|---|---|---|\n")
		for _, m := range meds {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", m.Name, m.Dosage, strings.Join(m.Times, ", "), m.StartDate)
		}
	}

	b.WriteString("\n## Today\n\n")
	reminders := c.tracker.TodaysReminders(now)
	if len(reminders) == 0 {
		b.WriteString("All doses taken.\n")
	}
	for _, r := range reminders {
		suffix := ""
		if r.IsOverdue {
			suffix = " **(overdue)**"
		}
		fmt.Fprintf(&b, "- %s %s %s%s\n", r.ScheduledTime, r.Medication.Name, r.Medication.Dosage, suffix)
	}

	progress := c.tracker.Progress(now, c.historyDays)
	stats := progress.Stats
	fmt.Fprintf(&b, "\n## Last %d days\n\n", stats.Days)
	fmt.Fprintf(&b, "- **Doses taken:** %d of %d (%d missed)\n", stats.TotalTaken, stats.TotalScheduled, stats.MissedDoses)
	fmt.Fprintf(&b, "- **Average daily adherence:** %d%%\n", stats.AverageAdherence)
	fmt.Fprintf(&b, "- **Perfect days:** %d\n", stats.PerfectDays)

	b.WriteString("\n| Day | Taken | Scheduled |\n|---|---|---|\n")
	for _, d := range progress.Days {
		fmt.Fprintf(&b, "| %s | %d | %d |\n", d.Date, d.Taken, d.Scheduled)
	}

	if len(progress.Medications) > 0 {
		b.WriteString("\n### By medication\n\n| Name | Taken | Expected | Adherence |\n|---|---|---|---|\n")
		for _, m := range progress.Medications {
			fmt.Fprintf(&b, "| %s | %d | %d | %d%% |\n", m.Name, m.Taken, m.Scheduled, m.Rate)
		}
	}

	if records := c.tracker.ActiveInteractions(now); len(records) > 0 {
		b.WriteString("\n## Interactions\n\n")
		for _, r := range records {
			fmt.Fprintf(&b, "- **%s** %s: %s\n", r.Severity, describe(r), r.Warning)
		}
	}

	return b.String()
}

func (c *Commands) report() error {
	fmt.Fprintln(c.out, renderMarkdown(c.Report(), c.color))
	return nil
}

// renderMarkdown renders for a terminal, or returns the raw markdown when
// output is piped.
func renderMarkdown(md string, color bool) string {
	if !color {
		return md
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}

	rendered, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(rendered)
}
