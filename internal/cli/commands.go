package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gmsas95/meditrack/internal/interactions"
	"github.com/gmsas95/meditrack/internal/tracker"
)

var Version = "dev"

// Commands runs the one-shot tracker commands against an open tracker.
type Commands struct {
	tracker *tracker.Tracker
	out     io.Writer
	color   bool

	adherenceWindow int
	historyDays     int
}

func NewCommands(tr *tracker.Tracker, out io.Writer, color bool) *Commands {
	return &Commands{
		tracker:         tr,
		out:             out,
		color:           color,
		adherenceWindow: health.DefaultWindowDays,
		historyDays:     health.DefaultWindowDays,
	}
}

// SetDefaults overrides the adherence window and history length used when
// no flag is given.
func (c *Commands) SetDefaults(adherenceWindow, historyDays int) {
	if adherenceWindow > 0 {
		c.adherenceWindow = adherenceWindow
	}
	if historyDays > 0 {
		c.historyDays = historyDays
	}
}

// IsTrackerCommand reports whether name is handled by Run.
func IsTrackerCommand(name string) bool {
	switch name {
	case "add", "list", "ls", "delete", "rm", "take", "today", "adherence",
		"streak", "history", "interactions", "report", "notifications":
		return true
	}
	return false
}

func (c *Commands) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		PrintExtendedHelp(c.out)
		return nil
	}

	switch args[0] {
	case "add":
		return c.add(ctx, args[1:])
	case "list", "ls":
		return c.list()
	case "delete", "rm":
		return c.remove(ctx, args[1:])
	case "take":
		return c.take(ctx, args[1:])
	case "today":
		return c.today()
	case "adherence":
		return c.adherence(args[1:])
	case "streak":
		return c.streak()
	case "history":
		return c.history(args[1:])
	case "interactions":
		return c.interactions(args[1:])
	case "report":
		return c.report()
	case "notifications":
		return c.notifications(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q, run 'meditrack help'", args[0])
	}
}

func (c *Commands) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}

func (c *Commands) add(ctx context.Context, args []string) error {
	fs := c.flags("add")
	name := fs.String("name", "", "Medication name")
	dosage := fs.String("dosage", "", "Dosage, e.g. 500mg")
	times := fs.String("times", "", "Comma-separated HH:MM dose times")
	start := fs.String("start", "", "First day, YYYY-MM-DD (default: today)")
	end := fs.String("end", "", "Last day, YYYY-MM-DD")
	notes := fs.String("notes", "", "Notes")
	noRemind := fs.Bool("no-remind", false, "Do not deliver reminders")
	if err := fs.Parse(args); err != nil {
		return err
	}

	draft := health.Draft{
		Name:            *name,
		Dosage:          *dosage,
		Notes:           *notes,
		ReminderEnabled: !*noRemind,
		StartDate:       health.DateOf(c.tracker.Now()),
	}
	for _, t := range strings.Split(*times, ",") {
		if t = strings.TrimSpace(t); t != "" {
			draft.Times = append(draft.Times, t)
		}
	}
	if *start != "" {
		d, err := health.ParseDate(*start)
		if err != nil {
			return err
		}
		draft.StartDate = d
	}
	if *end != "" {
		d, err := health.ParseDate(*end)
		if err != nil {
			return err
		}
		draft.EndDate = &d
	}

	med, err := c.tracker.AddMedication(ctx, draft)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s Added %s %s at %s (id %s)\n",
		c.render(successStyle, "✓"), med.Name, med.Dosage, strings.Join(med.Times, ", "), med.ID)

	for _, r := range c.tracker.Interactions(c.tracker.ListMedications()) {
		if r.Medication1 == med.Name || r.Medication2 == med.Name {
			fmt.Fprintf(c.out, "  %s %s\n", c.severityBadge(r.Severity), r.Warning)
		}
	}
	return nil
}

func (c *Commands) list() error {
	meds := c.tracker.ListMedications()
	if len(meds) == 0 {
		fmt.Fprintln(c.out, "No medications yet. Add one with: meditrack add --name <name> --dosage <dose> --times 08:00")
		return nil
	}

	today := health.DateOf(c.tracker.Now())
	fmt.Fprintln(c.out, c.render(headerStyle, "Medications"))
	for _, m := range meds {
		status := "💊"
		if !health.IsActiveOn(m, today) {
			status = "⏸️"
		}
		fmt.Fprintf(c.out, "%s %s %s  %s  %s\n", status, m.Name, m.Dosage,
			strings.Join(m.Times, ", "), c.render(dimStyle, m.ID))
		if m.Notes != "" {
			fmt.Fprintf(c.out, "   %s\n", c.render(dimStyle, m.Notes))
		}
	}
	return nil
}

func (c *Commands) remove(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return apperrors.Validation("usage: meditrack delete <id|name>")
	}
	med, err := c.lookup(args[0])
	if err != nil {
		return err
	}
	if err := c.tracker.DeleteMedication(ctx, med.ID); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s Deleted %s\n", c.render(successStyle, "✓"), med.Name)
	return nil
}

// take marks a dose taken. Without a slot it picks the earliest pending
// slot for today.
func (c *Commands) take(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return apperrors.Validation("usage: meditrack take <id|name> [HH:MM]")
	}
	med, err := c.lookup(args[0])
	if err != nil {
		return err
	}

	slot := ""
	if len(args) > 1 {
		slot = args[1]
	} else {
		for _, r := range c.tracker.TodaysReminders(c.tracker.Now()) {
			if r.Medication.ID == med.ID {
				slot = r.ScheduledTime
				break
			}
		}
		if slot == "" {
			return apperrors.Validation("no pending dose of %s today", med.Name)
		}
	}

	if _, err := c.tracker.MarkTaken(ctx, med.ID, slot); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s (%s) marked as taken\n", c.render(successStyle, "✓"), med.Name, slot)
	return nil
}

// lookup accepts an id or a case-insensitive unique name.
func (c *Commands) lookup(ref string) (health.Medication, error) {
	if med, err := c.tracker.GetMedication(ref); err == nil {
		return med, nil
	}

	var matches []health.Medication
	for _, m := range c.tracker.ListMedications() {
		if strings.EqualFold(m.Name, ref) {
			matches = append(matches, m)
		}
	}
	switch len(matches) {
	case 0:
		return health.Medication{}, apperrors.NotFound("medication %s not found", ref)
	case 1:
		return matches[0], nil
	default:
		return health.Medication{}, apperrors.Validation("%d medications are named %s, use the id", len(matches), ref)
	}
}

func (c *Commands) today() error {
	now := c.tracker.Now()
	reminders := c.tracker.TodaysReminders(now)

	fmt.Fprintln(c.out, c.render(headerStyle, "Today, "+health.DateOf(now).String()))
	if len(reminders) == 0 {
		fmt.Fprintln(c.out, c.render(successStyle, "All doses taken. 🎉"))
	}
	for _, r := range reminders {
		line := fmt.Sprintf("%s  %s %s", r.ScheduledTime, r.Medication.Name, r.Medication.Dosage)
		if r.IsOverdue {
			fmt.Fprintf(c.out, "%s %s\n", c.render(overdueStyle, "⚠"), c.render(overdueStyle, line+" (overdue)"))
			continue
		}
		fmt.Fprintf(c.out, "  %s\n", line)
	}

	if next, ok := c.tracker.NextDose(now); ok {
		fmt.Fprintf(c.out, "%s\n", c.render(dimStyle, fmt.Sprintf("Next: %s at %s (in %s)",
			next.MedicationName, next.ScheduledTime, health.FormatTimeUntil(next.At, now))))
	}
	return nil
}

func (c *Commands) adherence(args []string) error {
	fs := c.flags("adherence")
	window := fs.Int("window", c.adherenceWindow, "Window length in days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := health.ValidateRange("window", *window); err != nil {
		return err
	}

	rate := c.tracker.AdherenceRateWindow(c.tracker.Now(), *window)
	fmt.Fprintf(c.out, "📈 Adherence (%d days): %s\n", *window, c.render(rateStyle(rate), fmt.Sprintf("%d%%", rate)))
	return nil
}

func (c *Commands) streak() error {
	fmt.Fprintf(c.out, "🔥 Current streak: %d day(s)\n", c.tracker.Streak())
	return nil
}

func (c *Commands) history(args []string) error {
	fs := c.flags("history")
	days := fs.Int("days", c.historyDays, "Number of days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := health.ValidateRange("days", *days); err != nil {
		return err
	}

	for _, d := range c.tracker.History(c.tracker.Now(), *days) {
		mark := c.render(dimStyle, "·")
		switch {
		case d.Complete():
			mark = c.render(successStyle, "✓")
		case d.Scheduled > 0:
			mark = c.render(overdueStyle, "✗")
		}
		fmt.Fprintf(c.out, "%s %s  %d/%d\n", mark, d.Date, d.Taken, d.Scheduled)
	}
	return nil
}

func (c *Commands) interactions(args []string) error {
	fs := c.flags("interactions")
	all := fs.Bool("all", false, "Check every medication, not just today's")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var records []interactions.Record
	if *all {
		records = c.tracker.Interactions(c.tracker.ListMedications())
	} else {
		records = c.tracker.ActiveInteractions(c.tracker.Now())
	}

	if len(records) == 0 {
		fmt.Fprintln(c.out, c.render(successStyle, "No known interactions."))
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(c.out, "%s %s\n   %s\n", c.severityBadge(r.Severity), describe(r), r.Warning)
	}
	return nil
}

func (c *Commands) notifications(ctx context.Context, args []string) error {
	if len(args) > 1 && args[0] == "clear" {
		return c.tracker.ClearNotification(ctx, args[1])
	}

	notes := c.tracker.Notifications()
	if len(notes) == 0 {
		fmt.Fprintln(c.out, "No notifications.")
		return nil
	}
	for _, n := range notes {
		fmt.Fprintf(c.out, "%s [%s] %s %s\n", n.Timestamp.Format(time.Kitchen), n.Type, n.Message, c.render(dimStyle, n.ID))
	}
	return nil
}

func describe(r interactions.Record) string {
	if r.Kind == interactions.KindDrugSubstance {
		return r.Medication1 + " + " + r.Substance
	}
	return r.Medication1 + " + " + r.Medication2
}
