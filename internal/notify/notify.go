// Package notify delivers dose reminders to people outside the app.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gmsas95/meditrack/internal/health"
	"go.uber.org/zap"
)

// Message is one outbound alert.
type Message struct {
	Title string
	Body  string
	At    time.Time
}

func (m Message) Text() string {
	if m.Title == "" {
		return m.Body
	}
	return m.Title + "\n" + m.Body
}

// Notifier is a delivery channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}

// ReminderMessage renders a due dose.
func ReminderMessage(r health.Reminder) Message {
	body := fmt.Sprintf("%s %s is due at %s", r.Medication.Name, r.Medication.Dosage, r.ScheduledTime)
	if r.Medication.Notes != "" {
		body += " (" + r.Medication.Notes + ")"
	}
	return Message{
		Title: "💊 Medication reminder",
		Body:  body,
		At:    r.DueInstant,
	}
}

// LogNotifier writes reminders to the structured log. It is always enabled.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.Info(msg.Title,
		zap.String("body", msg.Body),
		zap.Time("at", msg.At),
	)
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, ",")
}

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Queries is the read side of the tracker that chat commands answer from.
type Queries interface {
	Now() time.Time
	TodaysReminders(now time.Time) []health.Reminder
	AdherenceRate(now time.Time) int
	Streak() int
}

// Answer replies to a chat command such as "today" or "/streak". The
// prefix character is ignored. ok is false for unknown commands.
func Answer(q Queries, command string) (reply string, ok bool) {
	cmd := strings.ToLower(strings.TrimLeft(strings.TrimSpace(command), "/!"))
	if i := strings.IndexAny(cmd, " @"); i >= 0 {
		cmd = cmd[:i]
	}
	now := q.Now()

	switch cmd {
	case "today", "reminders":
		reminders := q.TodaysReminders(now)
		if len(reminders) == 0 {
			return "All doses for today are taken. 🎉", true
		}
		var sb strings.Builder
		sb.WriteString("Today's doses:\n")
		for _, r := range reminders {
			status := "upcoming"
			if r.IsOverdue {
				status = "overdue"
			}
			fmt.Fprintf(&sb, "• %s %s at %s (%s)\n", r.Medication.Name, r.Medication.Dosage, r.ScheduledTime, status)
		}
		return strings.TrimRight(sb.String(), "\n"), true
	case "streak":
		return fmt.Sprintf("🔥 Current streak: %d day(s)", q.Streak()), true
	case "adherence":
		return fmt.Sprintf("📈 Adherence: %d%%", q.AdherenceRate(now)), true
	case "help", "start":
		return "Commands: today, streak, adherence", true
	}
	return "", false
}
