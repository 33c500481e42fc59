// Package cron schedules the reminder sweep and the midnight rollover
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gmsas95/meditrack/internal/metrics"
	"github.com/gmsas95/meditrack/internal/notify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Tracker is the part of the tracker the runner drives.
type Tracker interface {
	Now() time.Time
	TodaysReminders(now time.Time) []health.Reminder
	AddNotification(ctx context.Context, typ, message string) (health.Notification, error)
	Notifications() []health.Notification
	Refresh(ctx context.Context) error
}

// Config holds cron runner configuration
type Config struct {
	ReminderSpec string // Default "@every 1m"
	RolloverSpec string // Default "@midnight"
	Location     *time.Location
}

type deliveryKey struct {
	medicationID  string
	scheduledTime string
	date          health.Date
}

// Runner manages scheduled job execution
type Runner struct {
	config    Config
	tracker   Tracker
	notifiers []notify.Notifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cron      *cron.Cron

	mu        sync.Mutex
	running   bool
	delivered map[deliveryKey]struct{}
}

// NewRunner creates a new cron runner
func NewRunner(config Config, tracker Tracker, notifiers []notify.Notifier, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if config.ReminderSpec == "" {
		config.ReminderSpec = "@every 1m"
	}
	if config.RolloverSpec == "" {
		config.RolloverSpec = "@midnight"
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if m == nil {
		m = metrics.Default()
	}

	return &Runner{
		config:    config,
		tracker:   tracker,
		notifiers: notifiers,
		metrics:   m,
		logger:    logger,
		delivered: make(map[deliveryKey]struct{}),
	}
}

// Start registers the jobs and starts the scheduler
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	c := cron.New(
		cron.WithLocation(r.config.Location),
		cron.WithLogger(cronLogger{r.logger}),
		cron.WithChain(cron.Recover(cronLogger{r.logger}), cron.SkipIfStillRunning(cronLogger{r.logger})),
	)
	if _, err := c.AddFunc(r.config.ReminderSpec, func() { r.CheckReminders(context.Background()) }); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", r.config.ReminderSpec, err)
	}
	if _, err := c.AddFunc(r.config.RolloverSpec, func() { r.Rollover(context.Background()) }); err != nil {
		return fmt.Errorf("invalid rollover schedule %q: %w", r.config.RolloverSpec, err)
	}

	r.cron = c
	r.running = true
	c.Start()

	r.logger.Info("Cron runner started",
		zap.String("reminders", r.config.ReminderSpec),
		zap.String("rollover", r.config.RolloverSpec),
	)
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	c := r.cron
	r.mu.Unlock()

	<-c.Stop().Done()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Entries lists the scheduled jobs, for status output.
func (r *Runner) Entries() []cron.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return nil
	}
	return r.cron.Entries()
}

// CheckReminders delivers every due, untaken dose of a reminder-enabled
// medication. Each (medication, slot, day) is delivered at most once, also
// across restarts: reminder notifications already recorded today count as
// delivered. It returns the number of reminders delivered.
func (r *Runner) CheckReminders(ctx context.Context) int {
	now := r.tracker.Now()
	today := health.DateOf(now)
	recorded := r.recordedToday(now)

	var due []health.Reminder
	r.mu.Lock()
	for k := range r.delivered {
		if k.date != today {
			delete(r.delivered, k)
		}
	}
	for _, rem := range r.tracker.TodaysReminders(now) {
		if !rem.Medication.ReminderEnabled || rem.DueInstant.After(now) {
			continue
		}
		key := deliveryKey{rem.Medication.ID, rem.ScheduledTime, today}
		if _, done := r.delivered[key]; done {
			continue
		}
		r.delivered[key] = struct{}{}
		if _, done := recorded[notify.ReminderMessage(rem).Body]; done {
			continue
		}
		due = append(due, rem)
	}
	r.mu.Unlock()

	for _, rem := range due {
		r.deliver(ctx, rem)
	}
	return len(due)
}

// recordedToday returns the bodies of reminder notifications stored on
// now's day.
func (r *Runner) recordedToday(now time.Time) map[string]struct{} {
	today := health.DateOf(now)
	out := make(map[string]struct{})
	for _, n := range r.tracker.Notifications() {
		if n.Type == health.NotificationReminder && health.DateOf(n.Timestamp.In(now.Location())) == today {
			out[n.Message] = struct{}{}
		}
	}
	return out
}

func (r *Runner) deliver(ctx context.Context, rem health.Reminder) {
	msg := notify.ReminderMessage(rem)

	if _, err := r.tracker.AddNotification(ctx, health.NotificationReminder, msg.Body); err != nil {
		r.logger.Warn("Failed to record reminder notification",
			zap.String("medication_id", rem.Medication.ID),
			zap.Error(err),
		)
	}

	for _, n := range r.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			r.logger.Warn("Reminder delivery failed",
				zap.String("channel", n.Name()),
				zap.String("medication_id", rem.Medication.ID),
				zap.Error(err),
			)
			continue
		}
		r.metrics.RecordReminder(n.Name())
	}
}

// Rollover re-evaluates the streak at the start of a new day.
func (r *Runner) Rollover(ctx context.Context) {
	if err := r.tracker.Refresh(ctx); err != nil {
		r.logger.Error("Day rollover failed", zap.Error(err))
		return
	}
	r.logger.Info("Day rollover complete")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
