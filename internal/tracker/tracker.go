// Package tracker owns the medication list and the taken-dose log, keeps the
// streak cache current and persists the whole state as one snapshot.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gmsas95/meditrack/internal/interactions"
	"github.com/gmsas95/meditrack/internal/metrics"
	"github.com/gmsas95/meditrack/internal/security"
	"github.com/gmsas95/meditrack/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the persisted snapshot.
type State struct {
	Medications   []health.Medication     `json:"medications"`
	TakenHistory  []health.TakenDoseEvent `json:"takenHistory"`
	Streak        int                     `json:"streak"`
	Notifications []health.Notification   `json:"notifications"`
}

func emptyState() State {
	return State{
		Medications:   []health.Medication{},
		TakenHistory:  []health.TakenDoseEvent{},
		Notifications: []health.Notification{},
	}
}

// clone copies the slices so the next state can be built without touching
// the current one. Elements are immutable values and are shared.
func (s State) clone() State {
	return State{
		Medications:   append([]health.Medication{}, s.Medications...),
		TakenHistory:  append([]health.TakenDoseEvent{}, s.TakenHistory...),
		Streak:        s.Streak,
		Notifications: append([]health.Notification{}, s.Notifications...),
	}
}

func (s State) medication(id string) (health.Medication, bool) {
	for _, m := range s.Medications {
		if m.ID == id {
			return m, true
		}
	}
	return health.Medication{}, false
}

func (s State) validate() error {
	seen := make(map[string]bool, len(s.Medications))
	for _, m := range s.Medications {
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate medication id %s", m.ID)
		}
		seen[m.ID] = true
	}
	if s.Streak < 0 {
		return fmt.Errorf("negative streak %d", s.Streak)
	}
	return nil
}

// Options configures a Tracker. Zero values get sensible defaults.
type Options struct {
	Clock               func() time.Time
	Location            *time.Location
	Logger              *zap.Logger
	Metrics             *metrics.Metrics
	Resolver            *interactions.Resolver
	NewID               func() string
	AdherenceWindowDays int
}

// Tracker is the single writer over State. All methods are safe for
// concurrent use; commands are serialized.
type Tracker struct {
	mu        sync.Mutex
	state     State
	streakDay health.Date

	persister store.Persister
	clock     func() time.Time
	loc       *time.Location
	logger    *zap.Logger
	metrics   *metrics.Metrics
	resolver  *interactions.Resolver
	newID     func() string
	window    int

	subsMu  sync.RWMutex
	subs    map[int]func(health.Notification)
	nextSub int
}

// New loads the saved snapshot. A missing snapshot starts empty; a corrupt
// one is logged and replaced by empty state. Only backend I/O errors fail.
func New(ctx context.Context, p store.Persister, opts Options) (*Tracker, error) {
	t := &Tracker{
		persister: p,
		clock:     opts.Clock,
		loc:       opts.Location,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		resolver:  opts.Resolver,
		newID:     opts.NewID,
		window:    opts.AdherenceWindowDays,
		subs:      make(map[int]func(health.Notification)),
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if t.metrics == nil {
		t.metrics = metrics.New()
	}
	if t.resolver == nil {
		t.resolver = interactions.NewResolver(nil)
	}
	if t.newID == nil {
		t.newID = uuid.NewString
	}
	if t.window <= 0 {
		t.window = health.DefaultWindowDays
	}

	data, err := p.Load(ctx)
	if err != nil {
		return nil, apperrors.New(apperrors.CodePersistence, "failed to load snapshot", err)
	}

	t.state = emptyState()
	if data != nil {
		state, err := decode(data)
		if err != nil {
			t.logger.Warn("Discarding corrupt snapshot, starting empty",
				zap.String("key", store.SnapshotKey),
				zap.Error(err),
			)
		} else {
			t.state = state
		}
	}

	now := t.now()
	t.state.Streak = health.CurrentStreak(t.state.Medications, t.state.TakenHistory, now)
	t.streakDay = health.DateOf(now)
	t.observe(now)

	t.logger.Info("Tracker loaded",
		zap.Int("medications", len(t.state.Medications)),
		zap.Int("events", len(t.state.TakenHistory)),
		zap.Int("streak", t.state.Streak),
	)
	return t, nil
}

func decode(data []byte) (State, error) {
	state := emptyState()
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, apperrors.DataCorruption("snapshot is not valid JSON", err)
	}
	if err := state.validate(); err != nil {
		return State{}, apperrors.DataCorruption("snapshot failed validation", err)
	}
	if state.Medications == nil {
		state.Medications = []health.Medication{}
	}
	if state.TakenHistory == nil {
		state.TakenHistory = []health.TakenDoseEvent{}
	}
	if state.Notifications == nil {
		state.Notifications = []health.Notification{}
	}
	return state, nil
}

func (t *Tracker) now() time.Time {
	now := t.clock()
	if t.loc != nil {
		now = now.In(t.loc)
	}
	return now
}

// mutate builds the next state with apply, recomputes the streak and saves.
// The in-memory state only changes when the save succeeds.
func (t *Tracker) mutate(ctx context.Context, apply func(next *State, now time.Time) ([]health.Notification, error)) error {
	t.mu.Lock()

	now := t.now()
	next := t.state.clone()
	published, err := apply(&next, now)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	next.Streak = health.CurrentStreak(next.Medications, next.TakenHistory, now)

	if err := t.save(ctx, next); err != nil {
		t.mu.Unlock()
		return err
	}

	t.state = next
	t.streakDay = health.DateOf(now)
	t.observe(now)
	t.mu.Unlock()

	for _, n := range published {
		t.publish(n)
	}
	return nil
}

func (t *Tracker) save(ctx context.Context, s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return apperrors.New(apperrors.CodePersistence, "failed to encode snapshot", err)
	}
	if err := t.persister.Save(ctx, data); err != nil {
		t.metrics.RecordPersistFailure()
		t.logger.Error("Snapshot save failed, change rolled back", zap.Error(err))
		return apperrors.New(apperrors.CodePersistence, "failed to save snapshot", err)
	}
	return nil
}

// observe mirrors state into metrics gauges. Caller holds mu.
func (t *Tracker) observe(now time.Time) {
	t.metrics.SetState(
		len(t.state.Medications),
		health.RollingAdherenceRate(t.state.Medications, t.state.TakenHistory, now, t.window),
		t.state.Streak,
	)
}

// ==================== Commands ====================

// AddMedication validates the draft, assigns an id and creation time and
// appends it.
func (t *Tracker) AddMedication(ctx context.Context, d health.Draft) (health.Medication, error) {
	if err := d.Validate(); err != nil {
		return health.Medication{}, err
	}

	var med health.Medication
	err := t.mutate(ctx, func(next *State, now time.Time) ([]health.Notification, error) {
		med = health.Medication{
			ID:              t.newID(),
			Name:            strings.TrimSpace(d.Name),
			Dosage:          strings.TrimSpace(d.Dosage),
			Times:           append([]string{}, d.Times...),
			StartDate:       d.StartDate,
			Notes:           d.Notes,
			ReminderEnabled: d.ReminderEnabled,
			CreatedAt:       now,
		}
		if d.EndDate != nil {
			end := *d.EndDate
			med.EndDate = &end
		}
		if _, dup := next.medication(med.ID); dup {
			return nil, fmt.Errorf("id generator returned duplicate %s", med.ID)
		}
		next.Medications = append(next.Medications, med)
		return nil, nil
	})
	if err != nil {
		return health.Medication{}, err
	}

	t.logger.Info("Medication added",
		zap.String("medication_id", med.ID),
		zap.String("name", med.Name),
		zap.Strings("times", med.Times),
	)
	return med.Clone(), nil
}

// DeleteMedication removes a medication. Deleting an unknown id is a no-op.
// Taken events for the medication stay in the log and are ignored by queries.
func (t *Tracker) DeleteMedication(ctx context.Context, id string) error {
	t.mu.Lock()
	_, ok := t.state.medication(id)
	t.mu.Unlock()
	if !ok {
		return nil
	}

	err := t.mutate(ctx, func(next *State, _ time.Time) ([]health.Notification, error) {
		kept := next.Medications[:0]
		for _, m := range next.Medications {
			if m.ID != id {
				kept = append(kept, m)
			}
		}
		next.Medications = kept
		return nil, nil
	})
	if err != nil {
		return err
	}

	t.logger.Info("Medication deleted", zap.String("medication_id", id))
	return nil
}

// MarkTaken appends a taken event for one slot at the current instant and a
// success notification.
func (t *Tracker) MarkTaken(ctx context.Context, medicationID, scheduledTime string) (health.TakenDoseEvent, error) {
	var event health.TakenDoseEvent
	err := t.mutate(ctx, func(next *State, now time.Time) ([]health.Notification, error) {
		med, ok := next.medication(medicationID)
		if !ok {
			return nil, apperrors.NotFound("medication %s not found", medicationID)
		}
		if _, err := health.ParseTimeOfDay(scheduledTime); err != nil {
			return nil, err
		}
		if !med.HasSlot(scheduledTime) {
			return nil, apperrors.Validation("%s is not a scheduled time for %s", scheduledTime, med.Name)
		}

		event = health.TakenDoseEvent{
			MedicationID:  medicationID,
			Timestamp:     now,
			ScheduledTime: scheduledTime,
		}
		next.TakenHistory = append(next.TakenHistory, event)

		n := health.Notification{
			ID:        t.newID(),
			Type:      health.NotificationSuccess,
			Message:   fmt.Sprintf("%s (%s) marked as taken!", med.Name, scheduledTime),
			Timestamp: now,
		}
		next.Notifications = append(next.Notifications, n)
		return []health.Notification{n}, nil
	})
	if err != nil {
		return health.TakenDoseEvent{}, err
	}

	t.metrics.RecordDoseTaken()
	t.logger.Info("Dose taken",
		zap.String("medication_id", medicationID),
		zap.String("scheduled_time", scheduledTime),
	)
	return event, nil
}

// AddNotification appends a UI notification. An empty type means info.
func (t *Tracker) AddNotification(ctx context.Context, typ, message string) (health.Notification, error) {
	if strings.TrimSpace(message) == "" {
		return health.Notification{}, apperrors.Validation("notification message is required")
	}
	if err := security.ValidateField("message", message, security.MaxMessageLen, true); err != nil {
		return health.Notification{}, apperrors.New(apperrors.CodeValidation, "invalid input", err)
	}
	switch typ {
	case "":
		typ = health.NotificationInfo
	case health.NotificationSuccess, health.NotificationReminder, health.NotificationInfo, health.NotificationWarning:
	default:
		return health.Notification{}, apperrors.Validation("unknown notification type %q", typ)
	}

	var n health.Notification
	err := t.mutate(ctx, func(next *State, now time.Time) ([]health.Notification, error) {
		n = health.Notification{ID: t.newID(), Type: typ, Message: message, Timestamp: now}
		next.Notifications = append(next.Notifications, n)
		return []health.Notification{n}, nil
	})
	return n, err
}

// ClearNotification removes a notification. Unknown ids are a no-op.
func (t *Tracker) ClearNotification(ctx context.Context, id string) error {
	t.mu.Lock()
	found := false
	for _, n := range t.state.Notifications {
		if n.ID == id {
			found = true
			break
		}
	}
	t.mu.Unlock()
	if !found {
		return nil
	}

	return t.mutate(ctx, func(next *State, _ time.Time) ([]health.Notification, error) {
		kept := next.Notifications[:0]
		for _, n := range next.Notifications {
			if n.ID != id {
				kept = append(kept, n)
			}
		}
		next.Notifications = kept
		return nil, nil
	})
}

// Refresh re-evaluates the streak for the current day and persists it when
// it changed. Called at day rollover.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	now := t.now()
	streak := health.CurrentStreak(t.state.Medications, t.state.TakenHistory, now)
	changed := streak != t.state.Streak
	if !changed {
		t.streakDay = health.DateOf(now)
		t.observe(now)
	}
	t.mu.Unlock()

	if !changed {
		return nil
	}
	if err := t.mutate(ctx, func(*State, time.Time) ([]health.Notification, error) { return nil, nil }); err != nil {
		return err
	}
	t.logger.Info("Streak refreshed", zap.Int("streak", streak))
	return nil
}

// ==================== Queries ====================

func (t *Tracker) ListMedications() []health.Medication {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]health.Medication, len(t.state.Medications))
	for i, m := range t.state.Medications {
		out[i] = m.Clone()
	}
	return out
}

func (t *Tracker) GetMedication(id string) (health.Medication, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.state.medication(id)
	if !ok {
		return health.Medication{}, apperrors.NotFound("medication %s not found", id)
	}
	return m.Clone(), nil
}

func (t *Tracker) TodaysReminders(now time.Time) []health.Reminder {
	t.mu.Lock()
	defer t.mu.Unlock()
	return health.TodaysReminders(t.state.Medications, t.state.TakenHistory, t.in(now))
}

// AdherenceRate uses the configured window (seven days by default).
func (t *Tracker) AdherenceRate(now time.Time) int {
	return t.AdherenceRateWindow(now, t.window)
}

func (t *Tracker) AdherenceRateWindow(now time.Time, windowDays int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return health.RollingAdherenceRate(t.state.Medications, t.state.TakenHistory, t.in(now), windowDays)
}

// Streak returns the cached streak, recomputing first if the cache was
// evaluated on an earlier day.
func (t *Tracker) Streak() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if today := health.DateOf(now); today != t.streakDay {
		t.state.Streak = health.CurrentStreak(t.state.Medications, t.state.TakenHistory, now)
		t.streakDay = today
		t.observe(now)
	}
	return t.state.Streak
}

func (t *Tracker) History(now time.Time, days int) []health.DayTally {
	t.mu.Lock()
	defer t.mu.Unlock()
	return health.History(t.state.Medications, t.state.TakenHistory, t.in(now), days)
}

// Progress returns daily tallies, period stats and the per-medication
// breakdown for the last days days.
func (t *Tracker) Progress(now time.Time, days int) health.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return health.BuildProgress(t.state.Medications, t.state.TakenHistory, t.in(now), days)
}

func (t *Tracker) NextDose(now time.Time) (health.UpcomingDose, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return health.NextDose(t.state.Medications, t.in(now))
}

// Interactions resolves the given medications in list order.
func (t *Tracker) Interactions(meds []health.Medication) []interactions.Record {
	drugs := make([]interactions.Drug, len(meds))
	for i, m := range meds {
		drugs[i] = interactions.Drug{ID: m.ID, Name: m.Name}
	}

	records := t.resolver.Resolve(drugs)
	for _, r := range records {
		t.metrics.RecordInteraction(string(r.Severity))
	}
	return records
}

// ActiveInteractions resolves the medications active today.
func (t *Tracker) ActiveInteractions(now time.Time) []interactions.Record {
	t.mu.Lock()
	today := health.DateOf(t.in(now))
	var active []health.Medication
	for _, m := range t.state.Medications {
		if health.IsActiveOn(m, today) {
			active = append(active, m)
		}
	}
	t.mu.Unlock()

	return t.Interactions(active)
}

// Resolver exposes the resolver so knowledge base sources can swap tables.
func (t *Tracker) Resolver() *interactions.Resolver {
	return t.resolver
}

func (t *Tracker) Notifications() []health.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]health.Notification{}, t.state.Notifications...)
}

// Snapshot returns a deep copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state.clone()
	for i, m := range s.Medications {
		s.Medications[i] = m.Clone()
	}
	return s
}

// Now is the tracker's clock in its location.
func (t *Tracker) Now() time.Time {
	return t.now()
}

func (t *Tracker) in(now time.Time) time.Time {
	if t.loc != nil {
		return now.In(t.loc)
	}
	return now
}

// ==================== Subscriptions ====================

// Subscribe registers fn for every notification appended from now on. fn
// runs on the caller's goroutine after the change is saved and must not
// block. The returned func unsubscribes.
func (t *Tracker) Subscribe(fn func(health.Notification)) func() {
	t.subsMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.subsMu.Unlock()

	return func() {
		t.subsMu.Lock()
		delete(t.subs, id)
		t.subsMu.Unlock()
	}
}

func (t *Tracker) publish(n health.Notification) {
	t.subsMu.RLock()
	defer t.subsMu.RUnlock()
	for _, fn := range t.subs {
		fn(n)
	}
}
