package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gmsas95/meditrack/internal/interactions"
	"github.com/gmsas95/meditrack/internal/metrics"
	"github.com/gmsas95/meditrack/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = health.Date{Year: 2026, Month: time.October, Day: 17}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func at(d health.Date, hour, minute int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, time.UTC)
}

func newTracker(t *testing.T, p store.Persister, clock *fakeClock) *Tracker {
	t.Helper()
	tr, err := New(context.Background(), p, Options{Clock: clock.Now, Metrics: metrics.New()})
	require.NoError(t, err)
	return tr
}

func draft(name string, start health.Date, times ...string) health.Draft {
	return health.Draft{Name: name, Dosage: "10mg", Times: times, StartDate: start, ReminderEnabled: true}
}

func TestNew_EmptyWhenMissing(t *testing.T) {
	tr := newTracker(t, store.NewMemory(), newClock(at(today, 9, 0)))

	assert.Empty(t, tr.ListMedications())
	assert.Equal(t, 0, tr.Streak())
	assert.Equal(t, 0, tr.AdherenceRate(at(today, 9, 0)))
}

func TestAddMedication(t *testing.T) {
	clock := newClock(at(today, 9, 0))
	mem := store.NewMemory()
	tr := newTracker(t, mem, clock)
	ctx := context.Background()

	med, err := tr.AddMedication(ctx, draft("  Lisinopril ", today, "08:00"))
	require.NoError(t, err)
	assert.NotEmpty(t, med.ID)
	assert.Equal(t, "Lisinopril", med.Name)
	assert.Equal(t, at(today, 9, 0), med.CreatedAt)
	assert.Equal(t, 1, mem.Saves())

	other, err := tr.AddMedication(ctx, draft("Metformin", today, "08:00", "20:00"))
	require.NoError(t, err)
	assert.NotEqual(t, med.ID, other.ID)

	meds := tr.ListMedications()
	require.Len(t, meds, 2)
	assert.Equal(t, "Lisinopril", meds[0].Name)
	assert.Equal(t, "Metformin", meds[1].Name)
}

func TestAddMedication_Validation(t *testing.T) {
	mem := store.NewMemory()
	tr := newTracker(t, mem, newClock(at(today, 9, 0)))
	ctx := context.Background()

	before := today.AddDays(-1)
	cases := map[string]health.Draft{
		"blank name":     draft("   ", today, "08:00"),
		"blank dosage":   {Name: "A", Dosage: " ", Times: []string{"08:00"}, StartDate: today},
		"malformed time": draft("A", today, "8am"),
		"no times":       draft("A", today),
		"end before":     {Name: "A", Dosage: "1", Times: []string{"08:00"}, StartDate: today, EndDate: &before},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tr.AddMedication(ctx, d)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}

	assert.Empty(t, tr.ListMedications())
	assert.Equal(t, 0, mem.Saves())
}

func TestAddMedication_ReturnsCopy(t *testing.T) {
	tr := newTracker(t, store.NewMemory(), newClock(at(today, 9, 0)))

	med, err := tr.AddMedication(context.Background(), draft("A", today, "08:00"))
	require.NoError(t, err)
	med.Times[0] = "23:59"

	assert.Equal(t, []string{"08:00"}, tr.ListMedications()[0].Times)
}

func TestDeleteMedication(t *testing.T) {
	clock := newClock(at(today, 9, 0))
	mem := store.NewMemory()
	tr := newTracker(t, mem, clock)
	ctx := context.Background()

	a, err := tr.AddMedication(ctx, draft("A", today, "08:00"))
	require.NoError(t, err)
	b, err := tr.AddMedication(ctx, draft("B", today, "08:00"))
	require.NoError(t, err)
	_, err = tr.MarkTaken(ctx, a.ID, "08:00")
	require.NoError(t, err)
	assert.Equal(t, 50, tr.AdherenceRateWindow(clock.Now(), 1))

	saves := mem.Saves()
	require.NoError(t, tr.DeleteMedication(ctx, "missing"))
	assert.Equal(t, saves, mem.Saves(), "absent id is a no-op")

	require.NoError(t, tr.DeleteMedication(ctx, a.ID))
	meds := tr.ListMedications()
	require.Len(t, meds, 1)
	assert.Equal(t, b.ID, meds[0].ID)

	// The event log keeps the orphaned event but queries ignore it.
	assert.Len(t, tr.Snapshot().TakenHistory, 1)
	assert.Equal(t, 0, tr.AdherenceRateWindow(clock.Now(), 1))
}

func TestMarkTaken(t *testing.T) {
	clock := newClock(at(today, 8, 5))
	tr := newTracker(t, store.NewMemory(), clock)
	ctx := context.Background()

	med, err := tr.AddMedication(ctx, draft("Aspirin", today, "08:00"))
	require.NoError(t, err)

	var got []health.Notification
	unsubscribe := tr.Subscribe(func(n health.Notification) { got = append(got, n) })

	_, err = tr.MarkTaken(ctx, "nope", "08:00")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = tr.MarkTaken(ctx, med.ID, "09:00")
	assert.True(t, apperrors.IsValidation(err))

	_, err = tr.MarkTaken(ctx, med.ID, "9:00")
	assert.True(t, apperrors.IsValidation(err))

	ev, err := tr.MarkTaken(ctx, med.ID, "08:00")
	require.NoError(t, err)
	assert.Equal(t, at(today, 8, 5), ev.Timestamp)

	notes := tr.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, health.NotificationSuccess, notes[0].Type)
	assert.Contains(t, notes[0].Message, "Aspirin")
	require.Len(t, got, 1)
	assert.Equal(t, notes[0], got[0])

	assert.Empty(t, tr.TodaysReminders(clock.Now()))
	assert.Equal(t, 1, tr.Streak())

	unsubscribe()
	_, err = tr.MarkTaken(ctx, med.ID, "08:00")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTodaysReminders_OverdueSplit(t *testing.T) {
	clock := newClock(at(today, 7, 0))
	tr := newTracker(t, store.NewMemory(), clock)

	_, err := tr.AddMedication(context.Background(), draft("A", today, "08:00", "20:00"))
	require.NoError(t, err)

	reminders := tr.TodaysReminders(at(today, 9, 0))
	require.Len(t, reminders, 2)
	assert.True(t, reminders[0].IsOverdue)
	assert.Equal(t, "08:00", reminders[0].ScheduledTime)
	assert.False(t, reminders[1].IsOverdue)
	assert.Equal(t, reminders, tr.TodaysReminders(at(today, 9, 0)))
}

// The streak cache must match a fresh recomputation after every mutation and
// across every day boundary.
func TestStreak_MatchesRecomputationAcrossDays(t *testing.T) {
	start := today.AddDays(-5)
	clock := newClock(at(start, 7, 0))
	tr := newTracker(t, store.NewMemory(), clock)
	ctx := context.Background()

	med, err := tr.AddMedication(ctx, draft("A", start, "08:00", "20:00"))
	require.NoError(t, err)

	check := func() {
		t.Helper()
		snap := tr.Snapshot()
		want := health.CurrentStreak(snap.Medications, snap.TakenHistory, clock.Now())
		assert.Equal(t, want, tr.Streak(), "at %s", clock.Now())
	}

	missed := start.AddDays(3)
	expected := map[health.Date]int{}
	for i := 0; i <= 5; i++ {
		day := start.AddDays(i)

		clock.Set(at(day, 7, 0))
		check()
		require.NoError(t, tr.Refresh(ctx))
		check()

		if day == missed {
			clock.Set(at(day, 23, 0))
			check()
			expected[day] = tr.Streak()
			continue
		}

		clock.Set(at(day, 8, 1))
		_, err := tr.MarkTaken(ctx, med.ID, "08:00")
		require.NoError(t, err)
		check()

		clock.Set(at(day, 20, 1))
		_, err = tr.MarkTaken(ctx, med.ID, "20:00")
		require.NoError(t, err)
		check()
		expected[day] = tr.Streak()
	}

	assert.Equal(t, 1, expected[start])
	assert.Equal(t, 3, expected[start.AddDays(2)])
	assert.Equal(t, 0, expected[missed])
	assert.Equal(t, 2, expected[start.AddDays(5)])
}

func TestRefresh_PersistsRolloverReset(t *testing.T) {
	clock := newClock(at(today, 9, 0))
	mem := store.NewMemory()
	tr := newTracker(t, mem, clock)
	ctx := context.Background()

	med, err := tr.AddMedication(ctx, draft("A", today, "08:00"))
	require.NoError(t, err)
	_, err = tr.MarkTaken(ctx, med.ID, "08:00")
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Snapshot().Streak)

	saves := mem.Saves()
	require.NoError(t, tr.Refresh(ctx))
	assert.Equal(t, saves, mem.Saves(), "unchanged streak is not saved")

	clock.Set(at(today.AddDays(1), 0, 0))
	require.NoError(t, tr.Refresh(ctx))
	assert.Equal(t, saves+1, mem.Saves())
	assert.Equal(t, 0, tr.Snapshot().Streak)

	reloaded := newTracker(t, mem, clock)
	assert.Equal(t, 0, reloaded.Snapshot().Streak)
}

func TestPersistence_RoundTrip(t *testing.T) {
	clock := newClock(at(today, 9, 0))
	mem := store.NewMemory()
	tr := newTracker(t, mem, clock)
	ctx := context.Background()

	end := today.AddDays(10)
	d := draft("Warfarin", today, "08:00", "20:00")
	d.EndDate = &end
	d.Notes = "with food"
	med, err := tr.AddMedication(ctx, d)
	require.NoError(t, err)
	_, err = tr.AddMedication(ctx, draft("Aspirin", today, "08:00"))
	require.NoError(t, err)
	_, err = tr.MarkTaken(ctx, med.ID, "08:00")
	require.NoError(t, err)
	_, err = tr.AddNotification(ctx, health.NotificationWarning, "Check interactions")
	require.NoError(t, err)

	before := tr.Snapshot()
	reloaded := newTracker(t, mem, clock)
	assert.Equal(t, before, reloaded.Snapshot())

	data, err := mem.Load(ctx)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 4)
	for _, key := range []string{"medications", "takenHistory", "streak", "notifications"} {
		assert.Contains(t, raw, key)
	}
}

func TestPersistence_RoundTripBadger(t *testing.T) {
	b, err := store.OpenBadgerInMemory()
	require.NoError(t, err)
	defer b.Close()

	clock := newClock(at(today, 9, 0))
	tr := newTracker(t, b, clock)
	med, err := tr.AddMedication(context.Background(), draft("A", today, "08:00"))
	require.NoError(t, err)
	_, err = tr.MarkTaken(context.Background(), med.ID, "08:00")
	require.NoError(t, err)

	assert.Equal(t, tr.Snapshot(), newTracker(t, b, clock).Snapshot())
}

func TestNew_CorruptSnapshotFallsBack(t *testing.T) {
	blobs := map[string]string{
		"not json":        `{"medications": [`,
		"wrong shape":     `{"medications": "lots"}`,
		"invalid med":     `{"medications":[{"id":"1","name":"A","dosage":"1","times":[],"startDate":"2026-10-17"}]}`,
		"bad time":        `{"medications":[{"id":"1","name":"A","dosage":"1","times":["25:00"],"startDate":"2026-10-17"}]}`,
		"duplicate id":    `{"medications":[{"id":"1","name":"A","dosage":"1","times":["08:00"],"startDate":"2026-10-17"},{"id":"1","name":"B","dosage":"1","times":["08:00"],"startDate":"2026-10-17"}]}`,
		"negative streak": `{"streak": -2}`,
	}
	for name, blob := range blobs {
		t.Run(name, func(t *testing.T) {
			tr := newTracker(t, store.NewMemoryWith([]byte(blob)), newClock(at(today, 9, 0)))
			assert.Empty(t, tr.ListMedications())
			assert.Equal(t, 0, tr.Streak())
		})
	}
}

func TestNew_NullSlicesNormalized(t *testing.T) {
	tr := newTracker(t, store.NewMemoryWith([]byte(`{"medications":null,"streak":0}`)), newClock(at(today, 9, 0)))

	snap := tr.Snapshot()
	assert.NotNil(t, snap.Medications)
	assert.NotNil(t, snap.TakenHistory)
	assert.NotNil(t, snap.Notifications)
}

type failingLoader struct{ store.Memory }

func (f *failingLoader) Load(context.Context) ([]byte, error) {
	return nil, errors.New("permission denied")
}

func TestNew_LoadErrorFails(t *testing.T) {
	_, err := New(context.Background(), &failingLoader{}, Options{})
	assert.True(t, errors.Is(err, apperrors.ErrPersistence))
}

func TestMutation_RollsBackOnSaveFailure(t *testing.T) {
	clock := newClock(at(today, 9, 0))
	mem := store.NewMemory()
	m := metrics.New()
	tr, err := New(context.Background(), mem, Options{Clock: clock.Now, Metrics: m})
	require.NoError(t, err)
	ctx := context.Background()

	med, err := tr.AddMedication(ctx, draft("A", today, "08:00"))
	require.NoError(t, err)
	before := tr.Snapshot()

	mem.SetSaveErr(errors.New("disk full"))

	_, err = tr.AddMedication(ctx, draft("B", today, "08:00"))
	assert.True(t, errors.Is(err, apperrors.ErrPersistence))
	_, err = tr.MarkTaken(ctx, med.ID, "08:00")
	assert.True(t, errors.Is(err, apperrors.ErrPersistence))
	err = tr.DeleteMedication(ctx, med.ID)
	assert.True(t, errors.Is(err, apperrors.ErrPersistence))

	assert.Equal(t, before, tr.Snapshot())
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PersistFailures))

	mem.SetSaveErr(nil)
	_, err = tr.MarkTaken(ctx, med.ID, "08:00")
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Streak())
}

func TestStreak_DayChangeRefreshesGauges(t *testing.T) {
	clock := newClock(at(today, 9, 0))
	m := metrics.New()
	tr, err := New(context.Background(), store.NewMemory(), Options{Clock: clock.Now, Metrics: m})
	require.NoError(t, err)
	ctx := context.Background()

	med, err := tr.AddMedication(ctx, draft("A", today, "08:00"))
	require.NoError(t, err)
	_, err = tr.MarkTaken(ctx, med.ID, "08:00")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StreakDays))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.AdherenceRate))

	// Next morning, before the dose: today is incomplete.
	clock.Set(at(today.AddDays(1), 7, 0))
	assert.Equal(t, 0, tr.Streak())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.StreakDays))
	assert.Equal(t, float64(50), testutil.ToFloat64(m.AdherenceRate))
}

func TestProgress(t *testing.T) {
	clock := newClock(at(today, 21, 0))
	tr := newTracker(t, store.NewMemory(), clock)
	ctx := context.Background()

	a, err := tr.AddMedication(ctx, draft("A", today.AddDays(-1), "08:00", "20:00"))
	require.NoError(t, err)
	_, err = tr.MarkTaken(ctx, a.ID, "08:00")
	require.NoError(t, err)
	_, err = tr.MarkTaken(ctx, a.ID, "08:00")
	require.NoError(t, err)

	p := tr.Progress(clock.Now(), 2)
	require.Len(t, p.Days, 2)
	require.Len(t, p.Medications, 1)
	assert.Equal(t, 4, p.Medications[0].Scheduled)
	assert.Equal(t, 1, p.Medications[0].Taken, "duplicate events count once")
	assert.Equal(t, 25, p.Medications[0].Rate)
	assert.Equal(t, 3, p.Stats.MissedDoses)
	assert.Equal(t, 0, p.Stats.PerfectDays)
	assert.Equal(t, 25, p.Stats.AverageAdherence)
}

func TestNotifications(t *testing.T) {
	tr := newTracker(t, store.NewMemory(), newClock(at(today, 9, 0)))
	ctx := context.Background()

	n, err := tr.AddNotification(ctx, "", "Refill soon")
	require.NoError(t, err)
	assert.Equal(t, health.NotificationInfo, n.Type)

	_, err = tr.AddNotification(ctx, "alarm", "x")
	assert.True(t, apperrors.IsValidation(err))
	_, err = tr.AddNotification(ctx, health.NotificationInfo, "  ")
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, tr.ClearNotification(ctx, "unknown"))
	assert.Len(t, tr.Notifications(), 1)

	require.NoError(t, tr.ClearNotification(ctx, n.ID))
	assert.Empty(t, tr.Notifications())
}

func TestInteractions(t *testing.T) {
	clock := newClock(at(today, 9, 0))
	tr := newTracker(t, store.NewMemory(), clock)
	ctx := context.Background()

	_, err := tr.AddMedication(ctx, draft("Warfarin", today, "08:00"))
	require.NoError(t, err)
	_, err = tr.AddMedication(ctx, draft("Aspirin", today, "08:00"))
	require.NoError(t, err)

	var drugDrug []interactions.Record
	for _, r := range tr.Interactions(tr.ListMedications()) {
		if r.Kind == interactions.KindDrugDrug {
			drugDrug = append(drugDrug, r)
		}
	}
	require.Len(t, drugDrug, 1)
	assert.Equal(t, interactions.SeveritySevere, drugDrug[0].Severity)

	// Ibuprofen ended yesterday so it does not count today.
	ended := today.AddDays(-1)
	d := draft("Ibuprofen", today.AddDays(-5), "08:00")
	d.EndDate = &ended
	_, err = tr.AddMedication(ctx, d)
	require.NoError(t, err)

	assert.Len(t, tr.Interactions(tr.ListMedications()), len(tr.ActiveInteractions(clock.Now()))+1)
}

func TestHistoryAndNextDose(t *testing.T) {
	clock := newClock(at(today, 9, 0))
	tr := newTracker(t, store.NewMemory(), clock)
	ctx := context.Background()

	med, err := tr.AddMedication(ctx, draft("A", today.AddDays(-1), "08:00", "20:00"))
	require.NoError(t, err)
	_, err = tr.MarkTaken(ctx, med.ID, "08:00")
	require.NoError(t, err)

	history := tr.History(clock.Now(), 3)
	require.Len(t, history, 3)
	assert.Equal(t, 0, history[0].Scheduled)
	assert.Equal(t, health.DayTally{Date: today, Scheduled: 2, Taken: 1}, history[2])

	next, ok := tr.NextDose(clock.Now())
	require.True(t, ok)
	assert.Equal(t, "20:00", next.ScheduledTime)
}
