package health

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"
	"time"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"github.com/gmsas95/meditrack/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) Date {
	return Date{Year: y, Month: m, Day: d}
}

func at(d Date, hour, minute int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, time.UTC)
}

func newMed(id string, start Date, times ...string) Medication {
	return Medication{
		ID:        id,
		Name:      "Med " + id,
		Dosage:    "10mg",
		Times:     times,
		StartDate: start,
	}
}

func taken(id, slot string, ts time.Time) TakenDoseEvent {
	return TakenDoseEvent{MedicationID: id, ScheduledTime: slot, Timestamp: ts}
}

var today = date(2026, time.October, 17)

// Schedule model

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("08:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 8, Minute: 5}, tod)
	assert.Equal(t, "08:05", tod.String())

	tod, err = ParseTimeOfDay("23:59")
	require.NoError(t, err)
	assert.Equal(t, 23, tod.Hour)

	for _, bad := range []string{"", "8:00", "24:00", "12:60", "12-30", "ab:cd", "08:00 ", "8am"} {
		_, err := ParseTimeOfDay(bad)
		assert.True(t, apperrors.IsValidation(err), "expected validation error for %q", bad)
	}
}

func TestValidateSchedule(t *testing.T) {
	start := today
	assert.NoError(t, ValidateSchedule([]string{"08:00", "08:00"}, start, nil))

	assert.Error(t, ValidateSchedule(nil, start, nil))
	assert.Error(t, ValidateSchedule([]string{"01:00", "02:00", "03:00", "04:00", "05:00", "06:00", "07:00"}, start, nil))
	assert.Error(t, ValidateSchedule([]string{"7:00"}, start, nil))
	assert.Error(t, ValidateSchedule([]string{"07:00"}, Date{}, nil))

	before := start.AddDays(-1)
	err := ValidateSchedule([]string{"07:00"}, start, &before)
	assert.True(t, apperrors.IsValidation(err))

	same := start
	assert.NoError(t, ValidateSchedule([]string{"07:00"}, start, &same))
}

func TestDraftValidate(t *testing.T) {
	d := Draft{Name: "  ", Dosage: "5mg", Times: []string{"08:00"}, StartDate: today}
	assert.True(t, apperrors.IsValidation(d.Validate()))

	d = Draft{Name: "Aspirin", Dosage: "\t", Times: []string{"08:00"}, StartDate: today}
	assert.True(t, apperrors.IsValidation(d.Validate()))

	d = Draft{Name: "Aspirin", Dosage: "81mg", Times: []string{"08:00"}, StartDate: today}
	assert.NoError(t, d.Validate())

	d.Notes = "Take with food.\nNot after 6pm."
	assert.NoError(t, d.Validate())

	d.Name = strings.Repeat("a", 101)
	err := d.Validate()
	assert.True(t, apperrors.IsValidation(err))
	assert.ErrorIs(t, err, security.ErrInputTooLarge)

	d.Name = "Asp\x00irin"
	assert.ErrorIs(t, d.Validate(), security.ErrNullByteDetected)
}

func TestIsActiveOn(t *testing.T) {
	end := today.AddDays(2)
	m := newMed("a", today, "08:00")
	m.EndDate = &end

	assert.False(t, IsActiveOn(m, today.AddDays(-1)))
	assert.True(t, IsActiveOn(m, today))
	assert.True(t, IsActiveOn(m, end))
	assert.False(t, IsActiveOn(m, end.AddDays(1)))

	open := newMed("b", today, "08:00")
	assert.True(t, IsActiveOn(open, today.AddDays(3650)))
}

func TestDueInstantsFor_KeepsScheduleOrder(t *testing.T) {
	m := newMed("a", today, "20:00", "08:00")

	due, err := DueInstantsFor(m, at(today, 13, 0))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, at(today, 20, 0), due[0])
	assert.Equal(t, at(today, 8, 0), due[1])
}

func TestDueInstantsFor_MalformedTime(t *testing.T) {
	m := newMed("a", today, "08:00", "25:00")
	_, err := DueInstantsFor(m, at(today, 0, 0))
	assert.True(t, apperrors.IsValidation(err))
}

func TestIsOverdue(t *testing.T) {
	due := at(today, 8, 0)
	assert.True(t, IsOverdue(due, at(today, 8, 1)))
	assert.False(t, IsOverdue(due, due))
	assert.False(t, IsOverdue(due, at(today, 7, 59)))
}

// Reminders

func TestTodaysReminders_OverdueAndUpcoming(t *testing.T) {
	m := newMed("a", today, "08:00", "20:00")

	reminders := TodaysReminders([]Medication{m}, nil, at(today, 9, 0))
	require.Len(t, reminders, 2)
	assert.Equal(t, "08:00", reminders[0].ScheduledTime)
	assert.True(t, reminders[0].IsOverdue)
	assert.Equal(t, "20:00", reminders[1].ScheduledTime)
	assert.False(t, reminders[1].IsOverdue)
}

func TestTodaysReminders_SkipsTakenAndInactive(t *testing.T) {
	a := newMed("a", today, "08:00", "20:00")
	future := newMed("b", today.AddDays(1), "09:00")
	events := []TakenDoseEvent{
		taken("a", "08:00", at(today, 8, 30)),
		taken("a", "08:00", at(today, 8, 31)),
		taken("a", "20:00", at(today.AddDays(-1), 20, 0)),
	}

	reminders := TodaysReminders([]Medication{a, future}, events, at(today, 9, 0))
	require.Len(t, reminders, 1)
	assert.Equal(t, "20:00", reminders[0].ScheduledTime)
}

func TestTodaysReminders_SortedWithStableTieBreak(t *testing.T) {
	a := newMed("a", today, "20:00", "08:00")
	b := newMed("b", today, "08:00")

	reminders := TodaysReminders([]Medication{a, b}, nil, at(today, 6, 0))
	require.Len(t, reminders, 3)
	assert.Equal(t, "a", reminders[0].Medication.ID)
	assert.Equal(t, "08:00", reminders[0].ScheduledTime)
	assert.Equal(t, "b", reminders[1].Medication.ID)
	assert.Equal(t, "20:00", reminders[2].ScheduledTime)
}

func TestTodaysReminders_Idempotent(t *testing.T) {
	meds := []Medication{newMed("a", today, "08:00", "12:00"), newMed("b", today, "12:00")}
	events := []TakenDoseEvent{taken("a", "08:00", at(today, 8, 0))}
	now := at(today, 10, 0)

	first := TodaysReminders(meds, events, now)
	second := TodaysReminders(meds, events, now)
	assert.Equal(t, first, second)
}

// Adherence

func TestRollingAdherenceRate_SingleDayComplete(t *testing.T) {
	m := newMed("a", today, "08:00")
	events := []TakenDoseEvent{taken("a", "08:00", at(today, 8, 10))}

	assert.Equal(t, 100, RollingAdherenceRate([]Medication{m}, events, at(today, 12, 0), 1))
}

func TestRollingAdherenceRate_NoMedications(t *testing.T) {
	now := at(today, 12, 0)
	assert.Equal(t, 0, RollingAdherenceRate(nil, nil, now, DefaultWindowDays))
	assert.Equal(t, 0, CurrentStreak(nil, nil, now))
}

func TestRollingAdherenceRate_WindowAndActiveDays(t *testing.T) {
	// Started two days ago: 3 active days in a 7 day window, 2 slots each.
	m := newMed("a", today.AddDays(-2), "08:00", "20:00")
	events := []TakenDoseEvent{
		taken("a", "08:00", at(today.AddDays(-2), 8, 0)),
		taken("a", "20:00", at(today.AddDays(-2), 21, 0)),
		taken("a", "08:00", at(today.AddDays(-1), 8, 0)),
		taken("a", "08:00", at(today, 8, 0)),
		// outside the window
		taken("a", "08:00", at(today.AddDays(-9), 8, 0)),
	}

	// 4 of 6
	assert.Equal(t, 67, RollingAdherenceRate([]Medication{m}, events, at(today, 9, 0), 7))
}

func TestRollingAdherenceRate_IgnoresClockMismatchButNotDayMismatch(t *testing.T) {
	m := newMed("a", today, "08:00")

	late := []TakenDoseEvent{taken("a", "08:00", at(today, 23, 59))}
	assert.Equal(t, 100, RollingAdherenceRate([]Medication{m}, late, at(today, 23, 59), 1))

	nextDay := []TakenDoseEvent{taken("a", "08:00", at(today.AddDays(1), 0, 1))}
	assert.Equal(t, 0, RollingAdherenceRate([]Medication{m}, nextDay, at(today, 23, 59), 1))
}

func TestRollingAdherenceRate_IgnoresUnknownAndDuplicates(t *testing.T) {
	m := newMed("a", today, "08:00", "20:00")
	events := []TakenDoseEvent{
		taken("a", "08:00", at(today, 8, 0)),
		taken("a", "08:00", at(today, 8, 5)),
		taken("deleted", "20:00", at(today, 20, 0)),
		taken("a", "13:00", at(today, 13, 0)),
	}

	assert.Equal(t, 50, RollingAdherenceRate([]Medication{m}, events, at(today, 22, 0), 1))
}

func TestRollingAdherenceRate_MonotonicAndOrderIndependent(t *testing.T) {
	meds := []Medication{
		newMed("a", today.AddDays(-6), "08:00", "20:00"),
		newMed("b", today.AddDays(-3), "12:00"),
	}
	var all []TakenDoseEvent
	for i := 0; i < 7; i++ {
		d := today.AddDays(-i)
		all = append(all, taken("a", "08:00", at(d, 8, 0)))
		if i%2 == 0 {
			all = append(all, taken("a", "20:00", at(d, 20, 0)))
		}
		if i < 4 {
			all = append(all, taken("b", "12:00", at(d, 12, 0)))
		}
	}
	now := at(today, 23, 0)

	prev := RollingAdherenceRate(meds, nil, now, 7)
	for n := 1; n <= len(all); n++ {
		rate := RollingAdherenceRate(meds, all[:n], now, 7)
		assert.GreaterOrEqual(t, rate, prev)
		prev = rate
	}

	want := RollingAdherenceRate(meds, all, now, 7)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := append([]TakenDoseEvent(nil), all...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, RollingAdherenceRate(meds, shuffled, now, 7))
	}
}

func TestRollingAdherenceRate_LocalDayBoundary(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	m := newMed("a", today, "08:00")
	// 15:00 UTC on the 16th is 01:00 on the 17th in UTC+10.
	events := []TakenDoseEvent{taken("a", "08:00", time.Date(2026, time.October, 16, 15, 0, 0, 0, time.UTC))}
	now := time.Date(2026, time.October, 17, 9, 0, 0, 0, loc)

	assert.Equal(t, 100, RollingAdherenceRate([]Medication{m}, events, now, 1))
}

func TestDailyCompletion(t *testing.T) {
	m := newMed("a", today, "08:00", "20:00")
	half := []TakenDoseEvent{taken("a", "08:00", at(today, 8, 0))}
	full := append(half, taken("a", "20:00", at(today, 20, 0)))

	assert.False(t, DailyCompletion([]Medication{m}, half, at(today, 21, 0)))
	assert.True(t, DailyCompletion([]Medication{m}, full, at(today, 21, 0)))
	// Nothing scheduled before the start date: never complete.
	assert.False(t, DailyCompletion([]Medication{m}, full, at(today.AddDays(-1), 12, 0)))
}

// Streak

func completeDay(id string, d Date, slots ...string) []TakenDoseEvent {
	out := make([]TakenDoseEvent, 0, len(slots))
	for _, s := range slots {
		out = append(out, taken(id, s, at(d, 12, 0)))
	}
	return out
}

func TestCurrentStreak_GapResets(t *testing.T) {
	start := today.AddDays(-3)
	m := newMed("a", start, "08:00")
	var events []TakenDoseEvent
	for i := 0; i < 3; i++ {
		events = append(events, completeDay("a", start.AddDays(i), "08:00")...)
	}
	gap := start.AddDays(3)

	assert.Equal(t, 3, CurrentStreak([]Medication{m}, events, at(start.AddDays(2), 23, 0)))
	assert.Equal(t, 0, CurrentStreak([]Medication{m}, events, at(gap, 23, 0)))
}

func TestCurrentStreak_StopsAtMissedDayRegardlessOfOtherDays(t *testing.T) {
	start := today.AddDays(-6)
	m := newMed("a", start, "08:00", "20:00")
	missed := today.AddDays(-3)
	var events []TakenDoseEvent
	for d := start; !d.After(today); d = d.AddDays(1) {
		if d == missed {
			continue
		}
		events = append(events, completeDay("a", d, "08:00", "20:00")...)
	}

	assert.Equal(t, 3, CurrentStreak([]Medication{m}, events, at(today, 22, 0)))
	assert.Equal(t, 0, CurrentStreak([]Medication{m}, events, at(missed, 22, 0)))
	assert.Equal(t, 3, CurrentStreak([]Medication{m}, events, at(missed.AddDays(-1), 22, 0)))
}

func TestCurrentStreak_EndedMedicationDoesNotBlockLaterDays(t *testing.T) {
	start := today.AddDays(-4)
	end := today.AddDays(-3)
	a := newMed("a", start, "08:00")
	a.EndDate = &end
	b := newMed("b", start, "09:00")

	var events []TakenDoseEvent
	for d := start; !d.After(today); d = d.AddDays(1) {
		events = append(events, completeDay("b", d, "09:00")...)
		if !d.After(end) {
			events = append(events, completeDay("a", d, "08:00")...)
		}
	}

	assert.Equal(t, 5, CurrentStreak([]Medication{a, b}, events, at(today, 10, 0)))
}

func TestHistory(t *testing.T) {
	m := newMed("a", today.AddDays(-1), "08:00")
	events := []TakenDoseEvent{taken("a", "08:00", at(today, 8, 0))}

	hist := History([]Medication{m}, events, at(today, 9, 0), 3)
	require.Len(t, hist, 3)
	assert.Equal(t, DayTally{Date: today.AddDays(-2)}, hist[0])
	assert.Equal(t, DayTally{Date: today.AddDays(-1), Scheduled: 1}, hist[1])
	assert.Equal(t, DayTally{Date: today, Scheduled: 1, Taken: 1}, hist[2])
}

// Upcoming

func TestNextDose(t *testing.T) {
	a := newMed("a", today, "08:00", "20:00")
	b := newMed("b", today, "12:30")

	next, ok := NextDose([]Medication{a, b}, at(today, 9, 0))
	require.True(t, ok)
	assert.Equal(t, "b", next.MedicationID)
	assert.Equal(t, at(today, 12, 30), next.At)

	next, ok = NextDose([]Medication{a, b}, at(today, 21, 0))
	require.True(t, ok)
	assert.Equal(t, "a", next.MedicationID)
	assert.Equal(t, at(today.AddDays(1), 8, 0), next.At)

	_, ok = NextDose(nil, at(today, 9, 0))
	assert.False(t, ok)
}

func TestFormatTimeUntil(t *testing.T) {
	now := at(today, 9, 0)
	assert.Equal(t, "Now", FormatTimeUntil(now, now))
	assert.Equal(t, "45m", FormatTimeUntil(now.Add(45*time.Minute), now))
	assert.Equal(t, "2h 5m", FormatTimeUntil(now.Add(2*time.Hour+5*time.Minute), now))
}

// Date

func TestDate_AddDaysAndOrdering(t *testing.T) {
	d := date(2026, time.December, 31)
	assert.Equal(t, date(2027, time.January, 1), d.AddDays(1))
	assert.Equal(t, date(2026, time.November, 30), date(2026, time.December, 1).AddDays(-1))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.False(t, d.Before(d))
}

func TestDate_JSON(t *testing.T) {
	data, err := json.Marshal(date(2026, time.March, 5))
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-05"`, string(data))

	var d Date
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, date(2026, time.March, 5), d)

	assert.Error(t, json.Unmarshal([]byte(`"05/03/2026"`), &d))
}
