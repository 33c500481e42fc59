package health

import (
	"time"
)

// DefaultWindowDays is the trailing window used for the adherence rate.
const DefaultWindowDays = 7

type slotKey struct {
	medicationID  string
	scheduledTime string
	date          Date
}

// takenIndex is the set of (medication, slot, day) triples that have at
// least one taken event. Events for medications not in meds are dropped, so
// dangling references left behind by deletions never count.
type takenIndex map[slotKey]struct{}

func indexTaken(meds []Medication, events []TakenDoseEvent, loc *time.Location) takenIndex {
	known := make(map[string]struct{}, len(meds))
	for _, m := range meds {
		known[m.ID] = struct{}{}
	}

	idx := make(takenIndex, len(events))
	for _, ev := range events {
		if _, ok := known[ev.MedicationID]; !ok {
			continue
		}
		idx[slotKey{
			medicationID:  ev.MedicationID,
			scheduledTime: ev.ScheduledTime,
			date:          DateOf(ev.Timestamp.In(loc)),
		}] = struct{}{}
	}
	return idx
}

func (idx takenIndex) has(medicationID, scheduledTime string, date Date) bool {
	_, ok := idx[slotKey{medicationID: medicationID, scheduledTime: scheduledTime, date: date}]
	return ok
}

func (idx takenIndex) tally(meds []Medication, date Date) DayTally {
	t := DayTally{Date: date}
	for _, m := range meds {
		if !IsActiveOn(m, date) {
			continue
		}
		for _, slot := range m.Times {
			t.Scheduled++
			if idx.has(m.ID, slot, date) {
				t.Taken++
			}
		}
	}
	return t
}

// RollingAdherenceRate returns the percentage (0-100) of scheduled slots
// over the last windowDays calendar days, today included, that have a
// matching taken event. Zero scheduled slots yields 0. The window is capped
// at MaxRangeDays.
func RollingAdherenceRate(meds []Medication, events []TakenDoseEvent, now time.Time, windowDays int) int {
	windowDays = clampRange(windowDays)

	idx := indexTaken(meds, events, now.Location())
	today := DateOf(now)

	scheduled, taken := 0, 0
	for i := 0; i < windowDays; i++ {
		t := idx.tally(meds, today.AddDays(-i))
		scheduled += t.Scheduled
		taken += t.Taken
	}

	return percent(taken, scheduled)
}

// DailyCompletion reports whether every slot scheduled on day's calendar day
// was taken.
func DailyCompletion(meds []Medication, events []TakenDoseEvent, day time.Time) bool {
	idx := indexTaken(meds, events, day.Location())
	return idx.tally(meds, DateOf(day)).Complete()
}

// CurrentStreak counts consecutive complete days walking backwards from
// asOf's day. It stops at the first incomplete or empty day, so it always
// terminates before the earliest start date.
func CurrentStreak(meds []Medication, events []TakenDoseEvent, asOf time.Time) int {
	if len(meds) == 0 {
		return 0
	}

	idx := indexTaken(meds, events, asOf.Location())
	streak := 0
	for day := DateOf(asOf); ; day = day.AddDays(-1) {
		if !idx.tally(meds, day).Complete() {
			return streak
		}
		streak++
	}
}

// History returns one tally per day for the last days calendar days, oldest
// first. days is capped at MaxRangeDays.
func History(meds []Medication, events []TakenDoseEvent, now time.Time, days int) []DayTally {
	idx := indexTaken(meds, events, now.Location())
	return idx.history(meds, DateOf(now), clampRange(days))
}

func (idx takenIndex) history(meds []Medication, today Date, days int) []DayTally {
	out := make([]DayTally, 0, days)
	for i := days - 1; i >= 0; i-- {
		out = append(out, idx.tally(meds, today.AddDays(-i)))
	}
	return out
}
