package health

import (
	"fmt"
	"sort"
	"time"
)

// TodaysReminders lists every untaken slot of every medication active on
// now's calendar day, ordered by due instant. Slots sharing an instant keep
// medication order, then schedule order. Malformed slots are skipped; the
// tracker never stores them.
func TodaysReminders(meds []Medication, events []TakenDoseEvent, now time.Time) []Reminder {
	idx := indexTaken(meds, events, now.Location())
	today := DateOf(now)

	reminders := make([]Reminder, 0)
	for _, m := range meds {
		if !IsActiveOn(m, today) {
			continue
		}
		for _, slot := range m.Times {
			if idx.has(m.ID, slot, today) {
				continue
			}
			tod, err := ParseTimeOfDay(slot)
			if err != nil {
				continue
			}
			due := tod.On(today, now.Location())
			reminders = append(reminders, Reminder{
				Medication:    m.Clone(),
				ScheduledTime: slot,
				DueInstant:    due,
				IsOverdue:     IsOverdue(due, now),
			})
		}
	}

	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].DueInstant.Before(reminders[j].DueInstant)
	})
	return reminders
}

// UpcomingDose is the next scheduled slot across all medications.
type UpcomingDose struct {
	MedicationID   string    `json:"medicationId"`
	MedicationName string    `json:"medicationName"`
	ScheduledTime  string    `json:"scheduledTime"`
	At             time.Time `json:"at"`
}

// NextDose finds the earliest slot strictly after now. A slot already past
// today rolls over to tomorrow, provided the medication is active then.
func NextDose(meds []Medication, now time.Time) (UpcomingDose, bool) {
	var (
		next  UpcomingDose
		found bool
	)

	today := DateOf(now)
	for _, m := range meds {
		for _, slot := range m.Times {
			tod, err := ParseTimeOfDay(slot)
			if err != nil {
				continue
			}
			day := today
			at := tod.On(day, now.Location())
			if !at.After(now) {
				day = today.AddDays(1)
				at = tod.On(day, now.Location())
			}
			if !IsActiveOn(m, day) {
				continue
			}
			if !found || at.Before(next.At) {
				next = UpcomingDose{
					MedicationID:   m.ID,
					MedicationName: m.Name,
					ScheduledTime:  slot,
					At:             at,
				}
				found = true
			}
		}
	}
	return next, found
}

// FormatTimeUntil renders the gap between now and next as "Now", "45m" or
// "2h 5m".
func FormatTimeUntil(next, now time.Time) string {
	diff := next.Sub(now)
	if diff <= 0 {
		return "Now"
	}

	hours := int(diff / time.Hour)
	minutes := int((diff % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
