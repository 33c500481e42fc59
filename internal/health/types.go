package health

import (
	"time"
)

// Medication is a scheduled medication. It is never edited in place; the
// tracker replaces or removes whole values.
type Medication struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Dosage string `json:"dosage"` // e.g., "10mg", "1 tablet"

	// Schedule
	Times     []string `json:"times"` // ["08:00", "20:00"], schedule order
	StartDate Date     `json:"startDate"`
	EndDate   *Date    `json:"endDate,omitempty"`

	Notes           string    `json:"notes,omitempty"`
	ReminderEnabled bool      `json:"reminderEnabled"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Draft is the user-supplied part of a medication before the tracker assigns
// an id and creation time.
type Draft struct {
	Name            string   `json:"name"`
	Dosage          string   `json:"dosage"`
	Times           []string `json:"times"`
	StartDate       Date     `json:"startDate"`
	EndDate         *Date    `json:"endDate,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	ReminderEnabled bool     `json:"reminderEnabled"`
}

// TakenDoseEvent records that one dose slot was taken. Events are append-only.
type TakenDoseEvent struct {
	MedicationID  string    `json:"medicationId"`
	Timestamp     time.Time `json:"timestamp"`
	ScheduledTime string    `json:"scheduledTime"`
}

// Notification types
const (
	NotificationSuccess  = "success"
	NotificationReminder = "reminder"
	NotificationInfo     = "info"
	NotificationWarning  = "warning"
)

// Notification is a UI-facing message. Nothing in the calculators reads it.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Reminder is an untaken dose slot for today.
type Reminder struct {
	Medication    Medication `json:"medication"`
	ScheduledTime string     `json:"scheduledTime"`
	DueInstant    time.Time  `json:"dueInstant"`
	IsOverdue     bool       `json:"isOverdue"`
}

// DayTally counts scheduled and taken slots on a single day.
type DayTally struct {
	Date      Date `json:"date"`
	Scheduled int  `json:"scheduled"`
	Taken     int  `json:"taken"`
}

// Complete reports whether every scheduled slot was taken. A day with
// nothing scheduled is never complete.
func (t DayTally) Complete() bool {
	return t.Scheduled > 0 && t.Taken >= t.Scheduled
}

// HasSlot reports whether scheduledTime is one of m's slots.
func (m Medication) HasSlot(scheduledTime string) bool {
	for _, t := range m.Times {
		if t == scheduledTime {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can't alias the tracker's slices.
func (m Medication) Clone() Medication {
	out := m
	out.Times = append([]string(nil), m.Times...)
	if m.EndDate != nil {
		end := *m.EndDate
		out.EndDate = &end
	}
	return out
}
