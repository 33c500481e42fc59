package health

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"github.com/gmsas95/meditrack/internal/security"
)

const (
	MinTimesPerDay = 1
	MaxTimesPerDay = 6
)

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// TimeOfDay is a wall-clock slot such as 08:00.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts only zero-padded 24h "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := timeOfDayPattern.FindStringSubmatch(s)
	if m == nil {
		return TimeOfDay{}, apperrors.Validation("invalid time of day %q, expected HH:MM", s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant of t on day d in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

// ValidateSchedule checks the slot list and date range of a medication.
func ValidateSchedule(times []string, start Date, end *Date) error {
	if len(times) < MinTimesPerDay || len(times) > MaxTimesPerDay {
		return apperrors.Validation("a medication needs between %d and %d scheduled times, got %d",
			MinTimesPerDay, MaxTimesPerDay, len(times))
	}
	for _, t := range times {
		if _, err := ParseTimeOfDay(t); err != nil {
			return err
		}
	}
	if start.IsZero() {
		return apperrors.Validation("start date is required")
	}
	if end != nil && end.Before(start) {
		return apperrors.Validation("end date %s is before start date %s", end, start)
	}
	return nil
}

// Validate checks a draft before it becomes a Medication.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return apperrors.Validation("medication name is required")
	}
	if strings.TrimSpace(d.Dosage) == "" {
		return apperrors.Validation("dosage is required")
	}
	if err := validateText(d); err != nil {
		return err
	}
	return ValidateSchedule(d.Times, d.StartDate, d.EndDate)
}

func validateText(d Draft) error {
	fields := []struct {
		name      string
		value     string
		max       int
		multiline bool
	}{
		{"name", d.Name, security.MaxNameLen, false},
		{"dosage", d.Dosage, security.MaxDosageLen, false},
		{"notes", d.Notes, security.MaxNotesLen, true},
	}
	for _, f := range fields {
		if err := security.ValidateField(f.name, f.value, f.max, f.multiline); err != nil {
			return apperrors.New(apperrors.CodeValidation, "invalid input", err)
		}
	}
	return nil
}

// Validate checks a stored medication, e.g. one loaded from a snapshot.
func (m Medication) Validate() error {
	if m.ID == "" {
		return apperrors.Validation("medication id is required")
	}
	return Draft{
		Name:      m.Name,
		Dosage:    m.Dosage,
		Times:     m.Times,
		StartDate: m.StartDate,
		EndDate:   m.EndDate,
	}.Validate()
}

// IsActiveOn reports whether day falls in [StartDate, EndDate], both inclusive.
func IsActiveOn(m Medication, day Date) bool {
	if day.Before(m.StartDate) {
		return false
	}
	if m.EndDate != nil && day.After(*m.EndDate) {
		return false
	}
	return true
}

// DueInstantsFor returns one instant per scheduled slot on the calendar day
// of day, in day's location. Order follows m.Times.
func DueInstantsFor(m Medication, day time.Time) ([]time.Time, error) {
	date := DateOf(day)
	out := make([]time.Time, 0, len(m.Times))
	for _, raw := range m.Times {
		tod, err := ParseTimeOfDay(raw)
		if err != nil {
			return nil, fmt.Errorf("medication %s: %w", m.ID, err)
		}
		out = append(out, tod.On(date, day.Location()))
	}
	return out, nil
}

func IsOverdue(due, now time.Time) bool {
	return due.Before(now)
}
