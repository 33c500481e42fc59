package health

import (
	"math"
	"time"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
)

// MaxRangeDays bounds every day-range query (adherence window, history).
const MaxRangeDays = 366

// ValidateRange checks a user-supplied day count against [1, MaxRangeDays].
func ValidateRange(field string, days int) error {
	if days < 1 || days > MaxRangeDays {
		return apperrors.Validation("%s must be between 1 and %d, got %d", field, MaxRangeDays, days)
	}
	return nil
}

// clampRange maps non-positive counts to the default window and caps the
// rest at MaxRangeDays.
func clampRange(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	if days > MaxRangeDays {
		return MaxRangeDays
	}
	return days
}

// MedicationProgress is one medication's share of a period.
type MedicationProgress struct {
	MedicationID string `json:"medicationId"`
	Name         string `json:"name"`
	Scheduled    int    `json:"scheduled"`
	Taken        int    `json:"taken"`
	Rate         int    `json:"rate"`
}

// PeriodStats summarizes a run of day tallies.
type PeriodStats struct {
	Days             int `json:"days"`
	TotalScheduled   int `json:"totalScheduled"`
	TotalTaken       int `json:"totalTaken"`
	MissedDoses      int `json:"missedDoses"`
	AverageAdherence int `json:"averageAdherence"`
	PerfectDays      int `json:"perfectDays"`
}

// Progress is the full view behind the progress chart.
type Progress struct {
	Days        []DayTally           `json:"days"`
	Stats       PeriodStats          `json:"stats"`
	Medications []MedicationProgress `json:"medications"`
}

// Rate is the day's taken percentage, 0 when nothing was scheduled.
func (t DayTally) Rate() int {
	return percent(t.Taken, t.Scheduled)
}

func percent(taken, scheduled int) int {
	if scheduled == 0 {
		return 0
	}
	return int(math.Round(float64(taken) / float64(scheduled) * 100))
}

// Breakdown returns per-medication scheduled and taken slot counts over the
// last days calendar days, in list order. Only days on which a medication
// was active count towards its schedule.
func Breakdown(meds []Medication, events []TakenDoseEvent, now time.Time, days int) []MedicationProgress {
	idx := indexTaken(meds, events, now.Location())
	return idx.breakdown(meds, DateOf(now), clampRange(days))
}

func (idx takenIndex) breakdown(meds []Medication, today Date, days int) []MedicationProgress {
	out := make([]MedicationProgress, 0, len(meds))
	for _, m := range meds {
		p := MedicationProgress{MedicationID: m.ID, Name: m.Name}
		for i := 0; i < days; i++ {
			day := today.AddDays(-i)
			if !IsActiveOn(m, day) {
				continue
			}
			for _, slot := range m.Times {
				p.Scheduled++
				if idx.has(m.ID, slot, day) {
					p.Taken++
				}
			}
		}
		p.Rate = percent(p.Taken, p.Scheduled)
		out = append(out, p)
	}
	return out
}

// Summarize totals a run of tallies. The average is the mean daily rate over
// days that had something scheduled; perfect days are complete days.
func Summarize(tallies []DayTally) PeriodStats {
	s := PeriodStats{Days: len(tallies)}
	rated, rateSum := 0, 0
	for _, t := range tallies {
		s.TotalScheduled += t.Scheduled
		s.TotalTaken += t.Taken
		if t.Scheduled == 0 {
			continue
		}
		rated++
		rateSum += t.Rate()
		if t.Complete() {
			s.PerfectDays++
		}
	}
	s.MissedDoses = s.TotalScheduled - s.TotalTaken
	if rated > 0 {
		s.AverageAdherence = int(math.Round(float64(rateSum) / float64(rated)))
	}
	return s
}

// BuildProgress computes the daily tallies, the period summary and the
// per-medication breakdown from a single pass over the event log.
func BuildProgress(meds []Medication, events []TakenDoseEvent, now time.Time, days int) Progress {
	days = clampRange(days)
	idx := indexTaken(meds, events, now.Location())
	today := DateOf(now)

	tallies := idx.history(meds, today, days)
	return Progress{
		Days:        tallies,
		Stats:       Summarize(tallies),
		Medications: idx.breakdown(meds, today, days),
	}
}
