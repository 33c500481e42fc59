package api

import (
	"time"

	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gmsas95/meditrack/internal/interactions"
)

type loginRequest struct {
	Password string `json:"password"`
}

type markTakenRequest struct {
	ScheduledTime string `json:"scheduledTime"`
}

type notificationRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type nextDoseResponse struct {
	health.UpcomingDose
	In string `json:"in"`
}

type remindersResponse struct {
	Date      health.Date       `json:"date"`
	Reminders []health.Reminder `json:"reminders"`
	NextDose  *nextDoseResponse `json:"nextDose,omitempty"`
}

type adherenceResponse struct {
	WindowDays int `json:"windowDays"`
	Rate       int `json:"rate"`
}

type summaryResponse struct {
	Date         health.Date           `json:"date"`
	Medications  int                   `json:"medications"`
	DueToday     int                   `json:"dueToday"`
	Overdue      int                   `json:"overdue"`
	Adherence    int                   `json:"adherence"`
	Streak       int                   `json:"streak"`
	NextDose     *nextDoseResponse     `json:"nextDose,omitempty"`
	Interactions []interactions.Record `json:"interactions"`
	GeneratedAt  time.Time             `json:"generatedAt"`
}
