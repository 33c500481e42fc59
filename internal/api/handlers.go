package api

import (
	"crypto/subtle"
	"time"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gmsas95/meditrack/internal/interactions"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// fail maps tracker errors onto HTTP statuses.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case apperrors.IsValidation(err):
		status = fiber.StatusBadRequest
	case apperrors.IsNotFound(err):
		status = fiber.StatusNotFound
	default:
		s.logger.Error("Request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  apperrors.GetCode(err),
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   version,
		"uptime":    s.metrics.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	if s.config.Security.AdminPassword == "" {
		return c.Status(400).JSON(fiber.Map{"error": "authentication is not enabled"})
	}

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.config.Security.AdminPassword)) != 1 {
		return c.Status(401).JSON(fiber.Map{"error": "invalid password"})
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(7 * 24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	return c.JSON(fiber.Map{"token": tokenString})
}

// ==================== Medications ====================

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	return c.JSON(s.tracker.ListMedications())
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.tracker.GetMedication(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleAddMedication(c *fiber.Ctx) error {
	var draft health.Draft
	if err := c.BodyParser(&draft); err != nil {
		return s.fail(c, apperrors.Validation("invalid request body: %v", err))
	}
	if draft.StartDate.IsZero() {
		draft.StartDate = health.DateOf(s.tracker.Now())
	}

	med, err := s.tracker.AddMedication(c.UserContext(), draft)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(med)
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	if err := s.tracker.DeleteMedication(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMarkTaken(c *fiber.Ctx) error {
	var req markTakenRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, apperrors.Validation("invalid request body: %v", err))
	}

	event, err := s.tracker.MarkTaken(c.UserContext(), c.Params("id"), req.ScheduledTime)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(event)
}

// ==================== Adherence ====================

func (s *Server) nextDose(now time.Time) *nextDoseResponse {
	next, ok := s.tracker.NextDose(now)
	if !ok {
		return nil
	}
	return &nextDoseResponse{UpcomingDose: next, In: health.FormatTimeUntil(next.At, now)}
}

func (s *Server) handleReminders(c *fiber.Ctx) error {
	now := s.tracker.Now()
	reminders := s.tracker.TodaysReminders(now)
	if reminders == nil {
		reminders = []health.Reminder{}
	}
	return c.JSON(remindersResponse{
		Date:      health.DateOf(now),
		Reminders: reminders,
		NextDose:  s.nextDose(now),
	})
}

func (s *Server) handleAdherence(c *fiber.Ctx) error {
	window := c.QueryInt("window", s.config.Tracker.AdherenceWindowDays)
	if err := health.ValidateRange("window", window); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(adherenceResponse{
		WindowDays: window,
		Rate:       s.tracker.AdherenceRateWindow(s.tracker.Now(), window),
	})
}

func (s *Server) handleStreak(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"streak": s.tracker.Streak()})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	days := c.QueryInt("days", s.config.Tracker.HistoryDays)
	if err := health.ValidateRange("days", days); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.tracker.Progress(s.tracker.Now(), days))
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	now := s.tracker.Now()
	reminders := s.tracker.TodaysReminders(now)

	overdue := 0
	for _, r := range reminders {
		if r.IsOverdue {
			overdue++
		}
	}

	records := s.tracker.ActiveInteractions(now)
	if records == nil {
		records = []interactions.Record{}
	}

	return c.JSON(summaryResponse{
		Date:         health.DateOf(now),
		Medications:  len(s.tracker.ListMedications()),
		DueToday:     len(reminders),
		Overdue:      overdue,
		Adherence:    s.tracker.AdherenceRate(now),
		Streak:       s.tracker.Streak(),
		NextDose:     s.nextDose(now),
		Interactions: records,
		GeneratedAt:  now,
	})
}

// handleInteractions checks today's active medications, or every stored
// medication with ?scope=all.
func (s *Server) handleInteractions(c *fiber.Ctx) error {
	var records []interactions.Record
	switch scope := c.Query("scope", "active"); scope {
	case "active":
		records = s.tracker.ActiveInteractions(s.tracker.Now())
	case "all":
		records = s.tracker.Interactions(s.tracker.ListMedications())
	default:
		return s.fail(c, apperrors.Validation("unknown scope %q", scope))
	}
	if records == nil {
		records = []interactions.Record{}
	}
	return c.JSON(records)
}

// ==================== Notifications ====================

func (s *Server) handleListNotifications(c *fiber.Ctx) error {
	return c.JSON(s.tracker.Notifications())
}

func (s *Server) handleAddNotification(c *fiber.Ctx) error {
	var req notificationRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, apperrors.Validation("invalid request body: %v", err))
	}

	n, err := s.tracker.AddNotification(c.UserContext(), req.Type, req.Message)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

func (s *Server) handleClearNotification(c *fiber.Ctx) error {
	if err := s.tracker.ClearNotification(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
