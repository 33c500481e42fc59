package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(s.requestMiddleware())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api", s.rateLimitMiddleware())

	api.Post("/auth/login", s.handleLogin)

	protected := api.Use(s.authMiddleware())

	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleAddMedication)
	protected.Get("/medications/:id", s.handleGetMedication)
	protected.Delete("/medications/:id", s.handleDeleteMedication)
	protected.Post("/medications/:id/taken", s.handleMarkTaken)

	protected.Get("/reminders", s.handleReminders)
	protected.Get("/adherence", s.handleAdherence)
	protected.Get("/streak", s.handleStreak)
	protected.Get("/history", s.handleHistory)
	protected.Get("/summary", s.handleSummary)
	protected.Get("/interactions", s.handleInteractions)

	protected.Get("/notifications", s.handleListNotifications)
	protected.Post("/notifications", s.handleAddNotification)
	protected.Delete("/notifications/:id", s.handleClearNotification)

	s.app.Use("/ws", s.authMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/notifications", websocket.New(s.handleNotificationSocket))
}
