package api

import (
	"context"
	"time"

	"github.com/gmsas95/meditrack/internal/config"
	"github.com/gmsas95/meditrack/internal/metrics"
	"github.com/gmsas95/meditrack/internal/tracker"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const version = "0.1.0"

type Server struct {
	app     *fiber.App
	config  *config.Config
	tracker *tracker.Tracker
	metrics *metrics.Metrics
	logger  *zap.Logger
	limiter *rate.Limiter
	hub     *hub

	unsubscribe func()
}

func New(cfg *config.Config, tr *tracker.Tracker, m *metrics.Metrics, logger *zap.Logger) *Server {
	if m == nil {
		m = metrics.Default()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:     app,
		config:  cfg,
		tracker: tr,
		metrics: m,
		logger:  logger,
		hub:     newHub(),
	}

	if cfg.Server.RateLimit > 0 {
		burst := cfg.Server.RateBurst
		if burst < 1 {
			burst = cfg.Server.RateLimit
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), burst)
	}

	s.unsubscribe = tr.Subscribe(s.hub.broadcast)
	s.setupRoutes()
	return s
}

// App exposes the fiber app, mostly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	addr := s.config.ListenAddr()
	s.logger.Info("API server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
