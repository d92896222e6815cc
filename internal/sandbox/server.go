// Package sandbox is an in-memory stand-in for the Medpass backend. It speaks
// the same wire contract so the client can be exercised end to end without
// the real service: OTPs are fixed, tokens are opaque uuids and add-money
// orders are captured immediately.
package sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/medpass/medpass/internal/config"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app   *fiber.App
	cfg   config.Config
	cache *redis.Client
	state *State
}

// New instantiates the sandbox and delegates route wiring to Setup.
func New(cfg config.Config, cache *redis.Client, logger *slog.Logger) *Server {
	state := NewState(cfg.SandboxOTP, cfg.OTPTTL)
	app := NewApp(Deps{Cfg: cfg, Cache: cache, Logger: logger, State: state, AccessLog: true})
	return &Server{app: app, cfg: cfg, cache: cache, state: state}
}

// NewApp builds a fully wired Fiber application. Routing is case-sensitive
// because the backend has both /User and /user prefixes.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       d.Cfg.AppName + " sandbox",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		BodyLimit:     8 << 20,
		CaseSensitive: true,
		ErrorHandler:  errorHandler,
	})
	Setup(app, d)
	return app
}

// App exposes the Fiber application, e.g. for app.Test or an adaptor.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
