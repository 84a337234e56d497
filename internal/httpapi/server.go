// Package httpapi exposes quiz sessions, balances and the leaderboard over
// HTTP. Every route except the health check needs a bearer token.
package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/content"
	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/orchestrator"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/store"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address. Default: ":8080".
	Addr string `mapstructure:"addr"`

	// JWTSecret signs bearer tokens. Required.
	JWTSecret string `mapstructure:"jwt_secret"`

	// TokenTTL is the lifetime of issued tokens. Default: 24h.
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	// CORSOrigins is a comma separated allow list. Default: "*".
	CORSOrigins string `mapstructure:"cors_origins"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns the standard server settings.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		TokenTTL:     24 * time.Hour,
		CORSOrigins:  "*",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP front of an Orchestrator.
type Server struct {
	app       *fiber.App
	cfg       Config
	orch      *orchestrator.Orchestrator
	tokens    *Tokens
	validator *Validator
	log       logrus.FieldLogger
}

// New builds the server and registers its routes.
func New(cfg Config, orch *orchestrator.Orchestrator, log logrus.FieldLogger) (*Server, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "http")
	d := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = d.Addr
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = d.CORSOrigins
	}
	tokens, err := NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		orch:      orch,
		tokens:    tokens,
		validator: NewValidator(),
		log:       log,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "zapquiz",
		ErrorHandler:          s.handleError,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)
	s.app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST",
		AllowOrigins: cfg.CORSOrigins,
	}))
	s.routes()
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Tokens returns the token issuer.
func (s *Server) Tokens() *Tokens { return s.tokens }

// Listen serves until Shutdown is called.
func (s *Server) Listen() error {
	s.log.WithField("addr", s.cfg.Addr).Info("http server listening")
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return newSuccess(fiber.Map{"open_sessions": s.orch.OpenSessions()}).Send(c)
	})

	api := s.app.Group("/api/v1", s.requireAuth)
	api.Get("/me/balance", s.balance)
	api.Get("/me/history", s.history)
	api.Post("/me/ad-reward", s.claimAdReward)
	api.Get("/leaderboard", s.leaderboard)

	api.Post("/sessions", s.startSession)
	sess := api.Group("/sessions/:id")
	sess.Get("/", s.view)
	sess.Post("/answers", s.submit)
	sess.Post("/advance", s.advance)
	sess.Post("/streak/ack", s.acknowledgeStreak)
	sess.Post("/review-intro/ack", s.acknowledgeReviewIntro)
	sess.Post("/continue", s.continueAfterCelebration)
	sess.Post("/complete", s.complete)
	sess.Post("/hearts/purchase", s.purchaseHeart)
	sess.Post("/hearts/modal-closed", s.heartModalClosed)
	sess.Post("/ad-reward", s.sessionAdReward)
	sess.Post("/dismiss", s.dismiss)
	sess.Get("/exit", s.requestExit)
	sess.Post("/exit", s.exit)
	sess.Post("/reports", s.report)
}

// logRequests logs each request once its final status is known.
func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	s.log.WithFields(logrus.Fields{
		"method":  c.Method(),
		"path":    c.Path(),
		"status":  c.Response().StatusCode(),
		"latency": time.Since(start),
	}).Debug("request")
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fields *FieldsError
	if errors.As(err, &fields) {
		return newFailed(fiber.StatusBadRequest, "validation failed", fields.Fields).Send(c)
	}

	code := statusFor(err)
	switch {
	case code == fiber.StatusServiceUnavailable:
		s.log.WithError(err).WithField("path", c.Path()).Warn("backend unavailable")
		return newFailed(code, "temporarily unavailable, retry", nil).Send(c)
	case code >= fiber.StatusInternalServerError:
		s.log.WithError(err).WithField("path", c.Path()).Error("request failed")
		return newFailed(code, "internal server error", nil).Send(c)
	}
	return newFailed(code, err.Error(), nil).Send(c)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		fe *fiber.Error
		be *quiz.BackendError
	)
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, orchestrator.ErrSessionNotFound),
		errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, content.ErrNotOwner):
		return fiber.StatusForbidden
	case errors.Is(err, orchestrator.ErrUnknownMode),
		errors.Is(err, content.ErrInvalidSource),
		errors.Is(err, content.ErrInvalidReason),
		errors.Is(err, content.ErrQuestionNotInAttempt),
		errors.Is(err, quiz.ErrUnknownQuestion):
		return fiber.StatusBadRequest
	case errors.Is(err, quiz.ErrNoQuestions):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, economy.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, economy.ErrAdLimitReached):
		return fiber.StatusTooManyRequests
	case errors.Is(err, quiz.ErrInvalidTransition),
		errors.Is(err, quiz.ErrNotAnswered),
		errors.Is(err, quiz.ErrAlreadyAnswered),
		errors.Is(err, content.ErrAttemptClosed),
		errors.Is(err, content.ErrWrongKind),
		errors.Is(err, economy.ErrAtCapacity):
		return fiber.StatusConflict
	case errors.As(err, &be):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
