package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	services *routes.Services
	closer   io.Closer
	logger   *slog.Logger
	stop     context.CancelFunc
	sweepCtx context.Context
	sweep    sync.Once
	done     chan struct{}
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db and cache may be nil in development; in-memory stores are used instead.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler(logger),
	})

	var (
		notifier notification.Notifier
		closer   io.Closer
	)
	if len(cfg.KafkaBrokers) > 0 {
		kn := notification.NewKafkaNotifier(notification.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		notifier, closer = kn, kn
	}

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Notifier: notifier, Logger: logger}
	services, err := routes.NewServices(deps)
	if err != nil {
		return nil, err
	}
	if err := routes.Setup(app, deps, services); err != nil {
		return nil, err
	}

	sweepCtx, stop := context.WithCancel(context.Background())
	return &Server{
		app:      app,
		cfg:      cfg,
		services: services,
		closer:   closer,
		logger:   logger,
		stop:     stop,
		sweepCtx: sweepCtx,
		done:     make(chan struct{}),
	}, nil
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the pending-row sweeper and the HTTP server.
func (s *Server) Listen() error {
	s.startSweeper()
	return s.app.Listen(s.cfg.Address())
}

// startSweeper runs the sweeper at most once. It does nothing after Shutdown.
func (s *Server) startSweeper() {
	s.sweep.Do(func() {
		go func() {
			defer close(s.done)
			s.services.Sweeper.Run(s.sweepCtx)
		}()
	})
}

// Shutdown gracefully stops the HTTP server, the sweeper and the notifier.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.stop()
	// Close done ourselves when the sweeper never started.
	s.sweep.Do(func() { close(s.done) })
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil {
			s.logger.Warn("close notifier", "error", cerr)
		}
	}
	return err
}

// ErrorHandler renders every handler error as {"error", "code"}. Domain
// errors are mapped through apperr; server faults are logged.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := apperr.HTTPStatus(err)
		code := apperr.CodeOf(err)
		msg := err.Error()

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			code = codeForStatus(fe.Code)
			msg = fe.Message
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("request_id", middleware.RequestIDOf(c)),
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.String("error", err.Error()),
			)
			if apperr.KindOf(err) == apperr.KindInternal && fe == nil {
				msg = "internal server error"
			}
		}
		return c.Status(status).JSON(fiber.Map{"error": msg, "code": code})
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		if status >= http.StatusInternalServerError {
			return "internal"
		}
		return "error"
	}
}
