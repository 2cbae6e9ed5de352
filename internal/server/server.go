// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts the routes and runs the HTTP listener until
// its context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/taskboard/internal/auth"
	"github.com/sakif/taskboard/internal/config"
	"github.com/sakif/taskboard/internal/handler"
	"github.com/sakif/taskboard/internal/middleware"
	"github.com/sakif/taskboard/internal/ratelimit"
	"github.com/sakif/taskboard/internal/repository/sqlstore"
	"github.com/sakif/taskboard/internal/service"
)

// Server owns the router and every long-lived resource behind it.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqlstore.DB
	redis   *redis.Client
	limiter ratelimit.Limiter
}

// Option customises a Server before its routes are mounted.
type Option func(*Server)

// WithLimiter replaces the signup/signin limiter. Passing it enables rate
// limiting even when no Redis address is configured.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// New opens the database (running migrations) and wires the application.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	db, err := sqlstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.limiter == nil && cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			// Not fatal: the limiter fails open.
			logger.Warn("redis unreachable, rate limiting will fail open",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		s.limiter = ratelimit.NewRedisLimiter(s.redis, "taskboard:ratelimit:")
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.AuthSecret)
	if err != nil {
		return err
	}
	passwords, err := auth.NewPasswordServiceWithCost(s.config.BcryptCost)
	if err != nil {
		return err
	}
	gate := auth.NewGate(tokens)

	authService := service.NewAuthService(s.db.Users(), tokens, passwords, s.logger)
	taskService := service.NewTaskService(s.db.Tasks(), s.logger)

	authHandler := handler.NewAuthHandler(authService, s.config.CookieSecure, s.logger)
	taskHandler := handler.NewTaskHandler(taskService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/health", healthHandler.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.limiter != nil {
					r.Use(ratelimit.Middleware(s.limiter, s.config.AuthRateLimit, s.config.AuthRateWindow, s.logger))
				}
				r.Post("/signup", authHandler.HandleSignup)
				r.Post("/signin", authHandler.HandleSignin)
			})
			r.Group(func(r chi.Router) {
				r.Use(gate.RequireAuth)
				r.Post("/signout", authHandler.HandleSignout)
				r.Get("/session", authHandler.HandleSession)
			})
		})

		r.Route("/{userID}/tasks", func(r chi.Router) {
			r.Use(gate.RequireAuth, auth.RequireOwner("userID"))
			r.Get("/", taskHandler.HandleList)
			r.Post("/", taskHandler.HandleCreate)
			r.Get("/{taskID}", taskHandler.HandleGet)
			r.Put("/{taskID}", taskHandler.HandleUpdate)
			r.Patch("/{taskID}/complete", taskHandler.HandleComplete)
			r.Delete("/{taskID}", taskHandler.HandleDelete)
		})
	})

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP on the configured port until ctx is cancelled, then drains
// in-flight requests for at most ShutdownTimeout and releases resources.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", string(s.db.Dialect())),
			slog.Bool("rate_limited", s.limiter != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

// Close releases the database and the Redis client. Safe to call once
// after New succeeds; Run calls it on exit.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}
