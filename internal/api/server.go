// Package api provides the HTTP surface of the alrt platform: a chi router
// with the cross-cutting middleware chain (panic recovery, request IDs,
// structured request logging, gzip, Prometheus instrumentation, bearer-token
// auth) and the domain handlers for auth, tracked targets, dashboard, alerts,
// and analytics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"

	"alrt/internal/config"
	"alrt/internal/db"
	"alrt/internal/types"
)

// AuthService resolves credentials and bearer tokens to users.
type AuthService interface {
	Register(ctx context.Context, username, password string) (*types.User, error)
	Login(ctx context.Context, username, password string) (string, *types.User, error)
	Authenticate(ctx context.Context, token string) (*types.User, error)
}

// AccountStore is the tracked-account persistence surface the handlers use.
type AccountStore interface {
	Create(ctx context.Context, userID, handle string) (*types.TrackedAccount, error)
	GetByIDForUser(ctx context.Context, id, userID string) (*types.TrackedAccount, error)
	ListByUser(ctx context.Context, userID string) ([]*types.TrackedAccount, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, id, userID string) error
	UpdateMetadata(ctx context.Context, id, userID string, upd db.MetadataUpdate) error
}

// AlertStore is the inactivity-alert persistence surface the handlers use.
type AlertStore interface {
	ListByUser(ctx context.Context, userID string, includeDismissed bool) ([]*types.InactivityAlert, error)
	MarkRead(ctx context.Context, id, userID string) error
	Dismiss(ctx context.Context, id, userID string) error
}

// AnalyticsStore serves snapshot history and the activity calendar.
type AnalyticsStore interface {
	ListSnapshots(ctx context.Context, accountID string, limit int) ([]*types.AnalyticsSnapshot, error)
	ListCalendar(ctx context.Context, accountID string, from, to time.Time) ([]*types.ActivityCalendarEntry, error)
}

// TaskScheduler accepts refresh work and reports queue depths.
type TaskScheduler interface {
	EnqueueProfileRefresh(ctx context.Context, account *types.TrackedAccount) error
	EnqueueAdsCheck(ctx context.Context, account *types.TrackedAccount) error
	GetQueueDepths() map[types.TaskKind]int
}

// HTTPMetrics instruments the handler chain. Implemented by the Prometheus
// collector; nil disables instrumentation.
type HTTPMetrics interface {
	InstrumentHandler(routePattern func(r *http.Request) string, next http.Handler) http.Handler
	Handler() http.Handler
}

// HealthPinger reports whether a critical dependency is reachable.
type HealthPinger interface {
	Ping(ctx context.Context) error
}

// Server wires the middleware chain and domain handlers onto a chi router.
type Server struct {
	plans     config.PlanConfig
	auth      AuthService
	accounts  AccountStore
	alerts    AlertStore
	analytics AnalyticsStore
	scheduler TaskScheduler
	metrics   HTTPMetrics
	health    HealthPinger
	clock     types.Clock
	logger    *slog.Logger

	router *chi.Mux
}

// ServerConfig holds the dependencies for creating a Server.
type ServerConfig struct {
	Plans     config.PlanConfig
	Auth      AuthService
	Accounts  AccountStore
	Alerts    AlertStore
	Analytics AnalyticsStore
	Scheduler TaskScheduler
	Metrics   HTTPMetrics
	Health    HealthPinger
	Clock     types.Clock
	Logger    *slog.Logger
}

// NewServer creates a Server and mounts all routes.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	s := &Server{
		plans:     cfg.Plans,
		auth:      cfg.Auth,
		accounts:  cfg.Accounts,
		alerts:    cfg.Alerts,
		analytics: cfg.Analytics,
		scheduler: cfg.Scheduler,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
		clock:     clock,
		logger:    logger,
		router:    chi.NewRouter(),
	}
	s.mountRoutes()
	return s
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// mountRoutes registers the global middleware chain and all endpoints.
// Middleware order matters: Recoverer is outermost so panics anywhere in the
// chain produce a clean 500, and metrics wrap the routed handlers so the chi
// route pattern is available as the path label.
func (s *Server) mountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(s.instrument)
	s.router.Use(func(next http.Handler) http.Handler {
		return gzhttp.GzipHandler(next)
	})

	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/token", s.handleToken)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		r.Get("/api/me", s.handleMe)

		r.Route("/targets", func(r chi.Router) {
			r.Post("/", s.handleCreateTarget)
			r.Post("/bulk", s.handleBulkImport)
			r.Get("/", s.handleListTargets)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTarget)
				r.Delete("/", s.handleDeleteTarget)
				r.Patch("/", s.handleUpdateTarget)
				r.Post("/refresh", s.handleRefreshTarget)
				r.Post("/ads-check", s.handleAdsCheck)
				r.Get("/calendar", s.handleCalendar)
				r.Get("/analytics", s.handleAnalytics)
			})
		})

		r.Get("/dashboard", s.handleDashboard)
		r.Get("/queue", s.handleQueueDepths)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/{id}/read", s.handleReadAlert)
			r.Post("/{id}/dismiss", s.handleDismissAlert)
		})
	})
}

// instrument wraps the chain in the Prometheus HTTP middleware. The route
// pattern resolver runs after routing, so chi has filled in the pattern by
// the time the label is read.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return s.metrics.InstrumentHandler(func(r *http.Request) string {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				return p
			}
		}
		return r.URL.Path
	}, next)
}

// handleHealth reports process liveness and database reachability. It is
// public and unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			JSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": err.Error(),
			})
			return
		}
	}
	JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
