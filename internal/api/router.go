package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiprep/lexiprep/internal/database"
	mw "github.com/lexiprep/lexiprep/internal/middleware"
	inats "github.com/lexiprep/lexiprep/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// AI handlers
	EnhanceVocab     http.HandlerFunc
	PracticeFeedback http.HandlerFunc
	Suggestions      http.HandlerFunc
	UsageStats       http.HandlerFunc

	// Admin handlers
	ListUsers          http.HandlerFunc
	UpdateSubscription http.HandlerFunc
	UserAIUsage        http.HandlerFunc
	SystemStats        http.HandlerFunc

	// Middleware
	AuthMiddleware  func(http.Handler) http.Handler
	QuotaGate       func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public) — optionally rate-limited
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// AI routes. The quota gate consumes one unit per request before
		// the handler runs; usage-stats is read-only and not gated.
		r.Route("/ai", func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/usage-stats", h.UsageStats)

			r.Group(func(r chi.Router) {
				r.Use(h.QuotaGate)
				r.Post("/enhance-vocab", h.EnhanceVocab)
				r.Post("/practice-feedback", h.PracticeFeedback)
				r.Post("/suggestions", h.Suggestions)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Use(h.AdminMiddleware)

			r.Get("/users", h.ListUsers)
			r.Patch("/users/{id}/subscription", h.UpdateSubscription)
			r.Get("/users/{id}/ai-usage", h.UserAIUsage)
			r.Get("/ai-stats", h.SystemStats)
		})
	})

	return r
}
