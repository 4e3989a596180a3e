package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/designdesk/designdesk/internal/config"
	"github.com/designdesk/designdesk/internal/hub"
	"github.com/designdesk/designdesk/internal/identity"
	"github.com/designdesk/designdesk/internal/middleware"
	"github.com/designdesk/designdesk/internal/persona"
	"github.com/designdesk/designdesk/internal/store"
	"github.com/designdesk/designdesk/web"
)

// RouterDeps are the collaborators of the HTTP surface.
type RouterDeps struct {
	Hub      *hub.Hub
	Repo     store.Repository
	Personas *persona.Catalog
	Config   *config.Config
}

// NewRouter wires every route of the service.
func NewRouter(d RouterDeps) http.Handler {
	cfg := d.Config
	base := NewHandler(d.Hub, d.Repo, d.Personas, cfg.KeywordLimit)
	limiter := NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	allowed := []string{"*"}
	if cfg.FrontendURL != "" {
		allowed = []string{cfg.FrontendURL}
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowed))

	// Public routes.
	r.Handle("/metrics", promhttp.Handler())
	NewHealthHandler(d.Repo).RegisterHealth(r)

	// Everything else is keyed by device and tab.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(d.Repo, cfg.IsDevelopment()))

		NewWorkspaceHandler(base).RegisterRoutes(r)
		NewChatHandler(base, limiter).RegisterRoutes(r)
		NewReviewHandler(base, limiter).RegisterRoutes(r)
		r.Get("/ws/state", NewStateSocket(base, cfg.FrontendURL, cfg.IsDevelopment()).ServeHTTP)
	})

	// Serve the built frontend (SPA catch-all).
	if cfg.StaticDir != "" {
		fsys, err := web.Dir(cfg.StaticDir)
		if err != nil {
			slog.Warn("Frontend directory unusable, not serving it", "dir", cfg.StaticDir, "error", err)
		} else {
			r.Handle("/*", web.SPAHandler(fsys))
		}
	}

	return r
}
