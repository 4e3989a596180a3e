package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/designdesk/designdesk/internal/identity"
	"github.com/designdesk/designdesk/internal/persona"
	"github.com/designdesk/designdesk/internal/store"
)

// WorkspaceHandler handles workspace lifecycle and client configuration.
type WorkspaceHandler struct {
	*Handler
}

// NewWorkspaceHandler creates a workspace handler.
func NewWorkspaceHandler(base *Handler) *WorkspaceHandler {
	return &WorkspaceHandler{Handler: base}
}

// RegisterRoutes registers workspace routes.
func (h *WorkspaceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Delete("/workspace", h.Destroy)
	})
}

// GetMe returns the current device's information.
func (h *WorkspaceHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"user_id":    user.UserID,
		"username":   user.Username,
		"session_id": identity.SessionIDFromContext(r.Context()),
	})
}

type configResponse struct {
	Personas     []persona.Persona `json:"personas"`
	Fallback     string            `json:"fallback_persona"`
	KeywordLimit int               `json:"keyword_limit"`
}

// GetConfig returns the persona catalog and display settings for the frontend.
func (h *WorkspaceHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, configResponse{
		Personas:     h.personas.All(),
		Fallback:     h.personas.Fallback().Tag,
		KeywordLimit: h.keywordLimit,
	})
}

// Destroy tears down the caller's tab workspace on navigation away. It is
// idempotent.
func (h *WorkspaceHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	if !h.hub.Destroy(userID, sessionID) {
		JSON(w, http.StatusOK, map[string]string{"status": "absent"})
		return
	}
	slog.Info("Workspace released by client", "user_id", userID, "session_id", sessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]any{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
