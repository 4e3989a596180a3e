// Package api provides HTTP handlers for the designdesk API.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/designdesk/designdesk/internal/hub"
	"github.com/designdesk/designdesk/internal/identity"
	"github.com/designdesk/designdesk/internal/persona"
	"github.com/designdesk/designdesk/internal/shared"
	"github.com/designdesk/designdesk/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	hub          *hub.Hub
	repo         store.Repository
	personas     *persona.Catalog
	keywordLimit int
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(h *hub.Hub, repo store.Repository, personas *persona.Catalog, keywordLimit int) *Handler {
	if personas == nil {
		personas = persona.Default()
	}
	return &Handler{
		hub:          h,
		repo:         repo,
		personas:     personas,
		keywordLimit: keywordLimit,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// rejected writes the response for an error that stopped an operation before
// it changed any state. It reports false when err is nil or is an outcome the
// caller should render as state instead.
func rejected(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	var e *shared.Error
	switch {
	case errors.Is(err, shared.ErrPending):
		Error(w, http.StatusConflict, "request_in_flight")
	case errors.As(err, &e) && e.Kind == shared.KindValidation:
		Error(w, http.StatusBadRequest, e.Message)
	case errors.As(err, &e):
		return false
	default:
		slog.Error("Unclassified engine error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
	return true
}

// outcomeOf returns err as a renderable outcome, or nil.
func outcomeOf(err error) *shared.Error {
	var e *shared.Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// workspace returns the caller's tab workspace, creating it on first mount.
func (h *Handler) workspace(w http.ResponseWriter, r *http.Request) (*hub.Workspace, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	ws, err := h.hub.Get(userID, identity.SessionIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, hub.ErrClosed) {
			Error(w, http.StatusServiceUnavailable, "shutting_down")
			return nil, false
		}
		slog.Error("Failed to open workspace", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to open workspace")
		return nil, false
	}
	return ws, true
}
