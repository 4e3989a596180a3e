package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/hub"
	"github.com/designdesk/designdesk/internal/identity"
	"github.com/designdesk/designdesk/internal/review"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// ReviewHandler exposes the review workflow of a tab.
type ReviewHandler struct {
	*Handler
	limiter *RateLimiter
}

// NewReviewHandler creates a review handler. Analyses go through limiter
// when set.
func NewReviewHandler(base *Handler, limiter *RateLimiter) *ReviewHandler {
	return &ReviewHandler{Handler: base, limiter: limiter}
}

// RegisterRoutes registers review routes.
func (h *ReviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/review", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/runs", h.Runs)
		r.Post("/search", h.Search)
		r.Post("/select", h.Select)
		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			r.Post("/fetch", h.Fetch)
			r.Post("/analyze", h.Analyze)
		})
	})
}

type reviewResponse struct {
	State review.State `json:"state"`
	View  *review.View `json:"view,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
}

// selectRequest names a game by id from the current results, or carries the
// full game when the client has it.
type selectRequest struct {
	AppID int64                `json:"app_id"`
	Game  *domain.SearchResult `json:"game"`
}

type fetchRequest struct {
	Options domain.FetchOptions `json:"options"`
}

type analyzeRequest struct {
	Settings domain.AnalysisSettings `json:"settings"`
}

func (h *ReviewHandler) respond(w http.ResponseWriter, ws *hub.Workspace) {
	st := ws.Review.State()
	JSON(w, http.StatusOK, reviewResponse{
		State: st,
		View:  review.BuildView(st, h.keywordLimit),
	})
}

// run executes op against the tab's workflow, bound to both the request and
// the workspace lifetime, and responds with the resulting state.
func (h *ReviewHandler) run(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, wf *review.Workflow) error) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	ctx, cancel := ws.Bind(r.Context())
	defer cancel()

	if rejected(w, op(ctx, ws.Review)) {
		return
	}
	h.respond(w, ws)
}

// Get returns the workflow state and its view-model.
func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	h.respond(w, ws)
}

// Search looks up games by name.
func (h *ReviewHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, wf *review.Workflow) error {
		return wf.Search(ctx, req.Query)
	})
}

// Select picks the game to analyze.
func (h *ReviewHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.run(w, r, func(_ context.Context, wf *review.Workflow) error {
		if req.Game != nil {
			return wf.SelectGame(*req.Game)
		}
		return wf.SelectByID(req.AppID)
	})
}

// Fetch loads a raw review preview for the selected game.
func (h *ReviewHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, wf *review.Workflow) error {
		return wf.FetchReviews(ctx, req.Options)
	})
}

// Analyze runs an analysis of the selected game.
func (h *ReviewHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	req := analyzeRequest{Settings: domain.DefaultAnalysisSettings()}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, wf *review.Workflow) error {
		return wf.Analyze(ctx, req.Settings)
	})
}

// Runs lists the device's recent analyses, newest first.
func (h *ReviewHandler) Runs(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.repo.ListAnalyses(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to list analysis runs", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	if runs == nil {
		runs = []*domain.AnalysisRun{}
	}
	JSON(w, http.StatusOK, map[string]any{"runs": runs})
}
