package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/designdesk/designdesk/internal/chat"
	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/hub"
	"github.com/designdesk/designdesk/internal/shared"
)

// ChatHandler exposes the scenario and chatbot sessions of a tab.
type ChatHandler struct {
	*Handler
	limiter *RateLimiter
}

// NewChatHandler creates a chat handler. Sends go through limiter when set.
func NewChatHandler(base *Handler, limiter *RateLimiter) *ChatHandler {
	return &ChatHandler{Handler: base, limiter: limiter}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat/{surface}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/hydrate", h.Hydrate)
		r.Post("/clear", h.Clear)
		r.Post("/persona", h.SelectPersona)
		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			r.Post("/messages", h.Send)
		})
	})
}

type chatResponse struct {
	Session chat.Snapshot    `json:"session"`
	Groups  []chat.DateGroup `json:"groups"`
	Reply   *domain.Message  `json:"reply,omitempty"`
	Error   *shared.Error    `json:"error,omitempty"`
}

type sendRequest struct {
	Text    string `json:"text"`
	Persona string `json:"persona"`
}

type personaRequest struct {
	Persona string `json:"persona"`
}

func (h *ChatHandler) session(w http.ResponseWriter, r *http.Request) (*hub.Workspace, *chat.Session, bool) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return nil, nil, false
	}
	s, ok := ws.Chat(chi.URLParam(r, "surface"))
	if !ok {
		Error(w, http.StatusNotFound, "unknown chat surface")
		return nil, nil, false
	}
	return ws, s, true
}

// location resolves the ?tz= query parameter used for date grouping.
func location(w http.ResponseWriter, r *http.Request) (*time.Location, bool) {
	name := r.URL.Query().Get("tz")
	if name == "" {
		return time.Local, true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		Error(w, http.StatusBadRequest, "unknown time zone")
		return nil, false
	}
	return loc, true
}

func (h *ChatHandler) respond(w http.ResponseWriter, r *http.Request, s *chat.Session, reply *domain.Message, outcome *shared.Error) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	snap := s.Snapshot()
	JSON(w, http.StatusOK, chatResponse{
		Session: snap,
		Groups:  slices.Collect(chat.GroupByDate(snap.Messages, loc)),
		Reply:   reply,
		Error:   outcome,
	})
}

// Get returns the session snapshot grouped by calendar date.
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, s, nil, nil)
}

// Hydrate loads the persisted history once. A failed load is reported in the
// body with the unchanged session.
func (h *ChatHandler) Hydrate(w http.ResponseWriter, r *http.Request) {
	ws, s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := ws.Bind(r.Context())
	defer cancel()

	err := s.Hydrate(ctx)
	if err != nil {
		slog.Warn("Chat hydration failed", "surface", s.Surface(), "error", err)
	}
	h.respond(w, r, s, nil, outcomeOf(err))
}

// Send posts a message and returns the session with the assistant reply.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ws, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Persona != "" && !h.personas.Known(req.Persona) {
		Error(w, http.StatusBadRequest, "unknown persona")
		return
	}

	ctx, cancel := ws.Bind(r.Context())
	defer cancel()

	reply, err := s.Send(ctx, req.Text, req.Persona)
	if rejected(w, err) {
		return
	}
	h.respond(w, r, s, &reply, nil)
}

// Clear deletes the remote history. The local log is emptied only when the
// backend confirmed; otherwise the failure is reported in the body.
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ws, s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := ws.Bind(r.Context())
	defer cancel()

	err := s.Clear(ctx)
	if rejected(w, err) {
		return
	}
	h.respond(w, r, s, nil, outcomeOf(err))
}

// SelectPersona sets the persona used by sends that name none.
func (h *ChatHandler) SelectPersona(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req personaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if rejected(w, s.SelectPersona(req.Persona)) {
		return
	}
	h.respond(w, r, s, nil, nil)
}
