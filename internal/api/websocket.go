package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/designdesk/designdesk/internal/chat"
	"github.com/designdesk/designdesk/internal/hub"
	"github.com/designdesk/designdesk/internal/identity"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// StateSocket streams a tab's engine change events over a WebSocket.
type StateSocket struct {
	*Handler
	allowedOrigin string
	isDev         bool
}

// NewStateSocket creates the state stream handler.
func NewStateSocket(base *Handler, allowedOrigin string, isDev bool) *StateSocket {
	return &StateSocket{Handler: base, allowedOrigin: allowedOrigin, isDev: isDev}
}

// wsMessage is a client-to-server control message.
type wsMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade. The stream opens
// with the full state of every engine, then carries each change as it
// happens. It ends when the client disconnects or the workspace is destroyed.
func (h *StateSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	events, unsubscribe := ws.Subscribe()
	defer unsubscribe()

	// Workspace teardown arrives as a closed event on the subscription.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		h.readLoop(ctx, conn, userID)
	}()

	for _, ev := range initialEvents(ws) {
		if err := writeEvent(ctx, conn, ev); err != nil {
			return
		}
	}
	h.writeLoop(ctx, conn, events, userID)
	slog.Info("State stream ended", "user_id", userID, "session_id", sessionID)
}

func initialEvents(ws *hub.Workspace) []hub.Event {
	scenario := ws.Scenario.Snapshot()
	chatbot := ws.Chatbot.Snapshot()
	st := ws.Review.State()
	return []hub.Event{
		{Type: hub.EventChat, Surface: chat.SurfaceScenario, Chat: &scenario},
		{Type: hub.EventChat, Surface: chat.SurfaceChatbot, Chat: &chatbot},
		{Type: hub.EventReview, Review: &st},
	}
}

func (h *StateSocket) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan hub.Event, userID string) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				slog.Debug("WebSocket write error", "error", err, "user_id", userID)
				return
			}
			if ev.Type == hub.EventClosed {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Debug("WebSocket ping failed", "error", err, "user_id", userID)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop consumes client control messages so pings and close frames are
// processed.
func (h *StateSocket) readLoop(ctx context.Context, conn *websocket.Conn, userID string) {
	for {
		var msg wsMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Debug("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}
		if msg.Type == "ping" {
			if err := writeEvent(ctx, conn, map[string]string{"type": "pong"}); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func (h *StateSocket) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
