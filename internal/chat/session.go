// Package chat implements the conversational session engine shared by the
// scenario assistant and the persona chatbot.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/metrics"
	"github.com/designdesk/designdesk/internal/persona"
	"github.com/designdesk/designdesk/internal/shared"
	"github.com/oklog/ulid/v2"
)

// Surface identifiers.
const (
	SurfaceScenario = "scenario"
	SurfaceChatbot  = "chatbot"
)

const unknownError = "unknown error"

// Backend is the slice of the transport client a session needs.
type Backend interface {
	Send(ctx context.Context, text, persona string) (*domain.ChatReply, error)
	History(ctx context.Context) (*domain.HistoryReply, error)
	Clear(ctx context.Context) (*domain.ClearReply, error)
}

// Config configures a Session.
type Config struct {
	Surface  string
	Backend  Backend
	Personas *persona.Catalog
	// DefaultPersona is the tag used when a send names no persona and for
	// history entries that carry none. Empty means the catalog fallback.
	DefaultPersona string
	UserID         string
	SessionID      string
	Log            ConversationLogger
	Logger         *slog.Logger
	// OnChange is called after every state mutation, outside the lock.
	OnChange func(Snapshot)
	Now      func() time.Time
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	Surface  string           `json:"surface"`
	Messages []domain.Message `json:"messages"`
	Pending  bool             `json:"pending"`
	Hydrated bool             `json:"hydrated"`
	Persona  string           `json:"persona"`
}

// Session is one surface's ordered message log. Messages are append-only and
// every accepted send appends exactly one user message followed by exactly one
// assistant message.
type Session struct {
	surface   string
	backend   Backend
	personas  *persona.Catalog
	fallback  string
	userID    string
	sessionID string
	log       ConversationLogger
	logger    *slog.Logger
	onChange  func(Snapshot)
	now       func() time.Time

	mu       sync.Mutex
	messages []domain.Message
	pending  bool
	hydrated bool
	selected string
	// clearing is set while a remote clear is in flight; sends are refused.
	clearing bool
	// generation counts successful clears. A history load started in an
	// older generation is discarded.
	generation uint64
}

// NewSession creates a session for cfg.Surface.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Surface == "" {
		return nil, errors.New("chat: surface is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("chat %s: backend is required", cfg.Surface)
	}
	if cfg.Personas == nil {
		cfg.Personas = persona.Default()
	}
	if cfg.DefaultPersona == "" {
		cfg.DefaultPersona = cfg.Personas.Fallback().Tag
	}
	if cfg.Log == nil {
		cfg.Log = NoopConversationLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Session{
		surface:   cfg.Surface,
		backend:   cfg.Backend,
		personas:  cfg.Personas,
		fallback:  cfg.Personas.Fallback().Tag,
		userID:    cfg.UserID,
		sessionID: cfg.SessionID,
		log:       cfg.Log,
		logger:    cfg.Logger.With("surface", cfg.Surface, "user_id", cfg.UserID, "session_id", cfg.SessionID),
		onChange:  cfg.OnChange,
		now:       cfg.Now,
		selected:  cfg.DefaultPersona,
	}, nil
}

// Surface returns the surface identifier.
func (s *Session) Surface() string { return s.surface }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		Surface:  s.surface,
		Messages: msgs,
		Pending:  s.pending,
		Hydrated: s.hydrated,
		Persona:  s.selected,
	}
}

// update runs fn under the lock and then publishes the new snapshot.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(snap)
	}
}

// SelectPersona sets the persona used by sends that name none.
func (s *Session) SelectPersona(tag string) error {
	if !s.personas.Known(tag) {
		return shared.Validation(fmt.Sprintf("unknown persona %q", tag))
	}
	s.update(func() { s.selected = tag })
	return nil
}

// Hydrate loads the persisted history once. A failure leaves the log as it
// is and is only logged; the returned error is informational.
func (s *Session) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return nil
	}
	s.hydrated = true
	gen := s.generation
	s.mu.Unlock()

	reply, err := s.backend.History(ctx)
	if err != nil {
		s.logger.Warn("Failed to load chat history", "error", err)
		s.update(func() {})
		return err
	}
	if !reply.Success.OK() {
		appErr := shared.Application(reply.Error, "failed to load history")
		s.logger.Warn("Backend rejected history request", "error", appErr.Message)
		s.update(func() {})
		return appErr
	}

	loadedAt := s.now()
	restored := make([]domain.Message, 0, len(reply.History))
	for _, entry := range reply.History {
		restored = append(restored, s.fromHistory(entry, loadedAt))
	}

	stale := false
	s.update(func() {
		if s.generation != gen {
			stale = true
			return
		}
		// Anything sent while history was loading stays after it.
		s.messages = append(restored, s.messages...)
	})
	if stale {
		s.logger.Debug("Discarding history loaded before a clear", "messages", len(restored))
		return nil
	}
	s.logger.Debug("Chat history loaded", "messages", len(restored))
	return nil
}

func (s *Session) fromHistory(entry domain.HistoryEntry, loadedAt time.Time) domain.Message {
	msg := domain.Message{
		ID:        ulid.Make().String(),
		Role:      entry.Role,
		Content:   entry.Content,
		Timestamp: parseHistoryTime(entry.Timestamp, loadedAt),
	}
	if msg.Role != domain.RoleUser {
		msg.Role = domain.RoleAssistant
		msg.PersonaTag = entry.DesignerType
		if msg.PersonaTag == "" {
			msg.PersonaTag = s.defaultPersona()
		}
	}
	return msg
}

var historyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseHistoryTime(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	for _, layout := range historyTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return fallback
}

func (s *Session) defaultPersona() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Send posts text as personaTag (or the selected persona when empty). It
// returns a validation error or ErrPending without touching the log or the
// network; otherwise it returns the assistant message that was appended.
func (s *Session) Send(ctx context.Context, text, personaTag string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, shared.Validation("message is empty")
	}

	s.mu.Lock()
	if s.pending || s.clearing {
		s.mu.Unlock()
		return domain.Message{}, shared.ErrPending
	}
	if personaTag == "" {
		personaTag = s.selected
	}
	userMsg := domain.Message{
		ID:        ulid.Make().String(),
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: s.now(),
	}
	s.messages = append(s.messages, userMsg)
	s.pending = true
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(snap)
	}

	defer s.update(func() { s.pending = false })

	s.logEvent("outbound", "chat_user_message", text, map[string]any{"persona": personaTag})

	reply, err := s.call(ctx, text, personaTag)
	assistant, outcome := s.reconcile(reply, err, personaTag)

	s.mu.Lock()
	s.messages = append(s.messages, assistant)
	s.mu.Unlock()

	metrics.ChatSend(s.surface, string(outcome))
	s.logEvent("inbound", "chat_assistant_message", assistant.Content, map[string]any{
		"persona": assistant.PersonaTag,
		"outcome": outcome,
	})
	return assistant, nil
}

// call invokes the backend, converting a panic into a transport failure so
// the user message is still answered.
func (s *Session) call(ctx context.Context, text, personaTag string) (reply *domain.ChatReply, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Chat backend panicked", "panic", r)
			reply, err = nil, shared.Transport(fmt.Sprint(r), nil)
		}
	}()
	return s.backend.Send(ctx, text, personaTag)
}

// reconcile turns a backend outcome into the assistant message to append.
func (s *Session) reconcile(reply *domain.ChatReply, err error, requested string) (domain.Message, shared.Kind) {
	msg := domain.Message{
		ID:        ulid.Make().String(),
		Role:      domain.RoleAssistant,
		Timestamp: s.now(),
	}

	switch {
	case err != nil || reply == nil:
		// No persona answered, so the fallback persona speaks.
		if err == nil {
			err = shared.Transport("empty response", nil)
		}
		s.logger.Warn("Chat send failed", "error", err)
		msg.Content = "Connection error: " + errorText(err)
		msg.PersonaTag = s.fallback
		return msg, shared.KindTransport

	case !reply.Success.OK():
		text := reply.Error
		if text == "" {
			text = unknownError
		}
		msg.Content = "An error occurred: " + text
		msg.PersonaTag = requested
		return msg, shared.KindApplication

	default:
		msg.Content = reply.Message
		msg.PersonaTag = reply.DesignerType
		if msg.PersonaTag == "" {
			msg.PersonaTag = requested
		}
		return msg, "success"
	}
}

func errorText(err error) string {
	var e *shared.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// Clear deletes the remote history and then empties the local log. On
// failure the log is left untouched and the error is returned. Sends are
// refused with ErrPending until the remote call settles.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.pending || s.clearing {
		s.mu.Unlock()
		return shared.ErrPending
	}
	s.clearing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.clearing = false
		s.mu.Unlock()
	}()

	reply, err := s.backend.Clear(ctx)
	if err != nil {
		s.logger.Warn("Failed to clear chat history", "error", err)
		return err
	}
	if !reply.Success.OK() {
		appErr := shared.Application(reply.Error, "failed to clear history")
		s.logger.Warn("Backend rejected history clear", "error", appErr.Message)
		return appErr
	}

	s.update(func() {
		s.messages = nil
		s.generation++
	})
	s.logEvent("outbound", "chat_cleared", "", nil)
	return nil
}

func (s *Session) logEvent(direction, eventType, content string, meta map[string]any) {
	s.log.Log(ConversationLogEvent{
		Timestamp:  s.now().UTC().Format(time.RFC3339Nano),
		UserID:     s.userID,
		SessionID:  s.sessionID,
		Channel:    s.surface,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
