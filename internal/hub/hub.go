// Package hub owns the per-tab workspaces. A workspace bundles the scenario
// session, the chatbot session and the review workflow of one browser tab and
// fans their change events out to subscribers.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/designdesk/designdesk/internal/chat"
	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/metrics"
	"github.com/designdesk/designdesk/internal/persona"
	"github.com/designdesk/designdesk/internal/review"
	"github.com/designdesk/designdesk/internal/store"
	"github.com/designdesk/designdesk/internal/transport"
)

// ErrClosed is returned when the hub has been shut down.
var ErrClosed = errors.New("hub closed")

// Backends are the backend adapters of one device.
type Backends struct {
	Scenario chat.Backend
	Chatbot  chat.Backend
	Review   review.Backend
}

// PoolBackends returns a Backends factory that gives every device its own
// pooled client, so its backend session survives tab reloads.
func PoolBackends(pool *transport.Pool) func(userID string) Backends {
	return func(userID string) Backends {
		client := pool.For(userID)
		return Backends{
			Scenario: transport.ScenarioBackend{Client: client},
			Chatbot:  transport.ChatbotBackend{Client: client},
			Review:   client,
		}
	}
}

// Config configures a Hub.
type Config struct {
	// Backends builds the adapters for a device. Defaults to PoolBackends(Pool).
	Backends func(userID string) Backends
	Pool     *transport.Pool
	Repo     store.Repository
	Personas *persona.Catalog
	ConvLog  chat.ConversationLogger
	Logger   *slog.Logger

	WorkspaceTTL      time.Duration
	DeviceTTL         time.Duration
	AnalysisRetention time.Duration
	// SubscriberBuffer is the event queue length per subscriber.
	SubscriberBuffer int
	Now              func() time.Time
}

// Hub indexes workspaces by device and tab.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	workspaces map[string]map[string]*Workspace
	closed     bool
}

// New creates a hub.
func New(cfg Config) (*Hub, error) {
	if cfg.Backends == nil {
		if cfg.Pool == nil {
			return nil, errors.New("hub: backends or pool is required")
		}
		cfg.Backends = PoolBackends(cfg.Pool)
	}
	if cfg.Personas == nil {
		cfg.Personas = persona.Default()
	}
	if cfg.ConvLog == nil {
		cfg.ConvLog = chat.NoopConversationLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WorkspaceTTL <= 0 {
		cfg.WorkspaceTTL = time.Hour
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 16
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hub{
		cfg:        cfg,
		logger:     cfg.Logger,
		workspaces: make(map[string]map[string]*Workspace),
	}, nil
}

// Get returns the workspace for userID/sessionID, creating it on first use.
// Every call counts as activity for the idle TTL.
func (h *Hub) Get(userID, sessionID string) (*Workspace, error) {
	now := h.cfg.Now()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if ws, ok := h.workspaces[userID][sessionID]; ok {
		h.mu.Unlock()
		ws.touch(now)
		if h.cfg.Pool != nil {
			h.cfg.Pool.For(userID)
		}
		return ws, nil
	}

	ws, err := h.newWorkspace(userID, sessionID, now)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	if _, ok := h.workspaces[userID]; !ok {
		h.workspaces[userID] = make(map[string]*Workspace)
	}
	h.workspaces[userID][sessionID] = ws
	n := h.countLocked()
	h.mu.Unlock()

	metrics.SetWorkspaces(n)
	h.logger.Info("Workspace created", "user_id", userID, "session_id", sessionID)
	return ws, nil
}

// Lookup returns an existing workspace without creating one.
func (h *Hub) Lookup(userID, sessionID string) (*Workspace, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ws, ok := h.workspaces[userID][sessionID]
	return ws, ok
}

// Destroy tears down the workspace of a tab. It reports whether one existed.
func (h *Hub) Destroy(userID, sessionID string) bool {
	h.mu.Lock()
	ws, ok := h.workspaces[userID][sessionID]
	if ok {
		h.removeLocked(userID, sessionID)
	}
	n := h.countLocked()
	h.mu.Unlock()

	if !ok {
		return false
	}
	ws.close()
	metrics.SetWorkspaces(n)
	h.logger.Info("Workspace destroyed", "user_id", userID, "session_id", sessionID)
	return true
}

// Len returns the number of live workspaces.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countLocked()
}

// Close destroys every workspace and rejects further Get calls.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Workspace
	for _, sessions := range h.workspaces {
		for _, ws := range sessions {
			all = append(all, ws)
		}
	}
	h.workspaces = make(map[string]map[string]*Workspace)
	h.mu.Unlock()

	for _, ws := range all {
		ws.close()
	}
	metrics.SetWorkspaces(0)
}

func (h *Hub) removeLocked(userID, sessionID string) {
	sessions := h.workspaces[userID]
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(h.workspaces, userID)
	}
}

func (h *Hub) countLocked() int {
	n := 0
	for _, sessions := range h.workspaces {
		n += len(sessions)
	}
	return n
}

func (h *Hub) newWorkspace(userID, sessionID string, now time.Time) (*Workspace, error) {
	backends := h.cfg.Backends(userID)
	ctx, cancel := context.WithCancel(context.Background())
	ws := &Workspace{
		UserID:    userID,
		SessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		lastUsed:  now,
		subs:      make(map[int]chan Event),
		buffer:    h.cfg.SubscriberBuffer,
	}

	logger := h.logger.With("user_id", userID, "session_id", sessionID)
	newSession := func(surface string, b chat.Backend) (*chat.Session, error) {
		return chat.NewSession(chat.Config{
			Surface:   surface,
			Backend:   b,
			Personas:  h.cfg.Personas,
			UserID:    userID,
			SessionID: sessionID,
			Log:       h.cfg.ConvLog,
			Logger:    logger,
			OnChange: func(snap chat.Snapshot) {
				ws.publish(Event{Type: EventChat, Surface: snap.Surface, Chat: &snap})
			},
		})
	}

	var err error
	if ws.Scenario, err = newSession(chat.SurfaceScenario, backends.Scenario); err != nil {
		cancel()
		return nil, fmt.Errorf("create scenario session: %w", err)
	}
	if ws.Chatbot, err = newSession(chat.SurfaceChatbot, backends.Chatbot); err != nil {
		cancel()
		return nil, fmt.Errorf("create chatbot session: %w", err)
	}
	ws.Review, err = review.NewWorkflow(review.Config{
		Backend: backends.Review,
		Logger:  logger,
		OnChange: func(st review.State) {
			ws.publish(Event{Type: EventReview, Review: &st})
		},
		OnAnalyzed: func(a review.Analyzed) {
			h.recordAnalysis(userID, a)
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create review workflow: %w", err)
	}
	return ws, nil
}

// recordAnalysis stores a settled analysis in the device's run history.
func (h *Hub) recordAnalysis(userID string, a review.Analyzed) {
	if h.cfg.Repo == nil {
		return
	}
	run := runFromAnalysis(userID, a, h.cfg.Now())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.cfg.Repo.RecordAnalysis(ctx, run); err != nil {
		h.logger.Warn("Failed to record analysis run", "user_id", userID, "app_id", run.AppID, "error", err)
	}
}

func runFromAnalysis(userID string, a review.Analyzed, now time.Time) *domain.AnalysisRun {
	run := &domain.AnalysisRun{
		UserID:    userID,
		AppID:     a.Game.ExternalID,
		GameName:  a.Game.Name,
		Settings:  a.Settings,
		Outcome:   a.Outcome.Label(),
		CreatedAt: now,
	}
	switch o := a.Outcome.(type) {
	case review.FullOutcome:
		run.TotalReviews = o.Result.Summary.TotalReviews
		run.PositiveCount = o.Result.Summary.PositiveCount
		run.NegativeCount = o.Result.Summary.NegativeCount
		if o.Warning != nil {
			run.NarrativeFailed = true
			run.ErrorMessage = o.Warning.Message
		}
	case review.FailedOutcome:
		run.ErrorMessage = o.Err.Message
	}
	return run
}
