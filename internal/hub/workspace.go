package hub

import (
	"context"
	"sync"
	"time"

	"github.com/designdesk/designdesk/internal/chat"
	"github.com/designdesk/designdesk/internal/review"
)

// Event types pushed to subscribers.
const (
	EventChat   = "chat"
	EventReview = "review"
	EventClosed = "closed"
)

// Event is a state change of one engine in a workspace.
type Event struct {
	Type    string         `json:"type"`
	Surface string         `json:"surface,omitempty"`
	Chat    *chat.Snapshot `json:"chat,omitempty"`
	Review  *review.State  `json:"review,omitempty"`
}

// Workspace is the engine set of one browser tab.
type Workspace struct {
	UserID    string
	SessionID string
	Scenario  *chat.Session
	Chatbot   *chat.Session
	Review    *review.Workflow

	ctx    context.Context
	cancel context.CancelFunc
	buffer int

	mu       sync.Mutex
	lastUsed time.Time
	subs     map[int]chan Event
	nextSub  int
	closed   bool
}

// Chat returns the session for surface.
func (w *Workspace) Chat(surface string) (*chat.Session, bool) {
	switch surface {
	case chat.SurfaceScenario:
		return w.Scenario, true
	case chat.SurfaceChatbot:
		return w.Chatbot, true
	default:
		return nil, false
	}
}

// Bind derives a context for an engine call from a request context. It keeps
// the request's values but not its cancellation: a client that goes away does
// not abort a call whose result the workspace still publishes. The context is
// canceled when the workspace is destroyed. The returned cancel must be
// called.
func (w *Workspace) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(w.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Done is closed when the workspace is destroyed.
func (w *Workspace) Done() <-chan struct{} {
	return w.ctx.Done()
}

// Subscribe registers an event listener. The channel is closed after the
// workspace is destroyed or unsubscribe is called. A subscriber that falls
// behind misses events rather than blocking the engines.
func (w *Workspace) Subscribe() (<-chan Event, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan Event, w.buffer)
	if w.closed {
		close(ch)
		return ch, func() {}
	}
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if sub, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(sub)
			}
		})
	}
}

// LastUsed returns the time of the last activity.
func (w *Workspace) LastUsed() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	if now.After(w.lastUsed) {
		w.lastUsed = now
	}
	w.mu.Unlock()
}

func (w *Workspace) publish(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (w *Workspace) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for id, ch := range w.subs {
		select {
		case ch <- Event{Type: EventClosed}:
		default:
		}
		close(ch)
		delete(w.subs, id)
	}
	w.mu.Unlock()
	w.cancel()
}
