package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/persona"
	"github.com/designdesk/designdesk/internal/shared"
)

type fakeBackend struct {
	mu sync.Mutex

	sendReply  *domain.ChatReply
	sendErr    error
	sendPanic  any
	sendCalls  int32
	lastText   string
	lastPerson string
	block      chan struct{}

	history    *domain.HistoryReply
	historyErr error

	clearReply *domain.ClearReply
	clearErr   error
	clearCalls int32

	// When set, History and Clear signal on entered and wait on gate.
	historyEntered chan struct{}
	historyGate    chan struct{}
	clearEntered   chan struct{}
	clearGate      chan struct{}
}

func pass(entered, gate chan struct{}) {
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
}

func (f *fakeBackend) Send(_ context.Context, text, p string) (*domain.ChatReply, error) {
	atomic.AddInt32(&f.sendCalls, 1)
	f.mu.Lock()
	f.lastText, f.lastPerson = text, p
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.sendPanic != nil {
		panic(f.sendPanic)
	}
	return f.sendReply, f.sendErr
}

func (f *fakeBackend) History(context.Context) (*domain.HistoryReply, error) {
	pass(f.historyEntered, f.historyGate)
	return f.history, f.historyErr
}

func (f *fakeBackend) Clear(context.Context) (*domain.ClearReply, error) {
	atomic.AddInt32(&f.clearCalls, 1)
	pass(f.clearEntered, f.clearGate)
	return f.clearReply, f.clearErr
}

var (
	levelTag   = mustTag(persona.KeyLevel)
	generalTag = mustTag(persona.KeyGeneral)
	questTag   = mustTag(persona.KeyQuest)
)

func mustTag(key string) string {
	p, ok := persona.Default().ByKey(key)
	if !ok {
		panic("missing persona " + key)
	}
	return p.Tag
}

func newTestSession(t *testing.T, b Backend) *Session {
	t.Helper()
	s, err := NewSession(Config{
		Surface:        SurfaceChatbot,
		Backend:        b,
		DefaultPersona: levelTag,
		Now:            func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func TestSendAppendsExactlyOneReplyForEveryOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		backend     *fakeBackend
		wantContent string
		wantPersona string
	}{
		{
			name:        "success echoes persona",
			backend:     &fakeBackend{sendReply: &domain.ChatReply{Success: true, Message: "Try a hub layout.", DesignerType: questTag}},
			wantContent: "Try a hub layout.",
			wantPersona: questTag,
		},
		{
			name:        "success without echo uses requested persona",
			backend:     &fakeBackend{sendReply: &domain.ChatReply{Success: true, Message: "ok"}},
			wantContent: "ok",
			wantPersona: levelTag,
		},
		{
			name:        "application failure",
			backend:     &fakeBackend{sendReply: &domain.ChatReply{Success: false, Error: "model overloaded"}},
			wantContent: "An error occurred: model overloaded",
			wantPersona: levelTag,
		},
		{
			name:        "application failure without text",
			backend:     &fakeBackend{sendReply: &domain.ChatReply{Success: false}},
			wantContent: "An error occurred: unknown error",
			wantPersona: levelTag,
		},
		{
			name:        "transport failure uses fallback persona",
			backend:     &fakeBackend{sendErr: shared.Transport("dial tcp: connection refused", errors.New("refused"))},
			wantContent: "Connection error: dial tcp: connection refused",
			wantPersona: generalTag,
		},
		{
			name:        "backend panic is answered",
			backend:     &fakeBackend{sendPanic: "boom"},
			wantContent: "Connection error: boom",
			wantPersona: generalTag,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestSession(t, tt.backend)
			reply, err := s.Send(context.Background(), "  how do I pace a dungeon?  ", levelTag)
			if err != nil {
				t.Fatalf("Send returned error: %v", err)
			}

			snap := s.Snapshot()
			if snap.Pending {
				t.Fatal("pending flag left set")
			}
			if len(snap.Messages) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(snap.Messages))
			}
			user, assistant := snap.Messages[0], snap.Messages[1]
			if user.Role != domain.RoleUser || user.Content != "how do I pace a dungeon?" {
				t.Errorf("unexpected user message: %+v", user)
			}
			if assistant.Role != domain.RoleAssistant {
				t.Errorf("second message role = %q", assistant.Role)
			}
			if assistant.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", assistant.Content, tt.wantContent)
			}
			if assistant.PersonaTag != tt.wantPersona {
				t.Errorf("persona = %q, want %q", assistant.PersonaTag, tt.wantPersona)
			}
			if reply.ID != assistant.ID {
				t.Error("returned message does not match appended message")
			}
		})
	}
}

func TestSendRejectsBlankTextWithoutNetwork(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{sendReply: &domain.ChatReply{Success: true}}
	s := newTestSession(t, b)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := s.Send(context.Background(), text, "")
		if !shared.IsKind(err, shared.KindValidation) {
			t.Errorf("Send(%q) error = %v, want validation", text, err)
		}
	}
	if n := atomic.LoadInt32(&b.sendCalls); n != 0 {
		t.Errorf("backend called %d times", n)
	}
	if n := len(s.Snapshot().Messages); n != 0 {
		t.Errorf("expected empty log, got %d messages", n)
	}
}

func TestSendWhilePendingIsRejected(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{
		sendReply: &domain.ChatReply{Success: true, Message: "done"},
		block:     make(chan struct{}),
	}
	s := newTestSession(t, b)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		if _, err := s.Send(context.Background(), "first", ""); err != nil {
			t.Errorf("first send failed: %v", err)
		}
	}()

	waitFor(t, func() bool { return s.Snapshot().Pending })

	if _, err := s.Send(context.Background(), "second", ""); !errors.Is(err, shared.ErrPending) {
		t.Fatalf("second send error = %v, want ErrPending", err)
	}
	if n := len(s.Snapshot().Messages); n != 1 {
		t.Fatalf("expected only the first user message, got %d", n)
	}

	close(b.block)
	<-firstDone

	if n := atomic.LoadInt32(&b.sendCalls); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}
	if snap := s.Snapshot(); snap.Pending || len(snap.Messages) != 2 {
		t.Errorf("unexpected final state: pending=%v messages=%d", snap.Pending, len(snap.Messages))
	}
}

func TestSendUsesSelectedPersona(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{sendReply: &domain.ChatReply{Success: true, Message: "ok"}}
	s := newTestSession(t, b)

	if err := s.SelectPersona("not-a-persona"); !shared.IsKind(err, shared.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := s.SelectPersona(questTag); err != nil {
		t.Fatalf("SelectPersona failed: %v", err)
	}
	if _, err := s.Send(context.Background(), "hi", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if b.lastPerson != questTag {
		t.Errorf("backend received persona %q, want %q", b.lastPerson, questTag)
	}
}

func TestHydrateFillsDefaultsAndRunsOnce(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{history: &domain.HistoryReply{
		Success: true,
		History: []domain.HistoryEntry{
			{Role: domain.RoleUser, Content: "hello", Timestamp: "2025-02-27T09:00:00Z"},
			{Role: domain.RoleAssistant, Content: "hi", DesignerType: questTag},
			{Role: domain.RoleAssistant, Content: "legacy"},
		},
	}}
	s := newTestSession(t, b)

	if err := s.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	msgs := s.Snapshot().Messages
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if got := msgs[0].Timestamp; !got.Equal(time.Date(2025, 2, 27, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp not parsed: %v", got)
	}
	if got := msgs[1].Timestamp; !got.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("missing timestamp should be the hydration instant, got %v", got)
	}
	if msgs[1].PersonaTag != questTag {
		t.Errorf("persona = %q", msgs[1].PersonaTag)
	}
	if msgs[2].PersonaTag != levelTag {
		t.Errorf("missing persona should be the default, got %q", msgs[2].PersonaTag)
	}

	b.history = &domain.HistoryReply{Success: true, History: []domain.HistoryEntry{{Role: domain.RoleUser, Content: "again"}}}
	if err := s.Hydrate(context.Background()); err != nil {
		t.Fatalf("second Hydrate failed: %v", err)
	}
	if n := len(s.Snapshot().Messages); n != 3 {
		t.Errorf("second hydrate changed the log: %d messages", n)
	}
}

func TestHydrateFailureLeavesLogEmpty(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &fakeBackend{historyErr: shared.Transport("timeout", nil)})
	err := s.Hydrate(context.Background())
	if !shared.IsKind(err, shared.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Messages) != 0 {
		t.Errorf("expected empty log, got %d messages", len(snap.Messages))
	}
	if !snap.Hydrated {
		t.Error("session should be marked hydrated")
	}
}

func TestClearOnlyEmptiesLogOnSuccess(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{
		sendReply:  &domain.ChatReply{Success: true, Message: "ok"},
		clearReply: &domain.ClearReply{Success: false, Error: "locked"},
	}
	s := newTestSession(t, b)
	if _, err := s.Send(context.Background(), "hi", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	err := s.Clear(context.Background())
	if !shared.IsKind(err, shared.KindApplication) {
		t.Fatalf("expected application error, got %v", err)
	}
	if n := len(s.Snapshot().Messages); n != 2 {
		t.Fatalf("failed clear changed the log: %d messages", n)
	}

	b.clearErr = shared.Transport("refused", nil)
	if err := s.Clear(context.Background()); !shared.IsKind(err, shared.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if n := len(s.Snapshot().Messages); n != 2 {
		t.Fatalf("failed clear changed the log: %d messages", n)
	}

	b.clearErr = nil
	b.clearReply = &domain.ClearReply{Success: true}
	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n := len(s.Snapshot().Messages); n != 0 {
		t.Errorf("expected empty log, got %d messages", n)
	}
}

func TestOnChangeSeesPendingThenSettled(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		snaps []Snapshot
	)
	s, err := NewSession(Config{
		Surface: SurfaceScenario,
		Backend: &fakeBackend{sendReply: &domain.ChatReply{Success: true, Message: "ok"}},
		OnChange: func(snap Snapshot) {
			mu.Lock()
			snaps = append(snaps, snap)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if _, err := s.Send(context.Background(), "hi", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) < 2 {
		t.Fatalf("expected at least 2 notifications, got %d", len(snaps))
	}
	first, last := snaps[0], snaps[len(snaps)-1]
	if !first.Pending || len(first.Messages) != 1 {
		t.Errorf("first notification should carry the optimistic message: %+v", first)
	}
	if last.Pending || len(last.Messages) != 2 {
		t.Errorf("last notification should be settled: %+v", last)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSendIsRefusedWhileClearIsInFlight(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{
		sendReply:    &domain.ChatReply{Success: true, Message: "answer"},
		clearReply:   &domain.ClearReply{Success: true},
		clearEntered: make(chan struct{}, 1),
		clearGate:    make(chan struct{}),
	}
	s := newTestSession(t, b)

	done := make(chan error, 1)
	go func() { done <- s.Clear(context.Background()) }()
	<-b.clearEntered

	if _, err := s.Send(context.Background(), "question", ""); !errors.Is(err, shared.ErrPending) {
		t.Fatalf("expected ErrPending during clear, got %v", err)
	}
	if err := s.Clear(context.Background()); !errors.Is(err, shared.ErrPending) {
		t.Fatalf("expected ErrPending for a second clear, got %v", err)
	}
	if n := atomic.LoadInt32(&b.sendCalls); n != 0 {
		t.Fatalf("refused send reached the backend %d times", n)
	}

	close(b.clearGate)
	if err := <-done; err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, err := s.Send(context.Background(), "question", ""); err != nil {
		t.Fatalf("Send after clear failed: %v", err)
	}
	msgs := s.Snapshot().Messages
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("expected user then assistant, got %+v", msgs)
	}
}

func TestHydrateLoadedBeforeClearIsDiscarded(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{
		history: &domain.HistoryReply{Success: true, History: []domain.HistoryEntry{
			{Role: domain.RoleUser, Content: "old"},
		}},
		clearReply:     &domain.ClearReply{Success: true},
		historyEntered: make(chan struct{}, 1),
		historyGate:    make(chan struct{}),
	}
	s := newTestSession(t, b)

	done := make(chan error, 1)
	go func() { done <- s.Hydrate(context.Background()) }()
	<-b.historyEntered

	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	close(b.historyGate)
	if err := <-done; err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}

	if msgs := s.Snapshot().Messages; len(msgs) != 0 {
		t.Fatalf("cleared history came back: %+v", msgs)
	}
}

func TestHydrateSurvivesFailedClear(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{
		history: &domain.HistoryReply{Success: true, History: []domain.HistoryEntry{
			{Role: domain.RoleUser, Content: "old"},
		}},
		clearReply:     &domain.ClearReply{Success: false, Error: "locked"},
		historyEntered: make(chan struct{}, 1),
		historyGate:    make(chan struct{}),
	}
	s := newTestSession(t, b)

	done := make(chan error, 1)
	go func() { done <- s.Hydrate(context.Background()) }()
	<-b.historyEntered

	if err := s.Clear(context.Background()); err == nil {
		t.Fatal("expected clear to fail")
	}
	close(b.historyGate)
	if err := <-done; err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}

	if msgs := s.Snapshot().Messages; len(msgs) != 1 || msgs[0].Content != "old" {
		t.Fatalf("expected restored history, got %+v", msgs)
	}
}
