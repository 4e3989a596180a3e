package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designdesk/designdesk/internal/chat"
	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/review"
)

type fakeChatBackend struct{}

func (fakeChatBackend) Send(_ context.Context, text, p string) (*domain.ChatReply, error) {
	return &domain.ChatReply{Success: true, Message: "re: " + text, DesignerType: p}, nil
}

func (fakeChatBackend) History(context.Context) (*domain.HistoryReply, error) {
	return &domain.HistoryReply{Success: true}, nil
}

func (fakeChatBackend) Clear(context.Context) (*domain.ClearReply, error) {
	return &domain.ClearReply{Success: true}, nil
}

type fakeReviewBackend struct{}

func (fakeReviewBackend) SearchGames(context.Context, string) (*domain.SearchReply, error) {
	return &domain.SearchReply{Success: true, Games: []domain.SearchResult{{ExternalID: 7, Name: "Game X"}}}, nil
}

func (fakeReviewBackend) FetchReviews(context.Context, int64, domain.FetchOptions) (*domain.FetchReply, error) {
	return &domain.FetchReply{Success: true}, nil
}

func (fakeReviewBackend) Analyze(context.Context, int64, domain.AnalysisSettings) (*domain.AnalyzeResponse, error) {
	return &domain.AnalyzeResponse{
		Success: true,
		Reviews: []domain.RawReview{{Review: "fun", VotedUp: true}},
		Summary: &domain.SummaryStats{TotalReviews: 1, PositiveCount: 1},
	}, nil
}

type fakeRepo struct {
	mu       sync.Mutex
	runs     []*domain.AnalysisRun
	idleTTLs []time.Duration
	cleanups []time.Duration
}

func (f *fakeRepo) GetUser(context.Context, string) (*domain.User, error)   { return nil, nil }
func (f *fakeRepo) UpsertUser(context.Context, *domain.User) error           { return nil }
func (f *fakeRepo) UpdateLastSeen(context.Context, string, time.Time) error { return nil }
func (f *fakeRepo) Ping(context.Context) error                              { return nil }
func (f *fakeRepo) Close() error                                            { return nil }

func (f *fakeRepo) DeleteIdleUsers(_ context.Context, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idleTTLs = append(f.idleTTLs, ttl)
	return 0, nil
}

func (f *fakeRepo) RecordAnalysis(_ context.Context, run *domain.AnalysisRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRepo) ListAnalyses(context.Context, string, int) ([]*domain.AnalysisRun, error) {
	return nil, nil
}

func (f *fakeRepo) CleanupAnalyses(_ context.Context, retention time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = append(f.cleanups, retention)
	return 0, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestHub(t *testing.T, repo *fakeRepo, clk *clock) *Hub {
	t.Helper()
	h, err := New(Config{
		Backends: func(string) Backends {
			return Backends{Scenario: fakeChatBackend{}, Chatbot: fakeChatBackend{}, Review: fakeReviewBackend{}}
		},
		Repo:              repo,
		WorkspaceTTL:      time.Hour,
		DeviceTTL:         24 * time.Hour,
		AnalysisRetention: 48 * time.Hour,
		Now:               clk.Now,
	})
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

func TestGetCreatesOneWorkspacePerTab(t *testing.T) {
	t.Parallel()

	h := newTestHub(t, &fakeRepo{}, &clock{now: time.Now()})

	a, err := h.Get("anon_1", "tab-a")
	require.NoError(t, err)
	again, err := h.Get("anon_1", "tab-a")
	require.NoError(t, err)
	b, err := h.Get("anon_1", "tab-b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, h.Len())

	sc, ok := a.Chat(chat.SurfaceScenario)
	require.True(t, ok)
	assert.Equal(t, chat.SurfaceScenario, sc.Surface())
	_, ok = a.Chat("bogus")
	assert.False(t, ok)
}

func TestSubscribersReceiveEngineEvents(t *testing.T) {
	t.Parallel()

	h := newTestHub(t, &fakeRepo{}, &clock{now: time.Now()})
	ws, err := h.Get("anon_1", "tab")
	require.NoError(t, err)

	events, unsubscribe := ws.Subscribe()
	defer unsubscribe()

	_, err = ws.Chatbot.Send(context.Background(), "hello", "")
	require.NoError(t, err)

	var last Event
	for range 2 {
		select {
		case last = <-events:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for chat event")
		}
	}
	assert.Equal(t, EventChat, last.Type)
	assert.Equal(t, chat.SurfaceChatbot, last.Surface)
	require.NotNil(t, last.Chat)
	assert.Len(t, last.Chat.Messages, 2)
	assert.False(t, last.Chat.Pending)
}

func TestAnalysisIsRecordedInStore(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	h := newTestHub(t, repo, &clock{now: time.Now()})
	ws, err := h.Get("anon_1", "tab")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ws.Review.Search(ctx, "Game X"))
	require.NoError(t, ws.Review.SelectByID(7))
	require.NoError(t, ws.Review.Analyze(ctx, domain.AnalysisSettings{DayRange: 30}))

	assert.Equal(t, review.StageResulted, ws.Review.State().Stage)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.runs, 1)
	run := repo.runs[0]
	assert.Equal(t, "anon_1", run.UserID)
	assert.Equal(t, int64(7), run.AppID)
	assert.Equal(t, "Game X", run.GameName)
	assert.Equal(t, "full", run.Outcome)
	assert.Equal(t, 1, run.TotalReviews)
}

func TestDestroyClosesSubscribersAndContext(t *testing.T) {
	t.Parallel()

	h := newTestHub(t, &fakeRepo{}, &clock{now: time.Now()})
	ws, err := h.Get("anon_1", "tab")
	require.NoError(t, err)

	events, unsubscribe := ws.Subscribe()
	defer unsubscribe()
	bound, cancel := ws.Bind(context.Background())
	defer cancel()

	assert.True(t, h.Destroy("anon_1", "tab"))
	assert.False(t, h.Destroy("anon_1", "tab"))
	assert.Equal(t, 0, h.Len())

	ev, ok := <-events
	require.True(t, ok)
	assert.Equal(t, EventClosed, ev.Type)
	_, ok = <-events
	assert.False(t, ok)

	select {
	case <-bound.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context was not canceled")
	}

	fresh, err := h.Get("anon_1", "tab")
	require.NoError(t, err)
	assert.NotSame(t, ws, fresh)
}

func TestBindOutlivesRequestButNotWorkspace(t *testing.T) {
	t.Parallel()

	h := newTestHub(t, &fakeRepo{}, &clock{now: time.Now()})
	ws, err := h.Get("anon_1", "tab")
	require.NoError(t, err)

	type key struct{}
	req, abort := context.WithCancel(context.WithValue(context.Background(), key{}, "req-1"))
	bound, cancel := ws.Bind(req)
	defer cancel()

	abort()
	assert.NoError(t, bound.Err(), "a departed client must not cancel the engine call")
	assert.Equal(t, "req-1", bound.Value(key{}))

	require.True(t, h.Destroy("anon_1", "tab"))
	select {
	case <-bound.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context was not canceled by workspace teardown")
	}
}

func TestSweepDestroysIdleWorkspacesAndCleansStore(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	clk := &clock{now: time.Now()}
	h := newTestHub(t, repo, clk)

	_, err := h.Get("anon_1", "old")
	require.NoError(t, err)
	clk.Advance(50 * time.Minute)
	_, err = h.Get("anon_1", "fresh")
	require.NoError(t, err)
	clk.Advance(20 * time.Minute)

	assert.Equal(t, 1, h.Sweep(context.Background()))
	_, ok := h.Lookup("anon_1", "old")
	assert.False(t, ok)
	_, ok = h.Lookup("anon_1", "fresh")
	assert.True(t, ok)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, []time.Duration{24 * time.Hour}, repo.idleTTLs)
	assert.Equal(t, []time.Duration{48 * time.Hour}, repo.cleanups)
}

func TestClosedHubRejectsGet(t *testing.T) {
	t.Parallel()

	h := newTestHub(t, &fakeRepo{}, &clock{now: time.Now()})
	h.Close()
	_, err := h.Get("anon_1", "tab")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunFromFailedAnalysisKeepsMessage(t *testing.T) {
	t.Parallel()

	outcome := review.Classify(&domain.AnalyzeResponse{Success: false, Error: "y"}, nil, domain.DefaultAnalysisSettings())
	run := runFromAnalysis("anon_1", review.Analyzed{
		Game:    domain.SearchResult{ExternalID: 1, Name: "G"},
		Outcome: outcome,
	}, time.Now())

	assert.Equal(t, "application", run.Outcome)
	assert.Equal(t, "y", run.ErrorMessage)
	assert.Zero(t, run.TotalReviews)
}
