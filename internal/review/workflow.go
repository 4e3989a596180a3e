// Package review implements the search, select, fetch and analyze workflow
// for store reviews, and the view-models derived from its results.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/metrics"
	"github.com/designdesk/designdesk/internal/shared"
)

// Stage is the workflow's current step. Exactly one is active at a time.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageSearching    Stage = "searching"
	StageGameSelected Stage = "game_selected"
	StageFetching     Stage = "fetching"
	StageAnalyzing    Stage = "analyzing"
	StageResulted     Stage = "resulted"
	StageFailed       Stage = "failed"
)

// Backend is the slice of the transport client the workflow needs.
type Backend interface {
	SearchGames(ctx context.Context, query string) (*domain.SearchReply, error)
	FetchReviews(ctx context.Context, appID int64, opts domain.FetchOptions) (*domain.FetchReply, error)
	Analyze(ctx context.Context, appID int64, settings domain.AnalysisSettings) (*domain.AnalyzeResponse, error)
}

// State is a snapshot of the workflow. Error annotates the last failed step,
// Warning carries a partial failure next to a valid result, and Notice is
// an informational message that is not an error. PreviewError belongs to the
// preview fetch alone so it never replaces the error of a failed analysis.
type State struct {
	Stage    Stage                   `json:"stage"`
	Query    string                  `json:"query,omitempty"`
	Results  []domain.SearchResult   `json:"results"`
	Selected *domain.SearchResult    `json:"selected,omitempty"`
	Preview  []domain.RawReview      `json:"preview"`
	Settings domain.AnalysisSettings `json:"settings"`
	Result   *domain.AnalysisResult  `json:"result,omitempty"`
	Error    *shared.Error           `json:"error,omitempty"`
	Warning  *shared.Error           `json:"warning,omitempty"`
	Notice   string                  `json:"notice,omitempty"`

	PreviewError *shared.Error `json:"preview_error,omitempty"`
}

func (st State) clone() State {
	out := st
	out.Results = append([]domain.SearchResult(nil), st.Results...)
	out.Preview = append([]domain.RawReview(nil), st.Preview...)
	if st.Selected != nil {
		sel := *st.Selected
		out.Selected = &sel
	}
	if st.Result != nil {
		res := *st.Result
		out.Result = &res
	}
	return out
}

// Analyzed describes a settled analysis that was applied to the state.
type Analyzed struct {
	Game     domain.SearchResult
	Settings domain.AnalysisSettings
	Outcome  Outcome
}

// Config configures a Workflow.
type Config struct {
	Backend Backend
	Logger  *slog.Logger
	// OnChange is called after every state mutation, outside the lock.
	OnChange func(State)
	// OnAnalyzed is called once per applied (non-stale) analysis.
	OnAnalyzed func(Analyzed)
}

// Workflow is one tab's review pipeline. Each backend call carries a sequence
// number; a response whose number is no longer current is discarded, so the
// last request always wins.
type Workflow struct {
	backend    Backend
	logger     *slog.Logger
	onChange   func(State)
	onAnalyzed func(Analyzed)

	mu         sync.Mutex
	st         State
	searchSeq  uint64
	fetchSeq   uint64
	analyzeSeq uint64
	// fetchReturn is the stage a preview fetch returns to.
	fetchReturn Stage
}

// NewWorkflow creates an idle workflow.
func NewWorkflow(cfg Config) (*Workflow, error) {
	if cfg.Backend == nil {
		return nil, errors.New("review: backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Workflow{
		backend:    cfg.Backend,
		logger:     cfg.Logger,
		onChange:   cfg.OnChange,
		onAnalyzed: cfg.OnAnalyzed,
		st: State{
			Stage:    StageIdle,
			Settings: domain.DefaultAnalysisSettings(),
		},
	}, nil
}

// State returns a copy of the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.clone()
}

// update runs fn under the lock and publishes the new state when fn reports
// a change.
func (w *Workflow) update(fn func(st *State) bool) bool {
	w.mu.Lock()
	changed := fn(&w.st)
	snap := w.st.clone()
	w.mu.Unlock()

	if changed && w.onChange != nil {
		w.onChange(snap)
	}
	return changed
}

// Search looks up games by name. A new search starts the workflow over and
// supersedes every in-flight call. Zero matches leave a notice, not an error.
func (w *Workflow) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return shared.Validation("search query is empty")
	}

	var seq uint64
	w.update(func(st *State) bool {
		w.searchSeq++
		w.fetchSeq++
		w.analyzeSeq++
		seq = w.searchSeq
		*st = State{
			Stage:    StageSearching,
			Query:    query,
			Settings: st.Settings,
		}
		return true
	})

	reply, err := w.backend.SearchGames(ctx, query)

	applied := w.update(func(st *State) bool {
		if seq != w.searchSeq {
			return false
		}
		st.Stage = StageIdle
		switch {
		case err != nil:
			st.Error = transportFailure(err)
		case !reply.Success.OK():
			st.Error = shared.Application(reply.Error, "Search failed.")
		case len(reply.Games) == 0:
			st.Notice = reply.Message
			if st.Notice == "" {
				st.Notice = fmt.Sprintf("No games found for %q.", query)
			}
		default:
			st.Results = reply.Games
		}
		return true
	})
	if !applied {
		metrics.StaleResponse("search")
		w.logger.Debug("Discarding stale search response", "query", query)
		return nil
	}
	if err != nil {
		w.logger.Warn("Game search failed", "query", query, "error", err)
	}
	return nil
}

// SelectGame picks a game for analysis. It drops the result list, the
// preview and any prior analysis, and supersedes every in-flight call.
func (w *Workflow) SelectGame(game domain.SearchResult) error {
	if game.ExternalID <= 0 {
		return shared.Validation("game id is required")
	}
	w.update(func(st *State) bool {
		w.searchSeq++
		w.fetchSeq++
		w.analyzeSeq++
		*st = State{
			Stage:    StageGameSelected,
			Query:    st.Query,
			Selected: &game,
			Settings: st.Settings,
		}
		return true
	})
	return nil
}

// SelectByID selects a game from the current result list.
func (w *Workflow) SelectByID(appID int64) error {
	w.mu.Lock()
	var found *domain.SearchResult
	for i := range w.st.Results {
		if w.st.Results[i].ExternalID == appID {
			g := w.st.Results[i]
			found = &g
			break
		}
	}
	w.mu.Unlock()
	if found == nil {
		return shared.Validation(fmt.Sprintf("game %d is not in the search results", appID))
	}
	return w.SelectGame(*found)
}

// FetchReviews loads a raw review preview for the selected game and returns
// to the stage it started from. A failure is annotated as PreviewError; the
// stage and its own Error are left as they were.
func (w *Workflow) FetchReviews(ctx context.Context, opts domain.FetchOptions) error {
	opts = opts.Normalize()

	var (
		seq  uint64
		game domain.SearchResult
		err  error
	)
	w.update(func(st *State) bool {
		if st.Selected == nil {
			err = shared.Validation("select a game first")
			return false
		}
		switch st.Stage {
		case StageGameSelected, StageResulted, StageFailed:
			w.fetchReturn = st.Stage
		case StageFetching:
		default:
			err = shared.ErrPending
			return false
		}
		w.fetchSeq++
		seq = w.fetchSeq
		game = *st.Selected
		st.Stage = StageFetching
		st.PreviewError = nil
		return true
	})
	if err != nil {
		return err
	}

	reply, callErr := w.backend.FetchReviews(ctx, game.ExternalID, opts)

	applied := w.update(func(st *State) bool {
		if seq != w.fetchSeq {
			return false
		}
		st.Stage = w.fetchReturn
		switch {
		case callErr != nil:
			st.PreviewError = transportFailure(callErr)
		case !reply.Success.OK():
			st.PreviewError = shared.Application(reply.Error, "Failed to collect reviews.")
		default:
			st.Preview = reply.Reviews
		}
		return true
	})
	if !applied {
		metrics.StaleResponse("fetch")
		return nil
	}
	if callErr != nil {
		w.logger.Warn("Review fetch failed", "app_id", game.ExternalID, "error", callErr)
	}
	return nil
}

// Analyze runs an analysis of the selected game with settings clamped into
// range. Issuing a new analysis while one is in flight supersedes it.
func (w *Workflow) Analyze(ctx context.Context, settings domain.AnalysisSettings) error {
	settings = settings.Normalize()

	var (
		seq  uint64
		game domain.SearchResult
		err  error
	)
	w.update(func(st *State) bool {
		if st.Selected == nil {
			err = shared.Validation("select a game first")
			return false
		}
		switch st.Stage {
		case StageGameSelected, StageResulted, StageFailed, StageAnalyzing:
		default:
			err = shared.ErrPending
			return false
		}
		w.analyzeSeq++
		seq = w.analyzeSeq
		game = *st.Selected
		st.Stage = StageAnalyzing
		st.Settings = settings
		st.Result = nil
		st.Error = nil
		st.Warning = nil
		st.Notice = ""
		return true
	})
	if err != nil {
		return err
	}

	w.logger.Info("Analysis started", "app_id", game.ExternalID, "day_range", settings.DayRange, "use_gpt", settings.UseAISummary)
	resp, callErr := w.backend.Analyze(ctx, game.ExternalID, settings)
	outcome := Classify(resp, callErr, settings)

	applied := w.update(func(st *State) bool {
		if seq != w.analyzeSeq {
			return false
		}
		outcome.apply(st)
		return true
	})
	if !applied {
		metrics.StaleResponse("analyze")
		w.logger.Debug("Discarding stale analysis response", "app_id", game.ExternalID)
		return nil
	}

	metrics.Analysis(outcome.Label())
	w.logger.Info("Analysis finished", "app_id", game.ExternalID, "outcome", outcome.Label())
	if w.onAnalyzed != nil {
		w.onAnalyzed(Analyzed{Game: game, Settings: settings, Outcome: outcome})
	}
	return nil
}
