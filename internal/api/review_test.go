package api

import (
	"net/http"
	"testing"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/review"
)

func TestReviewWorkflowOverHTTP(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 5)

	searched := decode[reviewResponse](t, s.do(t, http.MethodPost, "/api/review/search", searchRequest{Query: "Game X"}))
	if searched.State.Stage != review.StageIdle || len(searched.State.Results) != 1 {
		t.Fatalf("unexpected search state: %+v", searched.State)
	}

	selected := decode[reviewResponse](t, s.do(t, http.MethodPost, "/api/review/select", selectRequest{AppID: 42}))
	if selected.State.Stage != review.StageGameSelected || selected.State.Selected == nil {
		t.Fatalf("unexpected select state: %+v", selected.State)
	}

	fetched := decode[reviewResponse](t, s.do(t, http.MethodPost, "/api/review/fetch", fetchRequest{}))
	if fetched.State.Stage != review.StageGameSelected || len(fetched.State.Preview) != 1 {
		t.Fatalf("unexpected fetch state: %+v", fetched.State)
	}

	rr := s.do(t, http.MethodPost, "/api/review/analyze", analyzeRequest{Settings: domain.AnalysisSettings{DayRange: 900}})
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rr.Code)
	}
	analyzed := decode[reviewResponse](t, rr)
	if analyzed.State.Stage != review.StageResulted {
		t.Fatalf("unexpected analyze state: %+v", analyzed.State)
	}
	if analyzed.State.Settings.DayRange != domain.MaxDayRange {
		t.Errorf("day range = %d, want clamped %d", analyzed.State.Settings.DayRange, domain.MaxDayRange)
	}
	if analyzed.View == nil || analyzed.View.Summary.Total != "1,234" || analyzed.View.Summary.DailyAverage != "1234.0" {
		t.Errorf("unexpected view: %+v", analyzed.View)
	}

	runs := decode[map[string][]domain.AnalysisRun](t, s.do(t, http.MethodGet, "/api/review/runs?limit=5", nil))
	if len(runs["runs"]) != 1 || runs["runs"][0].GameName != "Game X" || runs["runs"][0].TotalReviews != 1234 {
		t.Errorf("unexpected runs: %+v", runs["runs"])
	}
}

func TestReviewZeroResultsIsNotice(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 5)
	got := decode[reviewResponse](t, s.do(t, http.MethodPost, "/api/review/search", searchRequest{Query: "nothing"}))
	if got.State.Error != nil {
		t.Errorf("zero results must not be an error: %+v", got.State.Error)
	}
	if got.State.Notice == "" {
		t.Error("expected a notice")
	}
	if got.View != nil {
		t.Error("no view without a result")
	}
}

func TestReviewRejections(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, 5)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"empty query", http.MethodPost, "/api/review/search", searchRequest{Query: " "}, http.StatusBadRequest},
		{"analyze without game", http.MethodPost, "/api/review/analyze", analyzeRequest{}, http.StatusBadRequest},
		{"select unknown id", http.MethodPost, "/api/review/select", selectRequest{AppID: 9}, http.StatusBadRequest},
		{"bad runs limit", http.MethodGet, "/api/review/runs?limit=-1", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rr := s.do(t, tt.method, tt.path, tt.body); rr.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, rr.Code, tt.status)
		}
	}
}
