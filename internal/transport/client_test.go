package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestChatbotChatSendsPersonaAndDecodesReply(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chatbot/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])
		assert.Equal(t, "레벨 디자이너", body["designerType"])

		_, _ = w.Write([]byte(`{"success": true, "message": "hi there", "designer_type": "레벨 디자이너"}`))
	}))

	reply, err := c.ChatbotChat(context.Background(), "hello", "레벨 디자이너")
	require.NoError(t, err)
	assert.True(t, reply.Success.OK())
	assert.Equal(t, "hi there", reply.Message)
	assert.Equal(t, "레벨 디자이너", reply.DesignerType)
}

func TestErrorEnvelopeIsApplicationResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success": 0, "error": "quota exceeded"}`))
	}))

	resp, err := c.Analyze(context.Background(), 10, domain.DefaultAnalysisSettings())
	require.NoError(t, err, "a decodable envelope is a response, not a transport failure")
	assert.False(t, resp.Success.OK())
	assert.Equal(t, "quota exceeded", resp.Error)
}

func TestUndecodableBodyIsTransportFailure(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))

	_, err := c.SearchGames(context.Background(), "portal")
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindTransport))
}

func TestUnreachableBackendIsTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.ChatbotHistory(context.Background())
	require.Error(t, err)
	assert.Equal(t, shared.KindTransport, shared.KindOf(err))
}

func TestAnalyzeRequestShape(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AppID    int64 `json:"app_id"`
			Settings struct {
				Language   string `json:"language"`
				ReviewType string `json:"review_type"`
				DayRange   int    `json:"day_range"`
			} `json:"settings"`
			UseGPT bool `json:"use_gpt"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(620), body.AppID)
		assert.Equal(t, "english", body.Settings.Language)
		assert.Equal(t, 90, body.Settings.DayRange)
		assert.True(t, body.UseGPT)
		_, _ = w.Write([]byte(`{"success": 1, "reviews": []}`))
	}))

	resp, err := c.Analyze(context.Background(), 620, domain.AnalysisSettings{
		Language:     domain.LanguageEnglish,
		ReviewType:   domain.ReviewTypeAll,
		DayRange:     90,
		UseAISummary: true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success.OK())
	assert.Empty(t, resp.Reviews)
}

func TestFetchReviewsEncodesOptions(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/review/steam/400", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("num_per_page"))
		assert.Equal(t, "recent", r.URL.Query().Get("filter"))
		_, _ = w.Write([]byte(`{"success": 1, "reviews": [{"review": "great", "voted_up": true}]}`))
	}))

	opts := domain.DefaultFetchOptions()
	opts.NumPerPage = 50
	opts.Filter = "recent"
	reply, err := c.FetchReviews(context.Background(), 400, opts)
	require.NoError(t, err)
	require.Len(t, reply.Reviews, 1)
	assert.True(t, reply.Reviews[0].VotedUp)
}

func TestForkedClientsKeepSeparateCookies(t *testing.T) {
	t.Parallel()

	var seen []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("session"); err == nil {
			seen = append(seen, ck.Value)
		} else {
			seen = append(seen, "")
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
		}
		_, _ = w.Write([]byte(`{"success": true, "history": []}`))
	}))

	ctx := context.Background()
	_, err := c.ChatbotHistory(ctx)
	require.NoError(t, err)
	_, err = c.ChatbotHistory(ctx)
	require.NoError(t, err)

	forked := c.Fork()
	_, err = forked.ChatbotHistory(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "s1", ""}, seen)
}

func TestPoolReusesAndPrunesClients(t *testing.T) {
	t.Parallel()

	base, err := New(Config{BaseURL: "http://localhost:5000"})
	require.NoError(t, err)
	p := NewPool(base)

	a := p.For("device-a")
	assert.Same(t, a, p.For("device-a"))
	assert.NotSame(t, a, p.For("device-b"))
	assert.Equal(t, 2, p.Len())

	assert.Equal(t, 0, p.Prune(time.Hour))
	assert.Equal(t, 2, p.Prune(-time.Second))
	assert.Equal(t, 0, p.Len())
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}
