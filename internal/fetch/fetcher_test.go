package fetch

import (
	"casescraper/internal/domain"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// stubFetcher tags its results so routing tests can tell which side
// served a request.
type stubFetcher struct{ tag string }

func (s stubFetcher) Fetch(ctx context.Context, req domain.FetchRequest) domain.FetchResult {
	return domain.FetchResult{Outcome: domain.FetchContent, HTML: s.tag, Status: 200}
}

// markerDetector flags any body containing the challenge marker.
type markerDetector struct{}

func (markerDetector) Detect(html, pageURL string) (*domain.ChallengeParams, bool) {
	if html == "" {
		return nil, false
	}
	if len(html) >= 9 && html[:9] == "CHALLENGE" {
		return &domain.ChallengeParams{SiteKey: "key", PageURL: pageURL}, true
	}
	return nil, false
}

func newTestFetcher(retries int) *HTTPFetcher {
	f := NewHTTPFetcher(
		2*time.Second,
		retries,
		rate.NewLimiter(rate.Inf, 1),
		markerDetector{},
		zap.NewNop(),
	)
	f.backoff = time.Millisecond
	return f
}

func TestFetchContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>cases</html>"))
	}))
	t.Cleanup(srv.Close)

	res := newTestFetcher(2).Fetch(context.Background(), domain.FetchRequest{URL: srv.URL, Method: http.MethodGet})
	assert.Equal(t, domain.FetchContent, res.Outcome)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "<html>cases</html>", res.HTML)
}

func TestFetchRetriesTransientServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	res := newTestFetcher(3).Fetch(context.Background(), domain.FetchRequest{URL: srv.URL, Method: http.MethodGet})
	assert.Equal(t, domain.FetchContent, res.Outcome)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	res := newTestFetcher(2).Fetch(context.Background(), domain.FetchRequest{URL: srv.URL, Method: http.MethodGet})
	require.Equal(t, domain.FetchFailed, res.Outcome)
	assert.Equal(t, domain.ErrKindNetwork, res.ErrKind)
	assert.Error(t, res.Err)
	// Initial attempt plus two retries.
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	res := newTestFetcher(3).Fetch(context.Background(), domain.FetchRequest{URL: srv.URL, Method: http.MethodGet})
	require.Equal(t, domain.FetchFailed, res.Outcome)
	assert.Equal(t, domain.ErrKindNetwork, res.ErrKind)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchClassifiesChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("CHALLENGE page body"))
	}))
	t.Cleanup(srv.Close)

	res := newTestFetcher(0).Fetch(context.Background(), domain.FetchRequest{URL: srv.URL, Method: http.MethodGet})
	require.Equal(t, domain.FetchChallenged, res.Outcome)
	require.NotNil(t, res.Challenge)
	assert.Equal(t, "key", res.Challenge.SiteKey)
	assert.Equal(t, srv.URL, res.Challenge.PageURL)
}

func TestFetchPostSendsForm(t *testing.T) {
	var gotCaseID, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotCaseID = r.PostFormValue("case_id")
		gotToken = r.PostFormValue("captchaToken")
		w.Write([]byte("detail"))
	}))
	t.Cleanup(srv.Close)

	req := domain.FetchRequest{
		URL:    srv.URL,
		Method: http.MethodPost,
		Form:   map[string]string{"case_id": "100001"},
	}.WithToken("tok-1")

	res := newTestFetcher(0).Fetch(context.Background(), req)
	assert.Equal(t, domain.FetchContent, res.Outcome)
	assert.Equal(t, "100001", gotCaseID)
	assert.Equal(t, "tok-1", gotToken)
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := newTestFetcher(3).Fetch(ctx, domain.FetchRequest{URL: srv.URL, Method: http.MethodGet})
	require.Equal(t, domain.FetchFailed, res.Outcome)
	assert.Equal(t, domain.ErrKindCancelled, res.ErrKind)
}

func TestWithTokenDerivesNewRequest(t *testing.T) {
	base := domain.FetchRequest{
		URL:    "https://court.example/search",
		Method: http.MethodPost,
		Form:   map[string]string{"searchType": "general"},
	}
	derived := base.WithToken("tok-2")

	assert.Equal(t, "tok-2", derived.Form["captchaToken"])
	assert.Equal(t, "general", derived.Form["searchType"])
	// The original request stays untouched.
	assert.NotContains(t, base.Form, "captchaToken")
}

func TestRoutedFetcherSplitsByMethod(t *testing.T) {
	routed := NewRoutedFetcher(stubFetcher{tag: "browser"}, stubFetcher{tag: "http"})

	get := routed.Fetch(context.Background(), domain.FetchRequest{URL: "https://court.example/", Method: http.MethodGet})
	assert.Equal(t, "browser", get.HTML)

	post := routed.Fetch(context.Background(), domain.FetchRequest{URL: "https://court.example/search", Method: http.MethodPost})
	assert.Equal(t, "http", post.HTML)
}
