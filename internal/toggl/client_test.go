package toggl

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeToggl serves canned responses keyed by "METHOD /path" and records
// every request it receives.
type fakeToggl struct {
	t         *testing.T
	mu        sync.Mutex
	requests  []recorded
	responses map[string]string
	statuses  map[string]int
}

func newFakeToggl(t *testing.T) (*fakeToggl, *Client) {
	f := &fakeToggl{
		t:         t,
		responses: map[string]string{},
		statuses:  map[string]int{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	now := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	c := NewClient("secret-key", "42",
		WithHTTPClient(srv.Client()),
		WithBaseURL(srv.URL+"/api/v9"),
		WithReportsURL(srv.URL+"/reports/api/v2/details"),
		WithLocation(time.FixedZone("JST", 9*60*60)),
		WithClock(func() time.Time { return now }),
	)
	return f, c
}

func (f *fakeToggl) serve(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	assert.True(f.t, ok)
	assert.Equal(f.t, "secret-key", user)
	assert.Equal(f.t, "api_token", pass)

	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
	status, hasStatus := f.statuses[key]
	resp, hasResp := f.responses[key]
	f.mu.Unlock()

	if hasStatus {
		w.WriteHeader(status)
	} else if !hasResp {
		w.WriteHeader(http.StatusNotFound)
	}
	_, _ = io.WriteString(w, resp)
}

func (f *fakeToggl) calls(method string) []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recorded
	for _, r := range f.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func TestCurrentEntry(t *testing.T) {
	f, c := newFakeToggl(t)
	f.responses["GET /api/v9/me/time_entries/current"] =
		`{"id": 7, "workspace_id": 42, "description": "writing", "start": "2024-01-01T00:00:00Z", "duration": -1704067200}`

	e := c.CurrentEntry(context.Background())
	require.NotNil(t, e)
	assert.Equal(t, int64(7), e.ID)
	assert.Equal(t, "writing", e.Description)
	assert.True(t, e.Running())
}

func TestCurrentEntry_NothingRunning(t *testing.T) {
	f, c := newFakeToggl(t)
	f.responses["GET /api/v9/me/time_entries/current"] = `null`

	assert.Nil(t, c.CurrentEntry(context.Background()))
}

func TestCurrentEntry_ErrorsAreAbsent(t *testing.T) {
	f, c := newFakeToggl(t)
	f.statuses["GET /api/v9/me/time_entries/current"] = http.StatusForbidden
	f.responses["GET /api/v9/me/time_entries/current"] = `Incorrect username and/or password`
	assert.Nil(t, c.CurrentEntry(context.Background()))

	f.statuses["GET /api/v9/me/time_entries/current"] = http.StatusOK
	f.responses["GET /api/v9/me/time_entries/current"] = `{not json`
	assert.Nil(t, c.CurrentEntry(context.Background()))
}

func TestCurrentEntry_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient("k", "1", WithBaseURL(srv.URL))
	assert.Nil(t, c.CurrentEntry(context.Background()))
}

func TestProjects_FailureIsEmpty(t *testing.T) {
	_, c := newFakeToggl(t)
	assert.Empty(t, c.Projects(context.Background()))
}

func TestStartEntry(t *testing.T) {
	f, c := newFakeToggl(t)
	f.responses["GET /api/v9/workspaces/42/projects"] = `[{"id": 1, "name": "Other"}, {"id": 9, "name": "Backend"}]`
	f.responses["POST /api/v9/workspaces/42/time_entries"] = `{"id": 100, "project_id": 9, "duration": -1}`

	desc := strings.Repeat("あ", 300)
	e := c.StartEntry(context.Background(), "backend", desc)
	require.NotNil(t, e)
	assert.Equal(t, int64(100), e.ID)

	posts := f.calls(http.MethodPost)
	require.Len(t, posts, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(posts[0].Body), &payload))
	assert.Equal(t, "LINE Bot", payload["created_with"])
	assert.Equal(t, float64(42), payload["workspace_id"])
	assert.Equal(t, float64(9), payload["project_id"])
	assert.Equal(t, float64(-1), payload["duration"])
	assert.Equal(t, "2024-01-01T03:00:00Z", payload["start"])
	assert.Equal(t, strings.Repeat("あ", 255), payload["description"])
}

func TestStartEntry_UnknownProject(t *testing.T) {
	f, c := newFakeToggl(t)
	f.responses["GET /api/v9/workspaces/42/projects"] = `[{"id": 1, "name": "Other"}]`

	assert.Nil(t, c.StartEntry(context.Background(), "Backend", ""))
	assert.Empty(t, f.calls(http.MethodPost))
}

func TestStopEntry(t *testing.T) {
	f, c := newFakeToggl(t)
	f.responses["GET /api/v9/me/time_entries/current"] = `{"id": 55, "duration": -1}`
	f.responses["PATCH /api/v9/workspaces/42/time_entries/55/stop"] = `{"id": 55, "duration": 5400}`

	e := c.StopEntry(context.Background())
	require.NotNil(t, e)
	assert.Equal(t, int64(5400), e.Duration)
	assert.Len(t, f.calls(http.MethodPatch), 1)
}

func TestStopEntry_NothingRunningSendsNoStop(t *testing.T) {
	f, c := newFakeToggl(t)
	f.responses["GET /api/v9/me/time_entries/current"] = `null`

	assert.Nil(t, c.StopEntry(context.Background()))
	assert.Empty(t, f.calls(http.MethodPatch))
}

func TestReport(t *testing.T) {
	f, c := newFakeToggl(t)
	f.responses["GET /reports/api/v2/details"] = `{"total_count": 1, "data": [
		{"id": 1, "start": "2024-01-01T09:00:00+09:00", "dur": 3600000, "project": "P", "description": "D"}
	]}`

	// 2023-12-31T20:00Z is already Jan 1 in JST.
	start := time.Date(2023, 12, 31, 20, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)
	rows := c.Report(context.Background(), start, end)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3600000), rows[0].Dur)
	assert.Equal(t, "P", rows[0].Project)

	gets := f.calls(http.MethodGet)
	require.Len(t, gets, 1)
	assert.Contains(t, gets[0].Query, "workspace_id=42")
	assert.Contains(t, gets[0].Query, "since=2024-01-01")
	assert.Contains(t, gets[0].Query, "until=2024-01-02")
	assert.Contains(t, gets[0].Query, "user_agent=LINE-Toggl-Bot%2F1.1")
}

func TestReport_FailureIsEmpty(t *testing.T) {
	f, c := newFakeToggl(t)
	f.statuses["GET /reports/api/v2/details"] = http.StatusInternalServerError

	assert.Empty(t, c.Report(context.Background(), time.Now(), time.Now()))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
	assert.Equal(t, "", truncateRunes("abc", 0))
}
