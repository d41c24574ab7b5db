// Package toggl is a small Toggl Track client. Every call logs its own
// failures and reports them as an absent or empty result.
package toggl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"togglbot/internal/logging"
	"togglbot/internal/model"
)

const (
	DefaultBaseURL    = "https://api.track.toggl.com/api/v9"
	DefaultReportsURL = "https://api.track.toggl.com/reports/api/v2/details"
	DefaultTimeout    = 20 * time.Second

	createdWith     = "LINE Bot"
	reportUserAgent = "LINE-Toggl-Bot/1.1"

	maxDescriptionRunes = 255
	maxLoggedBody       = 512
)

// NewHTTPClient returns the client shared by every session.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

var defaultHTTPClient = NewHTTPClient(DefaultTimeout)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithReportsURL(u string) Option {
	return func(c *Client) { c.reportsURL = u }
}

// WithLocation sets the zone whose calendar dates bound report queries.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client is one user's session, bound to that user's API key and workspace.
type Client struct {
	apiKey      string
	workspaceID string

	http       *http.Client
	baseURL    string
	reportsURL string
	loc        *time.Location
	now        func() time.Time
}

func NewClient(apiKey, workspaceID string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		workspaceID: workspaceID,
		http:        defaultHTTPClient,
		baseURL:     DefaultBaseURL,
		reportsURL:  DefaultReportsURL,
		loc:         time.UTC,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentEntry returns the running entry, or nil when nothing runs or the
// request fails.
func (c *Client) CurrentEntry(ctx context.Context) *model.TimeEntry {
	var e *model.TimeEntry
	if !c.do(ctx, http.MethodGet, c.baseURL+"/me/time_entries/current", nil, &e) {
		return nil
	}
	return e
}

// Projects lists the workspace's projects; empty on failure.
func (c *Client) Projects(ctx context.Context) []model.Project {
	var ps []model.Project
	if !c.do(ctx, http.MethodGet, c.workspaceURL("/projects"), nil, &ps) {
		return nil
	}
	return ps
}

// StartEntry starts a running entry on the project whose name matches
// projectName case-insensitively. It returns nil when no project matches or
// the request fails.
func (c *Client) StartEntry(ctx context.Context, projectName, description string) *model.TimeEntry {
	var project *model.Project
	for _, p := range c.Projects(ctx) {
		if strings.EqualFold(p.Name, projectName) {
			project = &p
			break
		}
	}
	if project == nil {
		logging.Warn().Str("project", projectName).Str("workspace_id", c.workspaceID).Msg("toggl project not found")
		return nil
	}

	wid, err := strconv.ParseInt(c.workspaceID, 10, 64)
	if err != nil {
		logging.Error().Err(err).Str("workspace_id", c.workspaceID).Msg("invalid toggl workspace id")
		return nil
	}

	payload := map[string]any{
		"created_with": createdWith,
		"workspace_id": wid,
		"description":  truncateRunes(description, maxDescriptionRunes),
		"project_id":   project.ID,
		"start":        c.now().UTC().Format(time.RFC3339),
		"duration":     -1,
	}
	var e *model.TimeEntry
	if !c.do(ctx, http.MethodPost, c.workspaceURL("/time_entries"), payload, &e) {
		return nil
	}
	return e
}

// StopEntry stops the running entry and returns it. Nothing is sent when no
// entry is running.
func (c *Client) StopEntry(ctx context.Context) *model.TimeEntry {
	current := c.CurrentEntry(ctx)
	if current == nil {
		return nil
	}
	var e *model.TimeEntry
	path := fmt.Sprintf("/time_entries/%d/stop", current.ID)
	if !c.do(ctx, http.MethodPatch, c.workspaceURL(path), nil, &e) {
		return nil
	}
	return e
}

type reportResponse struct {
	Data []model.ReportEntry `json:"data"`
}

// Report returns the detailed report rows between the calendar dates of
// start and end; empty on failure.
func (c *Client) Report(ctx context.Context, start, end time.Time) []model.ReportEntry {
	q := url.Values{}
	q.Set("workspace_id", c.workspaceID)
	q.Set("since", start.In(c.loc).Format(time.DateOnly))
	q.Set("until", end.In(c.loc).Format(time.DateOnly))
	q.Set("user_agent", reportUserAgent)

	var resp reportResponse
	if !c.do(ctx, http.MethodGet, c.reportsURL+"?"+q.Encode(), nil, &resp) {
		return nil
	}
	return resp.Data
}

func (c *Client) workspaceURL(path string) string {
	return c.baseURL + "/workspaces/" + url.PathEscape(c.workspaceID) + path
}

// do sends one request and decodes a 2xx JSON body into out. It returns false
// after logging when anything goes wrong.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any, out any) bool {
	log := logging.With().Str("method", method).Str("endpoint", redactQuery(endpoint)).Logger()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Msg("encode toggl request")
			return false
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		log.Error().Err(err).Msg("build toggl request")
		return false
	}
	req.SetBasicAuth(c.apiKey, "api_token")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("toggl request failed")
		return false
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Int("status", resp.StatusCode).Msg("read toggl response")
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncateRunes(string(data), maxLoggedBody)).
			Msg("toggl api error")
		return false
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return true
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Error().Err(err).Int("status", resp.StatusCode).Msg("decode toggl response")
		return false
	}
	return true
}

func redactQuery(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Sessions opens per-user clients that share one set of options, and with it
// one *http.Client.
type Sessions struct {
	opts []Option
}

func NewSessions(opts ...Option) *Sessions {
	return &Sessions{opts: opts}
}

func (s *Sessions) Open(c model.Credential) *Client {
	return NewClient(c.APIKey, c.WorkspaceID, s.opts...)
}
