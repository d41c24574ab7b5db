package model

import (
	"fmt"
	"time"
)

// TimeEntry is the Toggl Track v9 view of one tracked interval.
// Start is kept as the raw provider string so a malformed value surfaces
// where it is used instead of failing the whole decode.
type TimeEntry struct {
	ID          int64  `json:"id"`
	WorkspaceID int64  `json:"workspace_id"`
	ProjectID   *int64 `json:"project_id,omitempty"`
	Description string `json:"description"`
	Start       string `json:"start"`
	Stop        string `json:"stop,omitempty"`
	// Duration is in seconds; negative while the entry is running.
	Duration int64 `json:"duration"`
}

// Running reports whether the entry carries the provider's running sentinel.
func (e TimeEntry) Running() bool {
	return e.Duration < 0
}

// StartTime parses Start, treating a value without a zone offset as UTC.
func (e TimeEntry) StartTime() (time.Time, error) {
	return ParseInstant(e.Start, time.UTC)
}

type Project struct {
	ID          int64  `json:"id"`
	WorkspaceID int64  `json:"workspace_id"`
	Name        string `json:"name"`
	Active      bool   `json:"active"`
}

// ReportEntry is one row of the Toggl Reports v2 detailed report.
type ReportEntry struct {
	ID    int64  `json:"id"`
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
	// Dur is in milliseconds, unlike TimeEntry.Duration.
	Dur         int64  `json:"dur"`
	Project     string `json:"project"`
	Description string `json:"description"`
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseInstant parses an ISO-8601 timestamp. Values without an offset are
// interpreted in loc.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range instantLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}
