package command

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"togglbot/internal/logging"
	"togglbot/internal/model"
)

const (
	maxDetailLines    = 20
	maxSummaryRunes   = 2000
	maxDetailRunes    = 3000
	maxProjectRunes   = 20
	maxDescRunes      = 30
	millisecondsPerHr = 3600000
)

// FormatReport renders per-day totals followed by the most recent detail
// lines. Dates and times are shown in loc. Entries without a parsable start
// are skipped.
func FormatReport(entries []model.ReportEntry, loc *time.Location) string {
	totals := map[string]int64{}
	var details []string

	for _, e := range entries {
		start, err := model.ParseInstant(e.Start, loc)
		if err != nil {
			logging.Warn().Err(err).Int64("entry_id", e.ID).Msg("skipping report entry")
			continue
		}
		start = start.In(loc)

		totals[start.Format(time.DateOnly)] += e.Dur
		details = append(details, fmt.Sprintf("%s | %s | %s | %s",
			start.Format("01/02 15:04"),
			truncateRunes(orNone(e.Project), maxProjectRunes),
			truncateRunes(orNone(e.Description), maxDescRunes),
			formatMillis(e.Dur),
		))
	}

	dates := make([]string, 0, len(totals))
	for date := range totals {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	summary := make([]string, 0, len(dates))
	for _, date := range dates {
		summary = append(summary, fmt.Sprintf("📅 %s: %s", date, formatMillis(totals[date])))
	}

	if len(details) > maxDetailLines {
		details = details[len(details)-maxDetailLines:]
	}

	var b strings.Builder
	b.WriteString("📊 Work report\n")
	if len(summary) == 0 {
		b.WriteString("No entries in this period.")
		return b.String()
	}
	b.WriteString(truncateRunes(strings.Join(summary, "\n"), maxSummaryRunes))
	b.WriteString("\n\nDetails:\n")
	b.WriteString(truncateRunes(strings.Join(details, "\n"), maxDetailRunes))
	return b.String()
}

// formatMillis renders a millisecond duration as HH:MM.
func formatMillis(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d", ms/millisecondsPerHr, ms%millisecondsPerHr/60000)
}
