// Package command turns one chat message into Toggl calls and a reply.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"togglbot/internal/logging"
	"togglbot/internal/model"
	"togglbot/internal/store"
)

const (
	MaxReportDays   = 30
	maxUserNameRunes = 50
)

// Tracker is the subset of the Toggl client the commands use. Implementations
// log their own failures and return nil or empty results.
type Tracker interface {
	CurrentEntry(ctx context.Context) *model.TimeEntry
	StartEntry(ctx context.Context, projectName, description string) *model.TimeEntry
	StopEntry(ctx context.Context) *model.TimeEntry
	Report(ctx context.Context, start, end time.Time) []model.ReportEntry
}

// TrackerFactory opens a session for one registered user.
type TrackerFactory func(model.Credential) Tracker

type Option func(*Dispatcher)

// WithLocation sets the zone used for report dates and displayed times.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

type Dispatcher struct {
	records    *store.Records
	newTracker TrackerFactory
	loc        *time.Location
	now        func() time.Time
}

func NewDispatcher(records *store.Records, newTracker TrackerFactory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		records:    records,
		newTracker: newTracker,
		loc:        time.UTC,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var errNotRegistered = errors.New("not registered")

// Handle records the invocation and returns the reply for text. It never
// panics and never returns an empty reply.
func (d *Dispatcher) Handle(ctx context.Context, userID, text string) (reply string) {
	log := logging.With().Str("user_id", userID).Logger()

	if _, err := d.records.RecordUsage(ctx, userID, d.now()); err != nil {
		log.Warn().Err(err).Msg("record usage")
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("command panicked")
			reply = fmt.Sprintf("⚠ error: %v", r)
		}
	}()

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return helpText
	}
	keyword, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch keyword {
	case "register":
		reply, err = d.register(ctx, userID, args)
	case "start":
		reply, err = d.start(ctx, userID, args)
	case "stop":
		reply, err = d.stop(ctx, userID)
	case "status":
		reply, err = d.status(ctx, userID)
	case "report":
		reply, err = d.report(ctx, userID, args)
	default:
		return helpText
	}

	if errors.Is(err, errNotRegistered) {
		return msgRegisterFirst
	}
	if errors.Is(err, store.ErrLocked) {
		log.Warn().Err(err).Str("command", keyword).Msg("store busy")
		return msgStoreBusy
	}
	if err != nil {
		log.Error().Err(err).Str("command", keyword).Msg("command failed")
		return "⚠ error: " + err.Error()
	}
	return reply
}

func (d *Dispatcher) register(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) < 3 {
		return msgRegisterUsage, nil
	}
	if _, err := strconv.ParseInt(args[2], 10, 64); err != nil {
		return msgWorkspaceNumeric, nil
	}

	c := model.Credential{
		UserName:    truncateRunes(args[0], maxUserNameRunes),
		APIKey:      args[1],
		WorkspaceID: args[2],
	}
	if err := d.records.PutCredential(ctx, userID, c); err != nil {
		return "", fmt.Errorf("save credential: %w", err)
	}
	logging.Info().Str("user_id", userID).Str("workspace_id", c.WorkspaceID).Msg("user registered")
	return "✅ Registered", nil
}

// tracker opens a session for a registered user.
func (d *Dispatcher) tracker(ctx context.Context, userID string) (Tracker, error) {
	c, err := d.records.Credential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if c == nil {
		return nil, errNotRegistered
	}
	return d.newTracker(*c), nil
}

func (d *Dispatcher) start(ctx context.Context, userID string, args []string) (string, error) {
	t, err := d.tracker(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return msgProjectRequired, nil
	}

	project := args[0]
	if t.StartEntry(ctx, project, strings.Join(args[1:], " ")) == nil {
		return fmt.Sprintf("⚠ Could not start tracking %s. Check the project name.", project), nil
	}
	return fmt.Sprintf("⏱ Started tracking %s", project), nil
}

func (d *Dispatcher) stop(ctx context.Context, userID string) (string, error) {
	t, err := d.tracker(ctx, userID)
	if err != nil {
		return "", err
	}

	e := t.StopEntry(ctx)
	if e == nil {
		return msgNoRunningEntry, nil
	}
	return fmt.Sprintf("⏹ Stopped (duration %s)", formatHM(time.Duration(e.Duration)*time.Second)), nil
}

func (d *Dispatcher) status(ctx context.Context, userID string) (string, error) {
	t, err := d.tracker(ctx, userID)
	if err != nil {
		return "", err
	}

	e := t.CurrentEntry(ctx)
	if e == nil || !e.Running() {
		return msgNothingRunning, nil
	}
	start, err := e.StartTime()
	if err != nil {
		return "", fmt.Errorf("entry start: %w", err)
	}

	elapsed := d.now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	return fmt.Sprintf("🔄 Tracking\nProject: %s\nSince: %s\nElapsed: %s",
		orNone(e.Description),
		start.In(d.loc).Format("01/02 15:04"),
		formatHM(elapsed),
	), nil
}

func (d *Dispatcher) report(ctx context.Context, userID string, args []string) (string, error) {
	t, err := d.tracker(ctx, userID)
	if err != nil {
		return "", err
	}

	days := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return msgDaysNumeric, nil
		}
		days = ClampDays(n)
	}

	end := d.now().In(d.loc)
	start := end.AddDate(0, 0, -days)
	return FormatReport(t.Report(ctx, start, end), d.loc), nil
}

// ClampDays maps a requested report span onto 1..MaxReportDays.
func ClampDays(n int) int {
	switch {
	case n <= 0:
		return 1
	case n > MaxReportDays:
		return MaxReportDays
	default:
		return n
	}
}

// formatHM renders d as H:MM, truncating seconds.
func formatHM(d time.Duration) string {
	mins := int64(d / time.Minute)
	return fmt.Sprintf("%d:%02d", mins/60, mins%60)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
