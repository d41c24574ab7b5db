// Package reminder periodically warns users whose Toggl entry has been
// running for too long.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"togglbot/internal/logging"
	"togglbot/internal/model"
	"togglbot/internal/store"
)

const (
	DefaultInterval    = time.Hour
	DefaultThreshold   = 3 * time.Hour
	DefaultConcurrency = 4

	// Failed sweeps back off exponentially between these bounds.
	DefaultRetryInitial = time.Minute
	DefaultRetryMax     = 15 * time.Minute
)

// EntryReader reads one user's running entry. Implementations return nil
// when nothing runs or the lookup fails.
type EntryReader interface {
	CurrentEntry(ctx context.Context) *model.TimeEntry
}

type ReaderFactory func(model.Credential) EntryReader

// Pusher delivers an unsolicited message to a user.
type Pusher interface {
	Push(ctx context.Context, userID, text string) error
}

// CredentialSource lists registered users. *store.Records satisfies it.
type CredentialSource interface {
	Credentials(ctx context.Context) ([]store.UserCredential, error)
}

type Config struct {
	Interval     time.Duration
	Threshold    time.Duration
	Concurrency  int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = DefaultRetryInitial
	}
	if c.RetryMax < c.RetryInitial {
		c.RetryMax = max(DefaultRetryMax, c.RetryInitial)
	}
	return c
}

// Result summarizes one sweep.
type Result struct {
	Checked  int `json:"checked"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

type Scheduler struct {
	creds  CredentialSource
	open   ReaderFactory
	pusher Pusher
	cfg    Config
	now    func() time.Time

	started atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(creds CredentialSource, open ReaderFactory, pusher Pusher, cfg Config) *Scheduler {
	return &Scheduler{
		creds:  creds,
		open:   open,
		pusher: pusher,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

// Start launches the sweep loop. Only the first call has any effect; it
// reports whether this call started the loop.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(ctx, done)

	logging.Info().
		Dur("interval", s.cfg.Interval).
		Dur("threshold", s.cfg.Threshold).
		Msg("reminder scheduler started")
	return true
}

// Stop cancels the loop and waits for the current sweep to return. It is a
// no-op when the loop never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.cfg.RetryInitial
	retry.MaxInterval = s.cfg.RetryMax
	retry.MaxElapsedTime = 0
	retry.Reset()

	wait := s.cfg.Interval
	for {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		res, err := s.guardedSweep(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			wait = retry.NextBackOff()
			logging.Error().Err(err).Dur("retry_in", wait).Msg("reminder sweep failed")
			continue
		}

		retry.Reset()
		wait = s.cfg.Interval
		logging.Info().
			Int("checked", res.Checked).
			Int("notified", res.Notified).
			Int("failed", res.Failed).
			Msg("reminder sweep done")
	}
}

// guardedSweep turns a panic escaping Sweep into an error.
func (s *Scheduler) guardedSweep(ctx context.Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	return s.Sweep(ctx)
}

// Sweep checks every registered user once. Failures for one user are logged
// and counted; only failing to list users is returned as an error.
func (s *Scheduler) Sweep(ctx context.Context) (Result, error) {
	users, err := s.creds.Credentials(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load credentials: %w", err)
	}

	var notified, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, u := range users {
		u := u
		g.Go(func() error {
			sent, err := s.checkUser(gctx, u)
			if err != nil {
				failed.Add(1)
				logging.Error().Err(err).Str("user_id", u.UserID).Msg("reminder check failed")
				return nil
			}
			if sent {
				notified.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return Result{
		Checked:  len(users),
		Notified: int(notified.Load()),
		Failed:   int(failed.Load()),
	}, nil
}

var errNoStart = errors.New("running entry has no start time")

func (s *Scheduler) checkUser(ctx context.Context, u store.UserCredential) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	e := s.open(u.Credential).CurrentEntry(ctx)
	if e == nil || !e.Running() {
		return false, nil
	}
	if strings.TrimSpace(e.Start) == "" {
		return false, errNoStart
	}
	start, err := e.StartTime()
	if err != nil {
		return false, err
	}

	elapsed := s.now().Sub(start)
	if elapsed <= s.cfg.Threshold {
		return false, nil
	}

	if err := s.pusher.Push(ctx, u.UserID, Message(e.Description, elapsed)); err != nil {
		return false, fmt.Errorf("push: %w", err)
	}
	logging.Info().Str("user_id", u.UserID).Dur("elapsed", elapsed).Msg("long-running entry reminder sent")
	return true, nil
}

// Message is the push text for an entry running for elapsed.
func Message(description string, elapsed time.Duration) string {
	if strings.TrimSpace(description) == "" {
		description = "(none)"
	}
	mins := int64(elapsed / time.Minute)
	return fmt.Sprintf("⚠ Long-running entry!\nProject: %s\nElapsed: %dh %dm", description, mins/60, mins%60)
}
