package main

import (
	"context"
	"fmt"

	"togglbot/internal/command"
	"togglbot/internal/config"
	"togglbot/internal/line"
	"togglbot/internal/logging"
	"togglbot/internal/model"
	"togglbot/internal/reminder"
	"togglbot/internal/store"
	"togglbot/internal/store/file"
	"togglbot/internal/store/memory"
	"togglbot/internal/store/postgres"
	"togglbot/internal/toggl"
)

// app holds the components both subcommands share.
type app struct {
	cfg       config.Config
	records   *store.Records
	sessions  *toggl.Sessions
	messenger *line.Messenger
	closer    func()
}

func loadConfig() config.Config {
	cfg := config.Load()
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})
	return cfg
}

func newApp(cfg config.Config) (*app, error) {
	st, closer, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	messenger, err := line.NewMessenger(cfg.LineChannelToken)
	if err != nil {
		closer()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		records: store.NewRecords(st),
		sessions: toggl.NewSessions(
			toggl.WithHTTPClient(toggl.NewHTTPClient(cfg.TogglTimeout)),
			toggl.WithLocation(cfg.Location()),
		),
		messenger: messenger,
		closer:    closer,
	}, nil
}

func (a *app) Close() {
	a.closer()
}

func openStore(cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := postgres.NewStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		if err := pg.EnsureSchema(context.Background()); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("init postgres schema: %w", err)
		}
		logging.Info().Msg("using postgres store")
		return pg, pg.Close, nil
	case config.BackendMemory:
		logging.Warn().Msg("using memory store; registrations are lost on restart")
		return memory.NewStore(), func() {}, nil
	default:
		logging.Info().Str("dir", cfg.DataDir).Msg("using file store")
		return file.NewStore(cfg.DataDir), func() {}, nil
	}
}

func (a *app) dispatcher() *command.Dispatcher {
	return command.NewDispatcher(a.records, func(c model.Credential) command.Tracker {
		return a.sessions.Open(c)
	}, command.WithLocation(a.cfg.Location()))
}

func (a *app) reminderConfig() reminder.Config {
	return reminder.Config{
		Interval:    a.cfg.RemindInterval,
		Threshold:   a.cfg.RemindThreshold,
		Concurrency: a.cfg.RemindConcurrency,
	}
}

func (a *app) scheduler(rc reminder.Config) *reminder.Scheduler {
	return reminder.New(a.records, func(c model.Credential) reminder.EntryReader {
		return a.sessions.Open(c)
	}, a.messenger, rc)
}
