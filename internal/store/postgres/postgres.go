// Package postgres keeps each document as one jsonb row, serialized per name
// with a transaction-scoped advisory lock.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"togglbot/internal/logging"
	"togglbot/internal/store"
)

const schema = `
	create table if not exists documents (
		name       text primary key,
		body       jsonb not null default '{}'::jsonb,
		updated_at timestamptz not null default now()
	)
`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	// Ping to fail fast.
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the documents table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return mapPgErr(err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, name string) (store.Document, error) {
	var doc store.Document
	err := s.inTx(ctx, name, func(tx pgx.Tx) error {
		var err error
		doc, err = selectDocument(ctx, tx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Save(ctx context.Context, name string, doc store.Document) error {
	return s.inTx(ctx, name, func(tx pgx.Tx) error {
		return upsertDocument(ctx, tx, name, doc)
	})
}

func (s *Store) Update(ctx context.Context, name string, fn func(store.Document) error) error {
	return s.inTx(ctx, name, func(tx pgx.Tx) error {
		doc, err := selectDocument(ctx, tx, name)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return upsertDocument(ctx, tx, name, doc)
	})
}

// inTx runs fn in a transaction holding the advisory lock for name. The lock
// is released on commit or rollback.
func (s *Store) inTx(ctx context.Context, name string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPgErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %v", store.ErrLocked, name, ctx.Err())
		}
		return mapPgErr(err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgErr(err)
	}
	return nil
}

func selectDocument(ctx context.Context, tx pgx.Tx, name string) (store.Document, error) {
	var body []byte
	err := tx.QueryRow(ctx, `
		select body
		from documents
		where name = $1
	`, name).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, nil
		}
		return nil, mapPgErr(err)
	}

	var doc store.Document
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		logging.Warn().Err(err).Str("document", name).Msg("corrupt document; treating as empty")
		return store.Document{}, nil
	}
	return doc, nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, name string, doc store.Document) error {
	if doc == nil {
		doc = store.Document{}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	_, err = tx.Exec(ctx, `
		insert into documents (name, body, updated_at)
		values ($1, $2::jsonb, now())
		on conflict (name) do update
		set body = excluded.body,
		    updated_at = now()
	`, name, string(body))
	if err != nil {
		return mapPgErr(err)
	}
	return nil
}

func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("db_error %s: %s", pgErr.Code, pgErr.Message)
	}
	return err
}
