// Package file stores each document as an indented JSON file guarded by an
// advisory lock file.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"togglbot/internal/logging"
	"togglbot/internal/store"
)

type Store struct {
	dir string

	mu    sync.Mutex
	gates map[string]chan struct{}
}

// NewStore keeps documents as <dir>/<name>.json.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		gates: make(map[string]chan struct{}),
	}
}

// Path returns the JSON file backing the named document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *Store) Load(ctx context.Context, name string) (store.Document, error) {
	var doc store.Document
	err := s.withLock(ctx, name, func(path string) error {
		doc = readDocument(path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Save(ctx context.Context, name string, doc store.Document) error {
	return s.withLock(ctx, name, func(path string) error {
		return writeDocument(path, doc)
	})
}

func (s *Store) Update(ctx context.Context, name string, fn func(store.Document) error) error {
	return s.withLock(ctx, name, func(path string) error {
		doc := readDocument(path)
		if err := fn(doc); err != nil {
			return err
		}
		return writeDocument(path, doc)
	})
}

// withLock serializes goroutines on an in-process gate, then other
// processes on the flock, and releases both on every return path.
func (s *Store) withLock(ctx context.Context, name string, fn func(path string) error) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid document name %q", name)
	}
	path := s.Path(name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	gate := s.gate(path)
	select {
	case gate <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", store.ErrLocked, path, ctx.Err())
	}
	defer func() { <-gate }()

	lock, err := lockFile(ctx, path+".lock")
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.unlock(); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("release file lock")
		}
	}()

	return fn(path)
}

func (s *Store) gate(path string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gates[path]
	if !ok {
		g = make(chan struct{}, 1)
		s.gates[path] = g
	}
	return g
}

// readDocument never fails: absence, an empty file, or undecodable content
// all read as an empty document.
func readDocument(path string) store.Document {
	doc := store.Document{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", path).Msg("read document; treating as empty")
		}
		return doc
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		logging.Warn().Err(err).Str("path", path).Msg("corrupt document; treating as empty")
		return store.Document{}
	}
	return doc
}

// writeDocument writes indented UTF-8 JSON to a temp file and renames it over
// path so a crash never leaves a half-written document behind.
func writeDocument(path string, doc store.Document) error {
	if doc == nil {
		doc = store.Document{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
