package memory

import (
	"context"
	"encoding/json"
	"sync"

	"togglbot/internal/store"
)

// Store keeps documents in process memory. It satisfies store.Store for tests
// and single-process deployments that do not need persistence.
type Store struct {
	mu   sync.Mutex
	docs map[string]store.Document
}

func NewStore() *Store {
	return &Store{docs: make(map[string]store.Document)}
}

func (s *Store) Load(ctx context.Context, name string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return clone(s.docs[name]), nil
}

func (s *Store) Save(ctx context.Context, name string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[name] = clone(doc)
	return nil
}

// clone copies both the map and the raw values so callers never share
// backing arrays with the stored document.
func clone(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func (s *Store) Update(ctx context.Context, name string, fn func(store.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := clone(s.docs[name])
	if err := fn(doc); err != nil {
		return err
	}
	s.docs[name] = doc
	return nil
}
