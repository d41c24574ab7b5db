package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"togglbot/internal/store"
)

// setupTestDB skips when DATABASE_URL is not set. Each test gets its own
// document names so runs do not interfere.
func setupTestDB(t *testing.T) *Store {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set, skipping PostgreSQL tests")
	}

	s, err := NewStore(databaseURL)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func docName(t *testing.T, s *Store) string {
	name := "test_" + t.Name()
	// Registered after setupTestDB, so it runs before the pool is closed.
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), `delete from documents where name = $1`, name)
	})
	return name
}

func TestPostgres_LoadMissingIsEmpty(t *testing.T) {
	s := setupTestDB(t)
	name := docName(t, s)

	doc, err := s.Load(context.Background(), name)
	require.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Empty(t, doc)
}

func TestPostgres_SaveLoad(t *testing.T) {
	s := setupTestDB(t)
	name := docName(t, s)
	ctx := context.Background()

	in := store.Document{"U1": json.RawMessage(`{"user_name":"山田","api_key":"k","workspace_id":"1"}`)}
	require.NoError(t, s.Save(ctx, name, in))

	out, err := s.Load(ctx, name)
	require.NoError(t, err)
	require.Contains(t, out, "U1")
	assert.JSONEq(t, string(in["U1"]), string(out["U1"]))
}

func TestPostgres_UpdateErrorWritesNothing(t *testing.T) {
	s := setupTestDB(t)
	name := docName(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Update(ctx, name, func(doc store.Document) error {
		doc["U1"] = json.RawMessage(`1`)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	doc, err := s.Load(ctx, name)
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestPostgres_ConcurrentUpdatesAllPersist(t *testing.T) {
	s := setupTestDB(t)
	name := docName(t, s)
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Update(ctx, name, func(doc store.Document) error {
				doc[fmt.Sprintf("U%d", i)] = json.RawMessage(`true`)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	doc, err := s.Load(ctx, name)
	require.NoError(t, err)
	assert.Len(t, doc, writers)
}
