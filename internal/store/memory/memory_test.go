package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"togglbot/internal/store"
)

func TestLoad_UnknownIsEmpty(t *testing.T) {
	s := NewStore()
	doc, err := s.Load(context.Background(), "toggl_users")
	assert.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Empty(t, doc)
}

func TestSave_IsolatedFromCaller(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	doc := store.Document{"U1": json.RawMessage(`{"n":1}`)}
	require.NoError(t, s.Save(ctx, "d", doc))

	doc["U2"] = json.RawMessage(`{"n":2}`)
	doc["U1"][5] = '9'

	loaded, err := s.Load(ctx, "d")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.JSONEq(t, `{"n":1}`, string(loaded["U1"]))

	loaded["U3"] = json.RawMessage(`3`)
	again, err := s.Load(ctx, "d")
	require.NoError(t, err)
	assert.NotContains(t, again, "U3")
}

func TestUpdate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, "d", func(doc store.Document) error {
		doc["U1"] = json.RawMessage(`1`)
		return nil
	}))

	boom := errors.New("boom")
	err := s.Update(ctx, "d", func(doc store.Document) error {
		doc["U2"] = json.RawMessage(`2`)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	doc, err := s.Load(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, store.Document{"U1": json.RawMessage(`1`)}, doc)
}

func TestCancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Load(ctx, "d")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Save(ctx, "d", store.Document{}), context.Canceled)
}
