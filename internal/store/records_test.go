package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"togglbot/internal/model"
	"togglbot/internal/store"
	"togglbot/internal/store/file"
	"togglbot/internal/store/memory"
)

func TestCredential_Unregistered(t *testing.T) {
	r := store.NewRecords(memory.NewStore())

	c, err := r.Credential(context.Background(), "U1")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestPutCredential_RoundTrip(t *testing.T) {
	r := store.NewRecords(file.NewStore(t.TempDir()))
	ctx := context.Background()

	want := model.Credential{UserName: "alice", APIKey: "key", WorkspaceID: "123"}
	require.NoError(t, r.PutCredential(ctx, "U1", want))

	got, err := r.Credential(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	// Overwrite keeps a single record.
	want.APIKey = "rotated"
	require.NoError(t, r.PutCredential(ctx, "U1", want))
	all, err := r.Credentials(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "rotated", all[0].APIKey)
}

func TestPutCredential_ConcurrentUsersAllPersist(t *testing.T) {
	r := store.NewRecords(file.NewStore(t.TempDir()))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.PutCredential(ctx, fmt.Sprintf("U%d", i), model.Credential{
				UserName: fmt.Sprintf("user%d", i), APIKey: "k", WorkspaceID: "1",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := r.Credentials(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestCredentials_SkipsUndecodableAndSorts(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, store.UsersDoc, store.Document{
		"U2": json.RawMessage(`{"user_name":"b","api_key":"k2","workspace_id":"2"}`),
		"U1": json.RawMessage(`{"user_name":"a","api_key":"k1","workspace_id":"1"}`),
		"U3": json.RawMessage(`"garbage"`),
	}))

	all, err := store.NewRecords(st).Credentials(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "U1", all[0].UserID)
	assert.Equal(t, "U2", all[1].UserID)
	assert.Equal(t, "k2", all[1].APIKey)
}

func TestRecordUsage_Increments(t *testing.T) {
	r := store.NewRecords(memory.NewStore())
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	u, err := r.RecordUsage(ctx, "U1", t0)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Count)

	u, err = r.RecordUsage(ctx, "U1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, u.Count)
	assert.True(t, u.LastUsed.Equal(t0.Add(time.Minute)))

	all, err := r.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, all["U1"].Count)
}

func TestRecordUsage_ConcurrentNoLostIncrements(t *testing.T) {
	r := store.NewRecords(file.NewStore(t.TempDir()))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.RecordUsage(ctx, "U1", time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := r.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, all["U1"].Count)
}

func TestRecordUsage_ReadsLegacyTimestamps(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, store.UsageDoc, store.Document{
		"U1": json.RawMessage(`{"count": 7, "last_used": "2024-05-01T12:00:00.123456"}`),
	}))

	u, err := store.NewRecords(st).RecordUsage(ctx, "U1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 8, u.Count)
}
