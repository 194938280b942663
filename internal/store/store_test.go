package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-datalayer/internal/config"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestDocuments(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			v, err := s.Get(ctx, "absent")
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, s.Put(ctx, "transactions", []byte(`[]`)))
			require.NoError(t, s.Put(ctx, "transactions", []byte(`[{"id":"1"}]`)))
			require.NoError(t, s.Put(ctx, "pfm_goals", []byte(`[]`)))

			v, err = s.Get(ctx, "transactions")
			require.NoError(t, err)
			assert.JSONEq(t, `[{"id":"1"}]`, string(v))

			keys, err := s.Keys(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"pfm_goals", "transactions"}, keys)

			keys, err = s.Keys(ctx, "pfm_")
			require.NoError(t, err)
			assert.Equal(t, []string{"pfm_goals"}, keys)

			require.NoError(t, s.Delete(ctx, "transactions"))
			require.NoError(t, s.Delete(ctx, "transactions"))
			v, err = s.Get(ctx, "transactions")
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestConflicts(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			detected := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

			c := &Conflict{
				ID:           "c1",
				Resource:     "accounts",
				ResourceID:   "a1",
				LocalData:    json.RawMessage(`{"id":"a1","name":"local"}`),
				RemoteData:   json.RawMessage(`{"id":"a1","name":"remote"}`),
				ConflictType: "update_update",
				DetectedAt:   detected,
			}
			require.NoError(t, s.CreateConflict(ctx, c))

			got, err := s.GetConflict(ctx, "c1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "accounts", got.Resource)
			assert.JSONEq(t, string(c.LocalData), string(got.LocalData))
			assert.True(t, detected.Equal(got.DetectedAt))
			assert.False(t, got.Resolved)

			open, err := s.ListConflicts(ctx, false, 10, 0)
			require.NoError(t, err)
			assert.Len(t, open, 1)

			require.NoError(t, s.ResolveConflict(ctx, "c1", "last_write_wins", []byte(`{"id":"a1","name":"remote"}`)))

			got, err = s.GetConflict(ctx, "c1")
			require.NoError(t, err)
			assert.True(t, got.Resolved)
			assert.Equal(t, sql.NullString{String: "last_write_wins", Valid: true}, got.ResolutionStrategy)
			assert.True(t, got.ResolvedAt.Valid)

			open, err = s.ListConflicts(ctx, false, 10, 0)
			require.NoError(t, err)
			assert.Empty(t, open)

			missing, err := s.GetConflict(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestSyncHistory(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

			for i, id := range []string{"h1", "h2"} {
				require.NoError(t, s.CreateSyncHistory(ctx, &SyncHistory{
					ID:        id,
					StartedAt: start.Add(time.Duration(i) * time.Minute),
					Trigger:   "manual",
					Status:    HistoryRunning,
				}))
			}

			h := &SyncHistory{
				ID:          "h1",
				CompletedAt: sql.NullTime{Time: start.Add(time.Second), Valid: true},
				Processed:   3,
				Failed:      1,
				Status:      HistoryCompleted,
			}
			require.NoError(t, s.UpdateSyncHistory(ctx, h))

			list, err := s.GetSyncHistory(ctx, 10, 0)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "h2", list[0].ID)
			assert.Equal(t, "h1", list[1].ID)
			assert.Equal(t, int64(3), list[1].Processed)
			assert.Equal(t, 1, list[1].Failed)
			assert.Equal(t, HistoryCompleted, list[1].Status)
			assert.True(t, list[1].CompletedAt.Valid)

			list, err = s.GetSyncHistory(ctx, 1, 1)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "h1", list[0].ID)
		})
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "pending_operations", []byte(`[{"id":"op1"}]`)))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, "pending_operations")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"op1"}]`, string(v))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StateStorage{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, config.StateStorage{Type: "sqlite", FilePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StateStorage{Type: "postgres"})
	require.Error(t, err)
}
