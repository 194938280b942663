package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-datalayer/internal/resource"
	"finance-datalayer/internal/store"
)

func TestLastWriteWins(t *testing.T) {
	older := resource.Resource{"id": "g1", "current": 10.0, "updatedAt": "2024-01-01T10:00:00Z"}
	newer := resource.Resource{"id": "g1", "current": 20.0, "updatedAt": "2024-01-02T10:00:00Z"}

	s := LastWriteWinsStrategy{}
	assert.Equal(t, newer, s.Resolve(older, newer))
	assert.Equal(t, newer, s.Resolve(newer, older))

	tie := resource.Resource{"id": "g1", "current": 30.0, "updatedAt": "2024-01-02T10:00:00Z"}
	assert.Equal(t, tie, s.Resolve(newer, tie))
}

func TestResolveConflictRecordsDivergence(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	cm := NewConflictManager(st)

	local := resource.Resource{"id": "a1", "name": "Local", "updatedAt": "2024-03-02T00:00:00Z"}
	remote := resource.Resource{"id": "a1", "name": "Remote", "updatedAt": "2024-03-01T00:00:00Z"}

	winner, err := cm.ResolveConflict(ctx, resource.Accounts, local, remote)
	require.NoError(t, err)
	assert.Equal(t, "Local", winner["name"])

	resolved, err := st.ListConflicts(ctx, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "accounts", resolved[0].Resource)
	assert.Equal(t, "a1", resolved[0].ResourceID)
	assert.Equal(t, StrategyLastWriteWins, resolved[0].ResolutionStrategy.String)
	assert.JSONEq(t, `{"id":"a1","name":"Local","updatedAt":"2024-03-02T00:00:00Z"}`, string(resolved[0].ResolvedData))
}

func TestResolveConflictIdenticalCopies(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	r := resource.Resource{"id": "c1", "name": "Ana"}
	_, err := NewConflictManager(st).ResolveConflict(ctx, resource.Contacts, r, r.Clone())
	require.NoError(t, err)

	all, err := st.ListConflicts(ctx, true, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
