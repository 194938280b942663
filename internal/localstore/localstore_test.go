package localstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-datalayer/internal/resource"
	"finance-datalayer/internal/store"
)

func TestAppendListGet(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore())

	list, err := s.List(ctx, resource.Accounts)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.Append(ctx, resource.Accounts, resource.Resource{"id": "a1", "name": "Checking"}))
	require.NoError(t, s.Append(ctx, resource.Accounts, resource.Resource{"id": "a2", "name": "Savings"}))

	list, err = s.List(ctx, resource.Accounts)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a1", list[0].ID())

	r, err := s.Get(ctx, resource.Accounts, "a2")
	require.NoError(t, err)
	assert.Equal(t, "Savings", r["name"])

	_, err = s.Get(ctx, resource.Accounts, "zz")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore())
	require.NoError(t, s.Append(ctx, resource.Goals, resource.Resource{"id": "g1", "target": 100.0}))

	r, err := s.Update(ctx, resource.Goals, "g1", map[string]any{"target": 250.0, "id": "other"})
	require.NoError(t, err)
	assert.Equal(t, 250.0, r["target"])
	assert.Equal(t, "g1", r.ID())

	_, err = s.Update(ctx, resource.Goals, "missing", map[string]any{})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, resource.Goals, "g1"))
	require.NoError(t, s.Delete(ctx, resource.Goals, "g1"))
	list, err := s.List(ctx, resource.Goals)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTripsUseSharedExpensesKey(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	s := New(kv)

	require.NoError(t, s.Append(ctx, resource.Trips, resource.Resource{"id": "t1"}))

	b, err := kv.Get(ctx, "shared-expenses:trips")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"t1"}]`, string(b))
}

func TestReadsLegacyPrefixedKey(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Put(ctx, "pfm_contacts", []byte(`[{"id":"c1","name":"Ana"}]`)))
	s := New(kv)

	list, err := s.List(ctx, resource.Contacts)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID())

	// The first write moves the collection to the plain key.
	require.NoError(t, s.Append(ctx, resource.Contacts, resource.Resource{"id": "c2"}))
	b, err := kv.Get(ctx, "contacts")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"c1","name":"Ana"},{"id":"c2"}]`, string(b))
}

func TestPlainKeyWinsOverLegacy(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Put(ctx, "pfm_investments", []byte(`[{"id":"old"}]`)))
	require.NoError(t, kv.Put(ctx, "investments", []byte(`[{"id":"new"}]`)))

	list, err := New(kv).List(ctx, resource.Investments)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID())
}

func TestUnknownKind(t *testing.T) {
	_, err := New(store.NewMemoryStore()).List(context.Background(), "budgets")
	require.ErrorIs(t, err, resource.ErrUnknownKind)
}
