package resource

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, k := range Kinds() {
		s, err := Lookup(k)
		require.NoError(t, err)
		assert.Equal(t, k, s.Kind)
		assert.NotEmpty(t, s.ListKey)
		assert.NotEmpty(t, s.ItemKey)
		assert.NotEmpty(t, s.StorageKey)
	}

	_, err := Lookup("budgets")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestSpecPaths(t *testing.T) {
	s, err := Lookup(SharedDebts)
	require.NoError(t, err)
	assert.Equal(t, "/shared-debts", s.CollectionPath())
	assert.Equal(t, "/shared-debts/d1", s.ItemPath("d1"))
}

func TestUnwrapList(t *testing.T) {
	tx, _ := Lookup(Transactions)
	acc, _ := Lookup(Accounts)

	got, err := tx.UnwrapList(json.RawMessage(`{"transactions":[{"id":"1"}],"total":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1"}]`, string(got))

	got, err = acc.UnwrapList(json.RawMessage(` [{"id":"a"}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a"}]`, string(got))

	got, err = acc.UnwrapList(json.RawMessage(`{"data":[{"id":"a"}]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a"}]`, string(got))

	_, err = acc.UnwrapList(json.RawMessage(`{"transactions":[]}`))
	require.Error(t, err)
}

func TestUnwrapItem(t *testing.T) {
	goals, _ := Lookup(Goals)

	got, err := goals.UnwrapItem(json.RawMessage(`{"goal":{"id":"g1","target":100}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"g1","target":100}`, string(got))

	got, err = goals.UnwrapItem(json.RawMessage(`{"id":"g1"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"g1"}`, string(got))

	got, err = goals.Unwrap(json.RawMessage(`{"goals":[]}`), false)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(got))
}

func TestResourceHelpers(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Resource{"id": "x", "name": "Checking"}
	r.Touch(now)

	assert.Equal(t, "x", r.ID())
	assert.Equal(t, now, r.UpdatedAt())
	assert.Equal(t, Timestamp(now), r["createdAt"])
	assert.False(t, r.Offline())

	merged := r.Merge(map[string]any{"name": "Savings", OfflineMarker: true})
	assert.Equal(t, "Savings", merged["name"])
	assert.True(t, merged.Offline())
	assert.Equal(t, "Checking", r["name"])

	assert.True(t, Resource{}.UpdatedAt().IsZero())
}

func TestTransactionValidate(t *testing.T) {
	tx := Transaction{Amount: decimal.NewFromFloat(12.5), Type: Expense, Category: "food", AccountID: "a1"}
	require.NoError(t, tx.Validate())

	bad := tx
	bad.Type = "transfer"
	require.ErrorIs(t, bad.Validate(), ErrInvalidTransaction)

	bad = tx
	bad.Amount = decimal.NewFromInt(-1)
	require.ErrorIs(t, bad.Validate(), ErrInvalidTransaction)

	bad = tx
	bad.AccountID = ""
	require.ErrorIs(t, bad.Validate(), ErrInvalidTransaction)
}

func TestTransactionFrom(t *testing.T) {
	tx, err := TransactionFrom(Resource{"amount": "19.99", "type": "income", "category": "salary", "accountId": "a"})
	require.NoError(t, err)
	assert.Equal(t, Income, tx.Type)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("19.99")))

	_, err = TransactionFrom(Resource{"amount": "abc"})
	require.ErrorIs(t, err, ErrInvalidTransaction)
}
