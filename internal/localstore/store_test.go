package localstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/core"
	"budgetsync/internal/localstore"
	"budgetsync/internal/localstore/memory"
)

func sampleData() core.LocalData {
	data := core.EmptyData(core.DefaultUser("u1", "u1@example.com", "Ada", "", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	data.Transactions = append(data.Transactions, core.Transaction{
		ID: "t1", Type: core.Expense, Amount: core.NewMoney(50), Description: "Groceries",
		Category: "Food & Dining", Date: "2024-01-05", CreatedAt: "2024-01-05T10:00:00.000Z",
	})
	return data
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := localstore.New(memory.New())

	got, err := s.GetLocalData(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SaveLocalData(ctx, sampleData()))

	got, err = s.GetLocalData(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Transactions, 1)
	assert.Equal(t, "50.00", got.Transactions[0].Amount.String())
	assert.Len(t, got.Categories, 15)
	assert.Equal(t, "u1", got.User.ID)
}

func TestStore_CorruptDataIsEvicted(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	require.NoError(t, kv.Set(ctx, localstore.DataKey, "{not json"))
	s := localstore.New(kv)

	got, err := s.GetLocalData(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, ok, _ := kv.Get(ctx, localstore.DataKey)
	assert.False(t, ok, "corrupt entry should be removed")
}

func TestStore_SyncTimestamp(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	kv := memory.New()
	s := localstore.New(kv, localstore.WithClock(func() time.Time { return now }))

	assert.Equal(t, int64(0), s.LastSyncTimestamp(ctx))
	assert.True(t, s.LastSync(ctx).IsZero())

	require.NoError(t, s.UpdateSyncTimestamp(ctx))
	assert.Equal(t, now.UnixMilli(), s.LastSyncTimestamp(ctx))

	raw, ok, _ := kv.Get(ctx, localstore.SyncTimestampKey)
	require.True(t, ok)
	assert.Equal(t, "1709294400000", raw)

	require.NoError(t, kv.Set(ctx, localstore.SyncTimestampKey, "garbage"))
	assert.Equal(t, int64(0), s.LastSyncTimestamp(ctx))
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := localstore.New(memory.New())
	require.NoError(t, s.SaveLocalData(ctx, sampleData()))
	require.NoError(t, s.UpdateSyncTimestamp(ctx))

	require.NoError(t, s.ClearLocalData(ctx))

	got, err := s.GetLocalData(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(0), s.LastSyncTimestamp(ctx))
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	a := localstore.New(kv, localstore.WithNamespace("alice"))
	b := localstore.New(kv, localstore.WithNamespace("bob"))

	require.NoError(t, a.SaveLocalData(ctx, sampleData()))

	got, err := b.GetLocalData(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	ns, err := localstore.Namespaces(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ns)
}

type failingKV struct{ memory.Store }

func (*failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func TestStore_ReadErrorIsReturned(t *testing.T) {
	s := localstore.New(&failingKV{})
	_, err := s.GetLocalData(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read local data")
}
