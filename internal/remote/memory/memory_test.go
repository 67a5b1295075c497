package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/remote"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
}

func TestStore_PointOperations(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(fixedClock()))

	_, err := s.Get(ctx, "u1", remote.Budgets, "b1")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	require.NoError(t, s.Set(ctx, "u1", remote.Budgets, "b1", map[string]any{"category": "Food"}))
	doc, err := s.Get(ctx, "u1", remote.Budgets, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Food", doc.Data["category"])
	assert.Equal(t, "2024-05-01T10:00:00.000Z", doc.Data[remote.FieldUpdatedAt])

	require.NoError(t, s.Delete(ctx, "u1", remote.Budgets, "b1"))
	_, err = s.Get(ctx, "u1", remote.Budgets, "b1")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = s.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, remote.ErrNotFound)
	require.NoError(t, s.SetUser(ctx, "u1", map[string]any{"name": "Ada"}))
	user, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Data["name"])
}

func TestStore_CommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Commit(ctx, "u1", []remote.Write{
		{Collection: remote.Transactions, ID: "t1", Data: map[string]any{"amount": 1.0}},
		{Collection: remote.Collection("bogus"), ID: "x"},
	})
	require.Error(t, err)

	docs, err := s.List(ctx, "u1", remote.Transactions)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStore_CommitRejectsOversizedBatch(t *testing.T) {
	ctx := context.Background()
	s := New()

	writes := make([]remote.Write, remote.MaxBatchWrites+1)
	for i := range writes {
		writes[i] = remote.Write{Collection: remote.Transactions, ID: fmt.Sprintf("t%d", i), Data: map[string]any{"amount": 1.0}}
	}
	err := s.Commit(ctx, "u1", writes)
	require.ErrorIs(t, err, remote.ErrBatchTooLarge)

	require.NoError(t, s.Commit(ctx, "u1", writes[:remote.MaxBatchWrites]))
	docs, err := s.List(ctx, "u1", remote.Transactions)
	require.NoError(t, err)
	assert.Len(t, docs, remote.MaxBatchWrites)
}

func TestStore_TenantsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "u1", remote.Categories, "c1", map[string]any{"name": "A"}))

	docs, err := s.List(ctx, "u2", remote.Categories)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStore_SubscribeDeliversInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "u1", remote.Transactions, "t1", map[string]any{"createdAt": "2024-01-01T00:00:00Z"}))

	var mu sync.Mutex
	var sizes []int
	unsub, err := s.Subscribe(ctx, "u1", remote.Transactions, func(docs []remote.Document) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(docs))
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "u1", remote.Transactions, "t2", map[string]any{"createdAt": "2024-01-02T00:00:00Z"}))
	// other collections and tenants do not notify
	require.NoError(t, s.Set(ctx, "u1", remote.Budgets, "b1", map[string]any{}))
	require.NoError(t, s.Set(ctx, "u2", remote.Transactions, "t9", map[string]any{}))

	unsub()
	require.NoError(t, s.Set(ctx, "u1", remote.Transactions, "t3", map[string]any{}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, sizes)
	assert.Equal(t, 0, s.Subscribers())
}

func TestStore_SubscribeUser(t *testing.T) {
	ctx := context.Background()
	s := New()

	var seen []bool
	unsub, err := s.SubscribeUser(ctx, "u1", func(_ remote.Document, exists bool) {
		seen = append(seen, exists)
	}, nil)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, s.SetUser(ctx, "u1", map[string]any{"name": "Ada"}))
	assert.Equal(t, []bool{false, true}, seen)
}

func TestStore_FailAndCalls(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("unavailable")

	s.Fail(boom)
	_, err := s.List(ctx, "u1", remote.Budgets)
	assert.ErrorIs(t, err, boom)

	s.Fail(nil)
	_, err = s.List(ctx, "u1", remote.Budgets)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), s.Calls())
}

func TestStore_UnsubscribeFromCallback(t *testing.T) {
	ctx := context.Background()
	s := New()

	var unsub remote.Unsubscribe
	calls := 0
	unsub, err := s.Subscribe(ctx, "u1", remote.Budgets, func([]remote.Document) {
		calls++
		if calls == 2 {
			unsub()
		}
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "u1", remote.Budgets, "b1", map[string]any{}))
	require.NoError(t, s.Set(ctx, "u1", remote.Budgets, "b2", map[string]any{}))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, s.Subscribers())
}
