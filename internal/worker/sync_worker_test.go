package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/amqp"
	"budgetsync/internal/syncengine"
)

type fakeEngine struct {
	mu      sync.Mutex
	uid     string
	result  syncengine.Result
	stale   bool
	syncs   int
	stopped bool
}

func (f *fakeEngine) SyncData(ctx context.Context, uid string) syncengine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return f.result
}

func (f *fakeEngine) IsSyncNeeded(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale
}

func (f *fakeEngine) Status(ctx context.Context) syncengine.Status {
	return syncengine.Status{Online: true, SyncNeeded: f.IsSyncNeeded(ctx)}
}

func (f *fakeEngine) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeEngine) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs
}

type pool struct {
	mu      sync.Mutex
	engines map[string]*fakeEngine
	result  syncengine.Result
	stale   map[string]bool
	failFor string
}

func newPool(result syncengine.Result) *pool {
	return &pool{engines: map[string]*fakeEngine{}, result: result, stale: map[string]bool{}}
}

func (p *pool) factory(ctx context.Context, uid string) (UserEngine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if uid == p.failFor {
		return nil, errors.New("backend down")
	}
	e := &fakeEngine{uid: uid, result: p.result, stale: p.stale[uid]}
	p.engines[uid] = e
	return e, nil
}

func (p *pool) get(uid string) *fakeEngine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engines[uid]
}

func users(ids ...string) UserLister {
	return func(context.Context) ([]string, error) { return ids, nil }
}

func ok() syncengine.Result { return syncengine.Result{Success: true, Message: syncengine.MsgSynced} }

func TestHandleSyncRequest_DedupesBursts(t *testing.T) {
	p := newPool(ok())
	w := NewSyncWorker(p.factory, users(), Options{DedupeWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, w.HandleSyncRequest(ctx, amqp.NewSyncRequestMessage("u1", "change")))
	}
	assert.Equal(t, 1, p.get("u1").count())
	assert.Equal(t, 1, w.Engines())

	require.NoError(t, w.HandleSyncRequest(ctx, amqp.NewSyncRequestMessage("u2", "change")))
	assert.Equal(t, 1, p.get("u2").count())
	assert.Equal(t, 2, w.Engines())
}

func TestHandleSyncRequest_RemoteFailureRequeues(t *testing.T) {
	p := newPool(syncengine.Result{Kind: syncengine.KindRemote, Message: "Sync failed: unavailable"})
	w := NewSyncWorker(p.factory, users(), Options{DedupeWindow: time.Minute})
	ctx := context.Background()

	err := w.HandleSyncRequest(ctx, amqp.NewSyncRequestMessage("u1", "change"))
	require.Error(t, err)

	// the failed attempt does not block the retry
	err = w.HandleSyncRequest(ctx, amqp.NewSyncRequestMessage("u1", "change"))
	require.Error(t, err)
	assert.Equal(t, 2, p.get("u1").count())
}

func TestHandleSyncRequest_OfflineIsAcked(t *testing.T) {
	p := newPool(syncengine.Result{Kind: syncengine.KindOffline, Message: syncengine.MsgOffline})
	w := NewSyncWorker(p.factory, users(), Options{})

	assert.NoError(t, w.HandleSyncRequest(context.Background(), amqp.NewSyncRequestMessage("u1", "change")))
}

func TestHandleSyncRequest_FactoryError(t *testing.T) {
	p := newPool(ok())
	p.failFor = "bad"
	w := NewSyncWorker(p.factory, users(), Options{DedupeWindow: time.Minute})

	err := w.HandleSyncRequest(context.Background(), amqp.NewSyncRequestMessage("bad", "change"))
	require.Error(t, err)
	assert.Equal(t, 0, w.Engines())
	assert.ErrorIs(t, w.HandleSyncRequest(context.Background(), &amqp.SyncRequestMessage{UserID: " "}), ErrEmptyUser)
}

func TestRequestSyncAndStatus(t *testing.T) {
	p := newPool(ok())
	w := NewSyncWorker(p.factory, users(), Options{})
	ctx := context.Background()

	res, err := w.RequestSync(ctx, "u1", "http")
	require.NoError(t, err)
	assert.True(t, res.Success)

	// no dedupe on direct requests
	_, err = w.RequestSync(ctx, "u1", "http")
	require.NoError(t, err)
	assert.Equal(t, 2, p.get("u1").count())

	st, err := w.SyncStatus(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.Online)

	_, err = w.SyncStatus(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyUser)
}

func TestSyncStale_OnlyStaleUsers(t *testing.T) {
	p := newPool(ok())
	p.stale["a"] = true
	p.stale["c"] = true
	w := NewSyncWorker(p.factory, users("a", "b", "c"), Options{Concurrency: 2})

	n, err := w.SyncStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, p.get("a").count())
	assert.Equal(t, 0, p.get("b").count())
	assert.Equal(t, 1, p.get("c").count())
}

func TestSyncStale_ListError(t *testing.T) {
	p := newPool(ok())
	w := NewSyncWorker(p.factory, func(context.Context) ([]string, error) {
		return nil, errors.New("no lister")
	}, Options{})

	_, err := w.SyncStale(context.Background())
	assert.Error(t, err)
}

func TestEvictionStopsEngines(t *testing.T) {
	p := newPool(ok())
	w := NewSyncWorker(p.factory, users(), Options{MaxEngines: 1})
	ctx := context.Background()

	_, err := w.RequestSync(ctx, "u1", "t")
	require.NoError(t, err)
	_, err = w.RequestSync(ctx, "u2", "t")
	require.NoError(t, err)

	assert.True(t, p.get("u1").stopped)
	assert.False(t, p.get("u2").stopped)

	require.NoError(t, w.Stop(ctx))
	assert.True(t, p.get("u2").stopped)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := NewSyncWorker(newPool(ok()).factory, users(), Options{})
	assert.Error(t, w.Start(context.Background(), "not a schedule"))
}

func TestStartAndStop(t *testing.T) {
	p := newPool(ok())
	p.stale["a"] = true
	w := NewSyncWorker(p.factory, users("a"), Options{})

	require.NoError(t, w.Start(context.Background(), "@every 1s"))
	assert.Eventually(t, func() bool {
		e := p.get("a")
		return e != nil && e.count() > 0
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Stop(context.Background()))

	keys := []string{}
	for k := range p.engines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"a"}, keys)
}
