package appstate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/core"
	"budgetsync/internal/syncengine"
)

type recordingUploader struct {
	mu    sync.Mutex
	calls []core.LocalData
	fail  atomic.Bool
}

func (r *recordingUploader) SyncToRemote(_ context.Context, _ string, local core.LocalData) syncengine.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, local)
	if r.fail.Load() {
		return syncengine.Result{Success: false, Message: "boom", Kind: syncengine.KindRemote}
	}
	return syncengine.Result{Success: true, Message: syncengine.MsgUploaded}
}

func (r *recordingUploader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingUploader) last() core.LocalData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { runs.Add(1) })
	for range 5 {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return runs.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestDebouncer_Stop(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { runs.Add(1) })
	assert.False(t, d.Stop())
	d.Trigger()
	assert.True(t, d.Stop())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestAutoSync_UploadsLatestStateOnce(t *testing.T) {
	st := NewStore(WithClock(func() time.Time { return june }))
	up := &recordingUploader{}
	a := NewAutoSync(st, up, "u1", 30*time.Millisecond, nil)
	a.Start()
	defer a.Stop()

	for _, id := range []string{"a", "b", "c", "d"} {
		st.Dispatch(AddTransaction{Transaction: tx(id, core.Expense, 1, "2024-06-01")})
	}

	require.Eventually(t, func() bool { return up.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, up.last().Transactions, 4)
	assert.Never(t, func() bool { return up.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestAutoSync_IgnoresNonDataChanges(t *testing.T) {
	st := NewStore()
	up := &recordingUploader{}
	a := NewAutoSync(st, up, "u1", 10*time.Millisecond, nil)
	a.Start()
	defer a.Stop()

	st.Dispatch(SetLoading{Loading: true})
	st.Dispatch(SetSyncStatus{Status: StatusSyncing})

	assert.Never(t, func() bool { return up.count() > 0 }, 80*time.Millisecond, 10*time.Millisecond)
}

func TestAutoSync_RetriesAfterFailureOnNextChange(t *testing.T) {
	st := NewStore(WithClock(func() time.Time { return june }))
	up := &recordingUploader{}
	up.fail.Store(true)
	a := NewAutoSync(st, up, "u1", 10*time.Millisecond, nil)
	a.Start()
	defer a.Stop()

	st.Dispatch(AddTransaction{Transaction: tx("a", core.Expense, 1, "2024-06-01")})
	require.Eventually(t, func() bool { return up.count() == 1 }, time.Second, 5*time.Millisecond)

	up.fail.Store(false)
	// a status-only change still differs from the last synced data
	st.Dispatch(SetSyncStatus{Status: StatusError})
	require.Eventually(t, func() bool { return up.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, up.last().Transactions, 1)
}
