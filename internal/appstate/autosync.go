package appstate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/log"
	"budgetsync/internal/syncengine"
)

const DefaultDebounceDelay = 2 * time.Second

// Debouncer runs fn once the calls to Trigger have been quiet for delay.
// Every Trigger restarts the wait.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels a pending run and reports whether one was pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	pending := d.timer.Stop()
	d.timer = nil
	return pending
}

// Uploader is the write-back target, normally the sync engine.
type Uploader interface {
	SyncToRemote(ctx context.Context, uid string, local core.LocalData) syncengine.Result
}

// snapshots holds one serialized form per slice.
type snapshots struct {
	transactions string
	categories   string
	budgets      string
	user         string
}

func takeSnapshots(s State) snapshots {
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return snapshots{
		transactions: enc(s.Transactions),
		categories:   enc(s.Categories),
		budgets:      enc(s.Budgets),
		user:         enc(s.User),
	}
}

// AutoSync uploads the store's state after it has stopped changing for the
// debounce delay. Rapid bursts of edits produce one upload of the latest
// state.
type AutoSync struct {
	store    *Store
	uploader Uploader
	uid      string
	logger   *log.Logger
	debounce *Debouncer

	mu         sync.Mutex
	lastSynced snapshots
	cancel     func()
	uploads    sync.WaitGroup
}

func NewAutoSync(store *Store, uploader Uploader, uid string, delay time.Duration, logger *log.Logger) *AutoSync {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	if logger == nil {
		logger = log.Discard()
	}
	a := &AutoSync{
		store:    store,
		uploader: uploader,
		uid:      uid,
		logger:   logger.WithComponent(log.ComponentAutoSync),
	}
	a.debounce = NewDebouncer(delay, a.flush)
	return a
}

// Start records the current state as synced and watches for changes.
func (a *AutoSync) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	a.lastSynced = takeSnapshots(a.store.Snapshot())
	a.cancel = a.store.Subscribe(a.onState)
}

// Stop cancels a pending upload and waits for a running one.
func (a *AutoSync) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.debounce.Stop()
	a.uploads.Wait()
}

func (a *AutoSync) onState(s State) {
	snap := takeSnapshots(s)
	a.mu.Lock()
	changed := snap != a.lastSynced
	a.mu.Unlock()
	if changed {
		a.debounce.Trigger()
	}
}

func (a *AutoSync) flush() {
	a.uploads.Add(1)
	defer a.uploads.Done()

	st := a.store.Snapshot()
	snap := takeSnapshots(st)
	res := a.uploader.SyncToRemote(context.Background(), a.uid, st.Data())
	if !res.Success {
		a.logger.Warn("Auto-sync upload failed",
			log.FieldUserID, a.uid,
			log.FieldErrorType, res.Kind.String(),
			"message", res.Message)
		return
	}
	a.mu.Lock()
	a.lastSynced = snap
	a.mu.Unlock()
	a.logger.Info("Auto-sync uploaded changes", log.FieldUserID, a.uid, log.FieldConflicts, res.Conflicts.Total())
}
