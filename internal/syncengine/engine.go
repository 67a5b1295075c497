// Package syncengine keeps the local cache of a user's budget data
// consistent with the remote store.
//
// The engine merges divergent copies last-writer-wins per entity, uploads
// local changes in atomic batches, maintains realtime listeners per user
// and resyncs registered users when connectivity returns. Every public
// operation reports through a Result instead of an error.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"budgetsync/internal/connectivity"
	"budgetsync/internal/core"
	"budgetsync/internal/log"
	"budgetsync/internal/remote"
)

// DefaultStaleAfter is how old the last sync may get before IsSyncNeeded
// reports true.
const DefaultStaleAfter = 5 * time.Minute

// LocalStore is the cache the engine reads and writes.
type LocalStore interface {
	GetLocalData(ctx context.Context) (*core.LocalData, error)
	SaveLocalData(ctx context.Context, data core.LocalData) error
	LastSyncTimestamp(ctx context.Context) int64
	UpdateSyncTimestamp(ctx context.Context) error
	ClearLocalData(ctx context.Context) error
}

type Options struct {
	// Registry is created when nil.
	Registry   *Registry
	Logger     *log.Logger
	Metrics    *Metrics
	Retry      RetryPolicy
	StaleAfter time.Duration
	Publisher  Publisher
	// OnListenerError is called after a realtime listener failure has been
	// logged and recorded.
	OnListenerError func(uid string, coll remote.Collection, err error)
	Now             func() time.Time
}

type Engine struct {
	local    LocalStore
	remote   remote.Store
	conn     connectivity.Observer
	registry *Registry

	logger          *log.Logger
	listenerLog     *log.Logger
	metrics         *Metrics
	retry           retrier
	staleAfter      time.Duration
	publisher       Publisher
	onListenerError func(uid string, coll remote.Collection, err error)
	now             func() time.Time

	// localMu serializes read-modify-write cycles on the cached aggregate.
	localMu sync.Mutex

	mu         sync.Mutex
	started    bool
	cancelConn func()
	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

func New(local LocalStore, rs remote.Store, conn connectivity.Observer, opts Options) *Engine {
	if local == nil || rs == nil || conn == nil {
		panic("syncengine: local store, remote store and connectivity observer are required")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger.WithComponent(log.ComponentSync)
	return &Engine{
		local:           local,
		remote:          rs,
		conn:            conn,
		registry:        opts.Registry,
		logger:          logger,
		listenerLog:     opts.Logger.WithComponent(log.ComponentListener),
		metrics:         opts.Metrics,
		retry:           retrier{policy: opts.Retry, logger: logger, metrics: opts.Metrics},
		staleAfter:      opts.StaleAfter,
		publisher:       opts.Publisher,
		onListenerError: opts.OnListenerError,
		now:             opts.Now,
	}
}

func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) OnlineStatus() bool {
	return e.conn.Online()
}

// Start watches connectivity. Each offline to online transition runs one
// best-effort SyncData for every user with registered listeners.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.baseCtx, e.cancelBase = context.WithCancel(context.WithoutCancel(ctx))
	e.cancelConn = e.conn.Subscribe(e.handleConnectivity)
	e.started = true
	e.metrics.setOnline(e.conn.Online())
	e.logger.Info("Sync engine started", log.FieldOnline, e.conn.Online())
}

// Stop detaches from connectivity, tears down every listener and waits for
// in-flight reconnect syncs until ctx expires.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.cancelConn()
	e.cancelBase()
	e.mu.Unlock()

	for _, uid := range e.registry.Users() {
		e.RemoveRealtimeSync(uid)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("Sync engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop sync engine: %w", ctx.Err())
	}
}

func (e *Engine) handleConnectivity(online bool) {
	e.metrics.setOnline(online)
	if !online {
		e.logger.Warn("Connection lost, remote writes will fail fast", log.FieldOnline, false)
		return
	}
	e.logger.Info("Connection restored", log.FieldOnline, true)

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	ctx := e.baseCtx
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.resyncRegistered(ctx)
	}()
}

// resyncRegistered is best effort: failures are logged and left for the
// next trigger.
func (e *Engine) resyncRegistered(ctx context.Context) {
	for _, uid := range e.registry.Users() {
		if ctx.Err() != nil {
			return
		}
		res := e.SyncData(ctx, uid)
		if !res.Success {
			e.logger.WarnContext(ctx, "Reconnect sync failed",
				log.FieldUserID, uid,
				log.FieldErrorType, res.Kind.String(),
				"message", res.Message)
			continue
		}
		e.logger.InfoContext(ctx, "Reconnect sync completed", log.FieldUserID, uid, log.FieldConflicts, res.Conflicts.Total())
	}
}

// SyncData reconciles local and remote state. An empty uid falls back to the
// cached profile's id. Without a cache this is a plain download; otherwise
// the remote state is fetched, merged into the cache and the merged result
// uploaded.
func (e *Engine) SyncData(ctx context.Context, uid string) Result {
	start := time.Now()
	res := e.syncData(ctx, uid)
	if res.Success && uid == "" && res.Data != nil {
		uid = res.Data.User.ID
	}
	e.metrics.observe(log.OpSync, start, res)
	e.emit(ctx, log.OpSync, uid, res)
	return res
}

func (e *Engine) syncData(ctx context.Context, uid string) Result {
	if !e.OnlineStatus() {
		return fail(KindOffline, MsgOffline)
	}

	local, err := e.local.GetLocalData(ctx)
	if err != nil {
		return failure("Sync failed", fmt.Errorf("%w: %w", errLocal, err))
	}
	if uid == "" && local != nil {
		uid = local.User.ID
	}
	if uid == "" {
		return fail(KindNoUser, MsgNoUser)
	}
	if local != nil && !ownedBy(*local, uid) {
		e.logger.WarnContext(ctx, "Replacing cache owned by another user",
			log.FieldUserID, uid,
			"cached_user_id", local.User.ID)
		local = nil
	}

	if local == nil {
		res := e.download(ctx, uid, MsgInitialSync)
		if res.Success {
			e.registry.touchUser(uid, e.now())
		}
		return res
	}

	snap, err := e.fetch(ctx, uid)
	if err != nil {
		e.logger.ErrorContext(ctx, "Sync failed", log.FieldUserID, uid, log.FieldError, err)
		return failure("Sync failed", err)
	}

	e.localMu.Lock()
	cur, err := e.local.GetLocalData(ctx)
	if err != nil {
		e.localMu.Unlock()
		return failure("Sync failed", fmt.Errorf("%w: %w", errLocal, err))
	}
	if cur == nil || !ownedBy(*cur, uid) {
		cur = local
	}
	merged := Merge(*cur, snap.data)
	if len(merged.Categories) == 0 {
		merged.Categories = core.DefaultCategories()
	}
	err = e.local.SaveLocalData(ctx, merged)
	e.localMu.Unlock()
	if err != nil {
		return failure("Sync failed", fmt.Errorf("%w: %w", errLocal, err))
	}

	up := e.upload(ctx, uid, merged, snap)
	if !up.Success {
		return up
	}
	if err := e.local.UpdateSyncTimestamp(ctx); err != nil {
		e.logger.WarnContext(ctx, "Failed to update sync timestamp", log.FieldError, err)
	}
	e.registry.touchUser(uid, e.now())

	e.logger.InfoContext(ctx, "Data synchronized",
		log.FieldUserID, uid,
		log.FieldConflicts, up.Conflicts.Total(),
		"transactions", len(merged.Transactions))

	res := succeed(MsgSynced)
	res.Data = &merged
	res.Conflicts = up.Conflicts
	return res
}

// ForceSync syncs regardless of staleness. A non-nil data replaces the
// cache before syncing and must belong to uid.
func (e *Engine) ForceSync(ctx context.Context, uid string, data *core.LocalData) Result {
	if data != nil {
		if uid != "" && !ownedBy(*data, uid) {
			return fail(KindInvalid, MsgForeignData)
		}
		e.localMu.Lock()
		err := e.local.SaveLocalData(ctx, *data)
		e.localMu.Unlock()
		if err != nil {
			return failure("Force sync failed", fmt.Errorf("%w: %w", errLocal, err))
		}
	}
	return e.SyncData(ctx, uid)
}

// IsSyncNeeded reports whether the last sync is older than the stale
// threshold. It is a hint, not a gate.
func (e *Engine) IsSyncNeeded(ctx context.Context) bool {
	last := e.local.LastSyncTimestamp(ctx)
	if last == 0 {
		return true
	}
	return e.now().Sub(time.UnixMilli(last)) > e.staleAfter
}

// InitializeSync is called once per sign-in. It creates the remote profile
// when missing, runs a sync and opens the realtime listeners. Listeners are
// registered even when offline so the reconnect sync picks the user up.
func (e *Engine) InitializeSync(ctx context.Context, uid string, onDataChange DataChangeFunc) Result {
	if uid == "" {
		return fail(KindNoUser, MsgNoUser)
	}

	res := fail(KindOffline, MsgOffline)
	if e.OnlineStatus() {
		if err := e.ensureProfile(ctx, uid); err != nil {
			return failure("Initialize failed", err)
		}
		res = e.SyncData(ctx, uid)
		if !res.Success {
			e.logger.WarnContext(ctx, "Initial sync failed", log.FieldUserID, uid, "message", res.Message)
		}
	}

	if _, err := e.SetupRealtimeSync(ctx, uid, onDataChange); err != nil {
		e.logger.ErrorContext(ctx, "Failed to start realtime sync", log.FieldUserID, uid, log.FieldError, err)
		return failure("Initialize failed", err)
	}
	return res
}

// ensureProfile creates users/{uid} from the cached profile, or from the
// default profile, when the document does not exist yet.
func (e *Engine) ensureProfile(ctx context.Context, uid string) error {
	err := e.retry.do(ctx, "get_user", func(ctx context.Context) error {
		_, err := e.remote.GetUser(ctx, uid)
		return err
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("check profile: %w", err)
	}

	user := core.DefaultUser(uid, "", "", "", e.now())
	if cached, _ := e.local.GetLocalData(ctx); cached != nil && cached.User.ID == uid {
		user = cached.User
	}
	data, err := remote.Encode(user)
	if err != nil {
		return err
	}
	if err := e.retry.do(ctx, "set_user", func(ctx context.Context) error {
		return e.remote.SetUser(ctx, uid, data)
	}); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	e.logger.InfoContext(ctx, MsgUserCreated, log.FieldUserID, uid)
	return nil
}

// ownedBy reports whether data may be synced as uid. A cache without a
// profile id has no owner yet.
func ownedBy(data core.LocalData, uid string) bool {
	return data.User.ID == "" || data.User.ID == uid
}

// CleanupSync is called once per sign-out.
func (e *Engine) CleanupSync(uid string) {
	e.RemoveRealtimeSync(uid)
}

// ClearLocalData wipes the cache and the sync timestamp.
func (e *Engine) ClearLocalData(ctx context.Context) error {
	e.localMu.Lock()
	defer e.localMu.Unlock()
	return e.local.ClearLocalData(ctx)
}

// UpdateLocal runs fn on the cached aggregate under the engine's lock and
// saves the result. fn receives nil when there is no cache and may return
// nil to leave the cache untouched.
func (e *Engine) UpdateLocal(ctx context.Context, fn func(cur *core.LocalData) *core.LocalData) error {
	e.localMu.Lock()
	defer e.localMu.Unlock()
	cur, err := e.local.GetLocalData(ctx)
	if err != nil {
		return err
	}
	next := fn(cur)
	if next == nil {
		return nil
	}
	return e.local.SaveLocalData(ctx, *next)
}

// LocalData returns the cached aggregate, nil when there is none.
func (e *Engine) LocalData(ctx context.Context) (*core.LocalData, error) {
	return e.local.GetLocalData(ctx)
}

// Status is a point-in-time view for status endpoints and the CLI.
type Status struct {
	Online     bool           `json:"online"`
	LastSync   time.Time      `json:"lastSync"`
	SyncNeeded bool           `json:"syncNeeded"`
	Listeners  []ListenerInfo `json:"listeners"`
}

func (e *Engine) Status(ctx context.Context) Status {
	st := Status{
		Online:     e.OnlineStatus(),
		SyncNeeded: e.IsSyncNeeded(ctx),
		Listeners:  e.registry.Snapshot(),
	}
	if ms := e.local.LastSyncTimestamp(ctx); ms > 0 {
		st.LastSync = time.UnixMilli(ms).UTC()
	}
	return st
}
