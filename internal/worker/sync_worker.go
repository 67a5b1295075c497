// Package worker runs sync on behalf of many users: queued requests, a cron
// sweep over stale caches and the HTTP trigger all go through one pool of
// per-user engines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"budgetsync/internal/amqp"
	"budgetsync/internal/cache"
	"budgetsync/internal/log"
	"budgetsync/internal/syncengine"
)

// UserEngine is the part of syncengine.Engine the worker drives.
type UserEngine interface {
	SyncData(ctx context.Context, uid string) syncengine.Result
	IsSyncNeeded(ctx context.Context) bool
	Status(ctx context.Context) syncengine.Status
	Stop(ctx context.Context) error
}

// EngineFactory builds and starts the engine for one user.
type EngineFactory func(ctx context.Context, uid string) (UserEngine, error)

// UserLister enumerates the users that have a local cache.
type UserLister func(ctx context.Context) ([]string, error)

var ErrEmptyUser = errors.New("worker: empty user id")

type Options struct {
	MaxEngines   int
	EngineTTL    time.Duration
	DedupeWindow time.Duration
	// Concurrency bounds the stale sweep fan-out.
	Concurrency int
	StopTimeout time.Duration
	Logger      *log.Logger
}

func (o *Options) defaults() {
	if o.MaxEngines <= 0 {
		o.MaxEngines = 256
	}
	if o.EngineTTL <= 0 {
		o.EngineTTL = 30 * time.Minute
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.Discard()
	}
}

type SyncWorker struct {
	factory   EngineFactory
	listUsers UserLister
	engines   *cache.LRU[UserEngine]
	dedupe    *cache.Window
	janitor   *cache.Janitor
	logger    *log.Logger
	opts      Options

	cron    *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewSyncWorker(factory EngineFactory, listUsers UserLister, opts Options) *SyncWorker {
	if factory == nil || listUsers == nil {
		panic("worker: engine factory and user lister are required")
	}
	opts.defaults()
	w := &SyncWorker{
		factory:   factory,
		listUsers: listUsers,
		dedupe:    cache.NewWindow(opts.DedupeWindow),
		logger:    opts.Logger.WithComponent(log.ComponentWorker),
		opts:      opts,
	}
	w.engines = cache.NewLRU[UserEngine](opts.MaxEngines, opts.EngineTTL, cache.WithEvict(w.stopEngine))
	w.janitor = cache.NewJanitor(opts.Logger, w.engines, w.dedupe)
	return w
}

func (w *SyncWorker) stopEngine(uid string, e UserEngine) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.StopTimeout)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		w.logger.Warn("Failed to stop evicted engine", log.FieldUserID, uid, log.FieldError, err.Error())
		return
	}
	w.logger.Debug("Engine evicted", log.FieldUserID, uid)
}

func (w *SyncWorker) engine(ctx context.Context, uid string) (UserEngine, error) {
	return w.engines.GetOrCreate(uid, func() (UserEngine, error) {
		e, err := w.factory(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("create engine for %s: %w", uid, err)
		}
		w.logger.Info("Engine created", log.FieldUserID, uid)
		return e, nil
	})
}

// HandleSyncRequest processes one queued request. Requests for a user already
// synced within the dedupe window are acknowledged without work. Only
// transient remote failures are returned so the message is requeued.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	uid := strings.TrimSpace(msg.UserID)
	if uid == "" {
		return ErrEmptyUser
	}
	if !w.dedupe.Admit(uid) {
		w.logger.DebugContext(ctx, "Duplicate sync request skipped", log.FieldUserID, uid, log.FieldReason, msg.Reason)
		return nil
	}

	res, err := w.RequestSync(ctx, uid, msg.Reason)
	if err != nil {
		w.dedupe.Forget(uid)
		return err
	}
	if !res.Success && res.Kind == syncengine.KindRemote {
		w.dedupe.Forget(uid)
		return fmt.Errorf("sync %s: %s", uid, res.Message)
	}
	return nil
}

// RequestSync runs SyncData for uid now. The returned error covers engine
// construction; sync failures are reported in the Result.
func (w *SyncWorker) RequestSync(ctx context.Context, uid, reason string) (syncengine.Result, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return syncengine.Result{}, ErrEmptyUser
	}
	e, err := w.engine(ctx, uid)
	if err != nil {
		return syncengine.Result{}, err
	}

	res := e.SyncData(ctx, uid)
	fields := []any{log.FieldUserID, uid, log.FieldReason, reason}
	if res.Success {
		w.logger.InfoContext(ctx, "Sync completed", append(fields, log.FieldConflicts, res.Conflicts.Total())...)
	} else {
		w.logger.WarnContext(ctx, "Sync failed", append(fields, log.FieldErrorType, res.Kind.String(), "message", res.Message)...)
	}
	return res, nil
}

func (w *SyncWorker) SyncStatus(ctx context.Context, uid string) (syncengine.Status, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return syncengine.Status{}, ErrEmptyUser
	}
	e, err := w.engine(ctx, uid)
	if err != nil {
		return syncengine.Status{}, err
	}
	return e.Status(ctx), nil
}

// SyncStale syncs every known user whose cache is older than the stale
// threshold and returns how many syncs succeeded.
func (w *SyncWorker) SyncStale(ctx context.Context) (int, error) {
	users, err := w.listUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var synced atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, uid := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, err := w.engine(gctx, uid)
			if err != nil {
				w.logger.ErrorContext(gctx, "Skipping user", log.FieldUserID, uid, log.FieldError, err.Error())
				return nil
			}
			if !e.IsSyncNeeded(gctx) {
				return nil
			}
			if !w.dedupe.Admit(uid) {
				return nil
			}
			res, _ := w.RequestSync(gctx, uid, "schedule")
			if res.Success {
				synced.Add(1)
			} else {
				w.dedupe.Forget(uid)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(synced.Load()), err
	}

	w.logger.InfoContext(ctx, "Stale sweep finished", log.FieldCount, len(users), "synced", synced.Load())
	return int(synced.Load()), nil
}

// Start schedules the stale sweep and the cache janitor. schedule uses the
// robfig/cron syntax, descriptors such as "@every 5m" included.
func (w *SyncWorker) Start(ctx context.Context, schedule string) error {
	w.baseCtx, w.cancel = context.WithCancel(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := w.SyncStale(w.baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("Stale sweep failed", log.FieldError, err.Error())
		}
	}); err != nil {
		w.cancel()
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	w.cron = c
	c.Start()
	w.janitor.Start(time.Minute)
	w.logger.Info("Sync worker started", "schedule", schedule)
	return nil
}

// Stop waits for a running sweep until ctx expires, then stops every engine.
func (w *SyncWorker) Stop(ctx context.Context) error {
	var err error
	if w.cron != nil {
		w.cancel()
		select {
		case <-w.cron.Stop().Done():
		case <-ctx.Done():
			err = fmt.Errorf("stop sync worker: %w", ctx.Err())
		}
		w.janitor.Stop()
		w.cron = nil
	}
	w.engines.Purge()
	w.logger.Info("Sync worker stopped")
	return err
}

// Engines reports how many per-user engines are cached.
func (w *SyncWorker) Engines() int {
	return w.engines.Size()
}
