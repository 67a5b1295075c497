package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetsync/internal/core"
	"budgetsync/internal/log"
	"budgetsync/internal/remote"
)

// snapshot is the remote state of one user at fetch time.
type snapshot struct {
	data    core.LocalData
	hasUser bool
}

// fetch reads the three collections and the profile in parallel. A missing
// profile is not an error here.
func (e *Engine) fetch(ctx context.Context, uid string) (snapshot, error) {
	var (
		snap  snapshot
		txs   []core.Transaction
		cats  []core.Category
		buds  []core.Budget
		user  core.User
		found bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = listTyped[core.Transaction](gctx, e, uid, remote.Transactions)
		return err
	})
	g.Go(func() error {
		var err error
		cats, err = listTyped[core.Category](gctx, e, uid, remote.Categories)
		return err
	})
	g.Go(func() error {
		var err error
		buds, err = listTyped[core.Budget](gctx, e, uid, remote.Budgets)
		return err
	})
	g.Go(func() error {
		var doc remote.Document
		err := e.retry.do(gctx, "get_user", func(ctx context.Context) error {
			var err error
			doc, err = e.remote.GetUser(ctx, uid)
			return err
		})
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch user: %w", err)
		}
		if err := remote.Decode(doc, &user); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err := g.Wait(); err != nil {
		return snap, err
	}

	snap.data = core.LocalData{Transactions: txs, Categories: cats, Budgets: buds, User: user}.Clone()
	snap.hasUser = found
	return snap, nil
}

func listTyped[T any](ctx context.Context, e *Engine, uid string, coll remote.Collection) ([]T, error) {
	var docs []remote.Document
	err := e.retry.do(ctx, "list_"+string(coll), func(ctx context.Context) error {
		var err error
		docs, err = e.remote.List(ctx, uid, coll)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", coll, err)
	}
	return remote.DecodeAll[T](docs)
}

// SyncFromRemote downloads the user's remote state and overwrites the local
// cache with it. An empty category collection is replaced by the defaults;
// a missing profile document fails with KindNotFound.
func (e *Engine) SyncFromRemote(ctx context.Context, uid string) Result {
	start := time.Now()
	res := e.download(ctx, uid, MsgDownloaded)
	e.metrics.observe(log.OpDownload, start, res)
	e.emit(ctx, log.OpDownload, uid, res)
	return res
}

func (e *Engine) download(ctx context.Context, uid, msg string) Result {
	if !e.OnlineStatus() {
		return fail(KindOffline, MsgOffline)
	}
	if uid == "" {
		return fail(KindNoUser, MsgNoUser)
	}

	snap, err := e.fetch(ctx, uid)
	if err != nil {
		e.logger.ErrorContext(ctx, "Download failed", log.FieldUserID, uid, log.FieldError, err)
		return failure("Download failed", err)
	}
	if !snap.hasUser {
		e.logger.WarnContext(ctx, "Remote profile missing", log.FieldUserID, uid, log.FieldErrorType, log.ErrorTypeNotFound)
		return fail(KindNotFound, MsgUserNotFound)
	}

	data := snap.data
	if len(data.Categories) == 0 {
		data.Categories = core.DefaultCategories()
	}

	e.localMu.Lock()
	err = e.local.SaveLocalData(ctx, data)
	e.localMu.Unlock()
	if err != nil {
		return failure("Download failed", fmt.Errorf("%w: %w", errLocal, err))
	}
	if err := e.local.UpdateSyncTimestamp(ctx); err != nil {
		e.logger.WarnContext(ctx, "Failed to update sync timestamp", log.FieldError, err)
	}

	e.logger.InfoContext(ctx, "Downloaded remote data",
		log.FieldUserID, uid,
		"transactions", len(data.Transactions),
		"categories", len(data.Categories),
		"budgets", len(data.Budgets))

	res := succeed(msg)
	res.Data = &data
	return res
}
