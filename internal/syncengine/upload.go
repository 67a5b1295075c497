package syncengine

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/log"
	"budgetsync/internal/remote"
)

// SyncToRemote uploads local entities that are new or strictly newer than
// their remote copy, in one atomic batch. Local entities whose remote copy is
// at least as recent are reported in Result.Conflicts and left alone.
func (e *Engine) SyncToRemote(ctx context.Context, uid string, local core.LocalData) Result {
	start := time.Now()
	res := e.syncToRemote(ctx, uid, local)
	e.metrics.observe(log.OpUpload, start, res)
	e.emit(ctx, log.OpUpload, uid, res)
	return res
}

func (e *Engine) syncToRemote(ctx context.Context, uid string, local core.LocalData) Result {
	if !e.OnlineStatus() {
		return fail(KindOffline, MsgOffline)
	}
	if uid == "" {
		uid = local.User.ID
	}
	if uid == "" {
		return fail(KindNoUser, MsgNoUser)
	}
	if !ownedBy(local, uid) {
		return fail(KindInvalid, MsgForeignData)
	}

	snap, err := e.fetch(ctx, uid)
	if err != nil {
		e.logger.ErrorContext(ctx, "Upload failed", log.FieldUserID, uid, log.FieldError, err)
		return failure("Upload failed", err)
	}
	return e.upload(ctx, uid, local, snap)
}

// upload compares local against an already fetched snapshot and commits.
// Writes go out in sequential batches of at most remote.MaxBatchWrites; each
// batch is atomic. A failed batch leaves earlier ones applied and the next
// sync re-plans only what is still missing.
func (e *Engine) upload(ctx context.Context, uid string, local core.LocalData, snap snapshot) Result {
	writes, conflicts, err := plan(local, snap)
	if err != nil {
		return failure("Upload failed", err)
	}

	for start := 0; start < len(writes); start += remote.MaxBatchWrites {
		batch := writes[start:min(start+remote.MaxBatchWrites, len(writes))]
		err := e.retry.do(ctx, "commit", func(ctx context.Context) error {
			return e.remote.Commit(ctx, uid, batch)
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "Batch commit failed",
				log.FieldUserID, uid,
				log.FieldCount, len(batch),
				"committed", start,
				log.FieldError, err)
			return failure("Upload failed", err)
		}
	}

	if conflicts.Total() > 0 {
		e.logger.WarnContext(ctx, "Upload left conflicting entities untouched",
			log.FieldUserID, uid,
			log.FieldConflicts, conflicts.Total())
	}
	e.logger.InfoContext(ctx, "Uploaded local changes", log.FieldUserID, uid, log.FieldCount, len(writes))

	res := succeed(MsgUploaded)
	res.Conflicts = conflicts
	return res
}

// plan builds the batch for local against the remote snapshot.
func plan(local core.LocalData, snap snapshot) ([]remote.Write, Conflicts, error) {
	var (
		writes    []remote.Write
		conflicts Conflicts
		err       error
	)

	var w []remote.Write
	if w, conflicts.Transactions, err = planEntities(remote.Transactions, local.Transactions, snap.data.Transactions); err != nil {
		return nil, Conflicts{}, err
	}
	writes = append(writes, w...)
	if w, conflicts.Categories, err = planEntities(remote.Categories, local.Categories, snap.data.Categories); err != nil {
		return nil, Conflicts{}, err
	}
	writes = append(writes, w...)
	if w, conflicts.Budgets, err = planEntities(remote.Budgets, local.Budgets, snap.data.Budgets); err != nil {
		return nil, Conflicts{}, err
	}
	writes = append(writes, w...)

	if !local.User.IsZero() {
		same, err := sameContent(local.User, snap.data.User)
		if err != nil {
			return nil, Conflicts{}, err
		}
		if !snap.hasUser || (!same && core.IsNewer(local.User.UpdatedAt, snap.data.User.UpdatedAt)) {
			data, err := remote.Encode(local.User)
			if err != nil {
				return nil, Conflicts{}, err
			}
			writes = append(writes, remote.UserWrite(data))
		}
	}
	return writes, conflicts, nil
}

func planEntities[T core.Entity](coll remote.Collection, local, existing []T) ([]remote.Write, []T, error) {
	byID := make(map[string]T, len(existing))
	for _, r := range existing {
		byID[r.EntityID()] = r
	}

	var (
		writes    []remote.Write
		conflicts []T
	)
	for _, l := range local {
		r, found := byID[l.EntityID()]
		if found {
			same, err := sameContent(l, r)
			if err != nil {
				return nil, nil, err
			}
			if same {
				continue
			}
			if !core.IsNewer(l.Version(), r.Version()) {
				conflicts = append(conflicts, l)
				continue
			}
		}
		data, err := remote.Encode(l)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s/%s: %w", coll, l.EntityID(), err)
		}
		writes = append(writes, remote.Write{Collection: coll, ID: l.EntityID(), Data: data})
	}
	return writes, conflicts, nil
}

// sameContent compares two values as stored, ignoring the server stamp.
func sameContent(a, b any) (bool, error) {
	ea, err := remote.Encode(a)
	if err != nil {
		return false, err
	}
	eb, err := remote.Encode(b)
	if err != nil {
		return false, err
	}
	delete(ea, remote.FieldUpdatedAt)
	delete(eb, remote.FieldUpdatedAt)
	return maps.EqualFunc(ea, eb, func(x, y any) bool { return reflect.DeepEqual(x, y) }), nil
}
