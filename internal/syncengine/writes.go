package syncengine

import (
	"context"
	"fmt"

	"budgetsync/internal/core"
	"budgetsync/internal/log"
	"budgetsync/internal/remote"
)

// WriteEntity creates or replaces one remote document. It is the point
// write behind the mutation helpers and fails fast when offline.
func (e *Engine) WriteEntity(ctx context.Context, uid string, coll remote.Collection, v core.Entity) Result {
	if !e.OnlineStatus() {
		return fail(KindOffline, MsgOffline)
	}
	if uid == "" {
		return fail(KindNoUser, MsgNoUser)
	}
	data, err := remote.Encode(v)
	if err != nil {
		return failure("Write failed", err)
	}
	err = e.retry.do(ctx, "set_"+string(coll), func(ctx context.Context) error {
		return e.remote.Set(ctx, uid, coll, v.EntityID(), data)
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "Remote write failed",
			log.FieldUserID, uid,
			log.FieldCollection, string(coll),
			log.FieldEntityID, v.EntityID(),
			log.FieldError, err)
		return failure("Write failed", err)
	}
	return succeed(fmt.Sprintf("%s/%s saved", coll, v.EntityID()))
}

// DeleteEntity removes one remote document.
func (e *Engine) DeleteEntity(ctx context.Context, uid string, coll remote.Collection, id string) Result {
	if !e.OnlineStatus() {
		return fail(KindOffline, MsgOffline)
	}
	if uid == "" {
		return fail(KindNoUser, MsgNoUser)
	}
	err := e.retry.do(ctx, "delete_"+string(coll), func(ctx context.Context) error {
		return e.remote.Delete(ctx, uid, coll, id)
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "Remote delete failed",
			log.FieldUserID, uid,
			log.FieldCollection, string(coll),
			log.FieldEntityID, id,
			log.FieldError, err)
		return failure("Delete failed", err)
	}
	return succeed(fmt.Sprintf("%s/%s deleted", coll, id))
}

// WriteUser replaces the remote profile document.
func (e *Engine) WriteUser(ctx context.Context, user core.User) Result {
	if !e.OnlineStatus() {
		return fail(KindOffline, MsgOffline)
	}
	if user.ID == "" {
		return fail(KindNoUser, MsgNoUser)
	}
	data, err := remote.Encode(user)
	if err != nil {
		return failure("Write failed", err)
	}
	if err := e.retry.do(ctx, "set_user", func(ctx context.Context) error {
		return e.remote.SetUser(ctx, user.ID, data)
	}); err != nil {
		return failure("Write failed", err)
	}
	return succeed("profile saved")
}
