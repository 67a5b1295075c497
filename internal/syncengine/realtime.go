package syncengine

import (
	"context"
	"errors"
	"fmt"

	"budgetsync/internal/core"
	"budgetsync/internal/log"
	"budgetsync/internal/remote"
)

// DataChangeFunc receives the full cached aggregate after a listener
// replaced one slice of it.
type DataChangeFunc func(data core.LocalData)

var ErrNoUser = errors.New("no user id")

// SetupRealtimeSync opens listeners on the three collections and the
// profile document. Calling it again for the same user tears the previous
// set down first. Each snapshot replaces only its own slice of the cached
// aggregate; updates are skipped while there is no cache yet.
func (e *Engine) SetupRealtimeSync(ctx context.Context, uid string, onDataChange DataChangeFunc) (func(), error) {
	if uid == "" {
		return nil, ErrNoUser
	}
	e.RemoveRealtimeSync(uid)

	// Listeners outlive the request that opened them.
	ctx = context.WithoutCancel(ctx)
	l := &Listener{UserID: uid, LastSync: e.now()}

	for _, coll := range remote.Collections {
		coll := coll
		unsub, err := e.remote.Subscribe(ctx, uid, coll,
			func(docs []remote.Document) { e.applyCollection(uid, l, coll, docs, onDataChange) },
			func(err error) { e.listenerFailed(uid, l, coll, err) })
		if err != nil {
			l.stop()
			return nil, fmt.Errorf("subscribe %s: %w", coll, err)
		}
		l.unsubscribe = append(l.unsubscribe, unsub)
	}
	unsub, err := e.remote.SubscribeUser(ctx, uid,
		func(doc remote.Document, exists bool) { e.applyUser(uid, l, doc, exists, onDataChange) },
		func(err error) { e.listenerFailed(uid, l, remote.Users, err) })
	if err != nil {
		l.stop()
		return nil, fmt.Errorf("subscribe user: %w", err)
	}
	l.unsubscribe = append(l.unsubscribe, unsub)

	if prev := e.registry.replace(l); prev != nil {
		prev.stop()
	}
	e.metrics.setListeners(e.registry.Len())
	e.listenerLog.Info("Realtime sync started", log.FieldUserID, uid)

	return func() {
		if removed := e.registry.remove(uid, l); removed != nil {
			removed.stop()
			e.metrics.setListeners(e.registry.Len())
		}
	}, nil
}

// RemoveRealtimeSync stops the user's listeners. It is a no-op when none
// are registered.
func (e *Engine) RemoveRealtimeSync(uid string) {
	l := e.registry.remove(uid, nil)
	if l == nil {
		return
	}
	l.stop()
	e.metrics.setListeners(e.registry.Len())
	e.listenerLog.Info("Realtime sync stopped", log.FieldUserID, uid)
}

func (e *Engine) applyCollection(uid string, l *Listener, coll remote.Collection, docs []remote.Document, onDataChange DataChangeFunc) {
	e.applySlice(uid, l, coll, onDataChange, func(data *core.LocalData) error {
		var err error
		switch coll {
		case remote.Transactions:
			data.Transactions, err = remote.DecodeAll[core.Transaction](docs)
		case remote.Categories:
			data.Categories, err = remote.DecodeAll[core.Category](docs)
		case remote.Budgets:
			data.Budgets, err = remote.DecodeAll[core.Budget](docs)
		default:
			err = fmt.Errorf("unexpected collection %q", coll)
		}
		return err
	})
}

func (e *Engine) applyUser(uid string, l *Listener, doc remote.Document, exists bool, onDataChange DataChangeFunc) {
	if !exists {
		return
	}
	e.applySlice(uid, l, remote.Users, onDataChange, func(data *core.LocalData) error {
		var user core.User
		if err := remote.Decode(doc, &user); err != nil {
			return err
		}
		data.User = user
		return nil
	})
}

// applySlice is the read-modify-write shared by all listeners. It runs under
// localMu so concurrent slices and merges never clobber each other.
func (e *Engine) applySlice(uid string, l *Listener, coll remote.Collection, onDataChange DataChangeFunc, replace func(*core.LocalData) error) {
	ctx := context.Background()

	e.localMu.Lock()
	cur, err := e.local.GetLocalData(ctx)
	if err != nil {
		e.localMu.Unlock()
		e.listenerFailed(uid, l, coll, err)
		return
	}
	if cur == nil || !ownedBy(*cur, uid) {
		e.localMu.Unlock()
		e.listenerLog.Debug("Skipping snapshot, no local data for user", log.FieldUserID, uid, log.FieldCollection, string(coll))
		return
	}
	if err := replace(cur); err != nil {
		e.localMu.Unlock()
		e.listenerFailed(uid, l, coll, err)
		return
	}
	updated := cur.Clone()
	err = e.local.SaveLocalData(ctx, updated)
	e.localMu.Unlock()
	if err != nil {
		e.listenerFailed(uid, l, coll, err)
		return
	}

	e.registry.touch(l, e.now())
	e.listenerLog.Debug("Applied snapshot", log.FieldUserID, uid, log.FieldCollection, string(coll))
	if onDataChange != nil {
		onDataChange(updated)
	}
}

func (e *Engine) listenerFailed(uid string, l *Listener, coll remote.Collection, err error) {
	e.listenerLog.Error("Realtime listener failed",
		log.FieldUserID, uid,
		log.FieldCollection, string(coll),
		log.FieldError, err)
	e.metrics.listenerError(string(coll))
	e.registry.recordError(l, err)
	if e.onListenerError != nil {
		e.onListenerError(uid, coll, err)
	}
}
