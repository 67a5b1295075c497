// Package memory is an in-process remote store with change fan-out. It backs
// tests and the --remote=memory mode.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/remote"
)

type tenant struct {
	user  map[string]any
	colls map[remote.Collection]map[string]map[string]any
}

type subscription struct {
	id      uint64
	uid     string
	coll    remote.Collection
	onDocs  remote.SnapshotFunc
	onUser  remote.UserSnapshotFunc
	mu      sync.Mutex
	closed  atomic.Bool
	lastSeq uint64
}

type Store struct {
	mu      sync.Mutex
	tenants map[string]*tenant
	subs    map[uint64]*subscription
	nextSub uint64
	seq     uint64
	now     func() time.Time

	failure atomic.Pointer[error]
	calls   atomic.Int64
}

type Option func(*Store)

// WithClock sets the source of server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		tenants: make(map[string]*tenant),
		subs:    make(map[uint64]*subscription),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fail makes every following call return err until Fail(nil).
func (s *Store) Fail(err error) {
	if err == nil {
		s.failure.Store(nil)
		return
	}
	s.failure.Store(&err)
}

// Calls counts every operation attempted against the store.
func (s *Store) Calls() int64 { return s.calls.Load() }

func (s *Store) enter() error {
	s.calls.Add(1)
	if p := s.failure.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Store) tenant(uid string) *tenant {
	t, ok := s.tenants[uid]
	if !ok {
		t = &tenant{colls: make(map[remote.Collection]map[string]map[string]any)}
		s.tenants[uid] = t
	}
	return t
}

func (s *Store) stamp(data map[string]any) map[string]any {
	out := remote.Normalize(data)
	if out == nil {
		out = map[string]any{}
	}
	out[remote.FieldUpdatedAt] = core.FormatTimestamp(s.now())
	return out
}

func validCollection(coll remote.Collection) error {
	switch coll {
	case remote.Transactions, remote.Categories, remote.Budgets:
		return nil
	default:
		return fmt.Errorf("unknown collection %q", coll)
	}
}

func (s *Store) GetUser(_ context.Context, uid string) (remote.Document, error) {
	if err := s.enter(); err != nil {
		return remote.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[uid]
	if !ok || t.user == nil {
		return remote.Document{}, remote.ErrNotFound
	}
	return remote.Document{ID: uid, Data: remote.Normalize(t.user)}, nil
}

func (s *Store) SetUser(ctx context.Context, uid string, data map[string]any) error {
	return s.Commit(ctx, uid, []remote.Write{remote.UserWrite(data)})
}

func (s *Store) Get(_ context.Context, uid string, coll remote.Collection, id string) (remote.Document, error) {
	if err := s.enter(); err != nil {
		return remote.Document{}, err
	}
	if err := validCollection(coll); err != nil {
		return remote.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[uid]
	if !ok {
		return remote.Document{}, remote.ErrNotFound
	}
	data, ok := t.colls[coll][id]
	if !ok {
		return remote.Document{}, remote.ErrNotFound
	}
	return remote.Document{ID: id, Data: remote.Normalize(data)}, nil
}

func (s *Store) Set(ctx context.Context, uid string, coll remote.Collection, id string, data map[string]any) error {
	return s.Commit(ctx, uid, []remote.Write{{Collection: coll, ID: id, Data: data}})
}

func (s *Store) Delete(ctx context.Context, uid string, coll remote.Collection, id string) error {
	return s.Commit(ctx, uid, []remote.Write{{Collection: coll, ID: id, Delete: true}})
}

func (s *Store) List(_ context.Context, uid string, coll remote.Collection) ([]remote.Document, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	if err := validCollection(coll); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(uid, coll), nil
}

func (s *Store) snapshotLocked(uid string, coll remote.Collection) []remote.Document {
	docs := make([]remote.Document, 0)
	if t, ok := s.tenants[uid]; ok {
		for id, data := range t.colls[coll] {
			docs = append(docs, remote.Document{ID: id, Data: remote.Normalize(data)})
		}
	}
	remote.SortDocuments(coll, docs)
	return docs
}

// Commit validates the whole batch before touching anything, so a bad write
// leaves the store unchanged.
func (s *Store) Commit(_ context.Context, uid string, writes []remote.Write) error {
	if err := s.enter(); err != nil {
		return err
	}
	if uid == "" {
		return fmt.Errorf("commit: empty user id")
	}
	if len(writes) > remote.MaxBatchWrites {
		return fmt.Errorf("commit %d writes: %w", len(writes), remote.ErrBatchTooLarge)
	}
	for _, w := range writes {
		if w.Collection == remote.Users {
			if w.Delete {
				return fmt.Errorf("commit: deleting the profile document is not supported")
			}
			continue
		}
		if err := validCollection(w.Collection); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if w.ID == "" {
			return fmt.Errorf("commit: empty document id in %s", w.Collection)
		}
	}
	if len(writes) == 0 {
		return nil
	}

	s.mu.Lock()
	t := s.tenant(uid)
	touched := map[remote.Collection]bool{}
	for _, w := range writes {
		switch {
		case w.Collection == remote.Users:
			t.user = s.stamp(w.Data)
		case w.Delete:
			delete(t.colls[w.Collection], w.ID)
		default:
			if t.colls[w.Collection] == nil {
				t.colls[w.Collection] = make(map[string]map[string]any)
			}
			t.colls[w.Collection][w.ID] = s.stamp(w.Data)
		}
		touched[w.Collection] = true
	}
	deliveries := s.pendingLocked(uid, touched)
	s.mu.Unlock()

	for _, d := range deliveries {
		d()
	}
	return nil
}

// pendingLocked captures snapshots for every affected subscriber while the
// store lock is held and returns the deliveries to run after it is released.
func (s *Store) pendingLocked(uid string, touched map[remote.Collection]bool) []func() {
	var out []func()
	for _, sub := range s.subs {
		if sub.uid != uid || !touched[sub.coll] {
			continue
		}
		out = append(out, s.deliveryLocked(sub))
	}
	return out
}

func (s *Store) deliveryLocked(sub *subscription) func() {
	s.seq++
	seq := s.seq
	if sub.coll == remote.Users {
		var doc remote.Document
		exists := false
		if t, ok := s.tenants[sub.uid]; ok && t.user != nil {
			doc = remote.Document{ID: sub.uid, Data: remote.Normalize(t.user)}
			exists = true
		}
		return func() {
			sub.mu.Lock()
			defer sub.mu.Unlock()
			if sub.closed.Load() || seq <= sub.lastSeq {
				return
			}
			sub.lastSeq = seq
			sub.onUser(doc, exists)
		}
	}
	docs := s.snapshotLocked(sub.uid, sub.coll)
	return func() {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.closed.Load() || seq <= sub.lastSeq {
			return
		}
		sub.lastSeq = seq
		sub.onDocs(docs)
	}
}

func (s *Store) subscribe(uid string, coll remote.Collection, onDocs remote.SnapshotFunc, onUser remote.UserSnapshotFunc) remote.Unsubscribe {
	s.mu.Lock()
	s.nextSub++
	sub := &subscription{id: s.nextSub, uid: uid, coll: coll, onDocs: onDocs, onUser: onUser}
	s.subs[sub.id] = sub
	initial := s.deliveryLocked(sub)
	s.mu.Unlock()

	initial()

	return func() {
		s.mu.Lock()
		delete(s.subs, sub.id)
		s.mu.Unlock()
		sub.closed.Store(true)
	}
}

// Subscribe delivers snapshots synchronously from the writing goroutine.
// Callbacks must not write to this store.
func (s *Store) Subscribe(_ context.Context, uid string, coll remote.Collection, fn remote.SnapshotFunc, _ remote.ErrorFunc) (remote.Unsubscribe, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	if err := validCollection(coll); err != nil {
		return nil, err
	}
	return s.subscribe(uid, coll, fn, nil), nil
}

func (s *Store) SubscribeUser(_ context.Context, uid string, fn remote.UserSnapshotFunc, _ remote.ErrorFunc) (remote.Unsubscribe, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	return s.subscribe(uid, remote.Users, nil, fn), nil
}

// Subscribers reports the number of open subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) Close() error { return nil }

var _ remote.Store = (*Store)(nil)
