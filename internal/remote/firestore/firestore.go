// Package firestore stores user data in Cloud Firestore under
// users/{uid} with transactions, categories and budgets sub-collections.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"budgetsync/internal/log"
	"budgetsync/internal/remote"
)

type Store struct {
	client *firestore.Client
	logger *log.Logger
}

// New connects to the project. credentialsFile may be empty to use
// application default credentials.
func New(ctx context.Context, projectID, credentialsFile string, logger *log.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{client: client, logger: logger.WithComponent(log.ComponentRemote)}, nil
}

func (s *Store) userRef(uid string) *firestore.DocumentRef {
	return s.client.Collection(string(remote.Users)).Doc(uid)
}

func (s *Store) collRef(uid string, coll remote.Collection) *firestore.CollectionRef {
	return s.userRef(uid).Collection(string(coll))
}

func (s *Store) query(uid string, coll remote.Collection) firestore.Query {
	ref := s.collRef(uid, coll)
	if coll == remote.Transactions {
		return ref.OrderBy("createdAt", firestore.Desc)
	}
	return ref.OrderBy(firestore.DocumentID, firestore.Asc)
}

func stamped(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[remote.FieldUpdatedAt] = firestore.ServerTimestamp
	return out
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func toDocument(snap *firestore.DocumentSnapshot) remote.Document {
	return remote.Document{ID: snap.Ref.ID, Data: remote.Normalize(snap.Data())}
}

func (s *Store) GetUser(ctx context.Context, uid string) (remote.Document, error) {
	snap, err := s.userRef(uid).Get(ctx)
	if isNotFound(err) {
		return remote.Document{}, remote.ErrNotFound
	}
	if err != nil {
		return remote.Document{}, fmt.Errorf("get user %s: %w", uid, err)
	}
	if !snap.Exists() {
		return remote.Document{}, remote.ErrNotFound
	}
	return toDocument(snap), nil
}

func (s *Store) SetUser(ctx context.Context, uid string, data map[string]any) error {
	if _, err := s.userRef(uid).Set(ctx, stamped(data)); err != nil {
		return fmt.Errorf("set user %s: %w", uid, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, uid string, coll remote.Collection, id string) (remote.Document, error) {
	snap, err := s.collRef(uid, coll).Doc(id).Get(ctx)
	if isNotFound(err) {
		return remote.Document{}, remote.ErrNotFound
	}
	if err != nil {
		return remote.Document{}, fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	return toDocument(snap), nil
}

func (s *Store) Set(ctx context.Context, uid string, coll remote.Collection, id string, data map[string]any) error {
	if _, err := s.collRef(uid, coll).Doc(id).Set(ctx, stamped(data)); err != nil {
		return fmt.Errorf("set %s/%s: %w", coll, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, uid string, coll remote.Collection, id string) error {
	if _, err := s.collRef(uid, coll).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll, id, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, uid string, coll remote.Collection) ([]remote.Document, error) {
	iter := s.query(uid, coll).Documents(ctx)
	defer iter.Stop()

	docs := make([]remote.Document, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", coll, err)
		}
		docs = append(docs, toDocument(snap))
	}
	return docs, nil
}

// Commit writes the batch atomically. Callers split uploads at
// remote.MaxBatchWrites.
func (s *Store) Commit(ctx context.Context, uid string, writes []remote.Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > remote.MaxBatchWrites {
		return fmt.Errorf("commit %d writes: %w", len(writes), remote.ErrBatchTooLarge)
	}

	batch := s.client.Batch()
	for _, w := range writes {
		var ref *firestore.DocumentRef
		if w.Collection == remote.Users {
			ref = s.userRef(uid)
		} else {
			ref = s.collRef(uid, w.Collection).Doc(w.ID)
		}
		if w.Delete {
			batch.Delete(ref)
			continue
		}
		batch.Set(ref, stamped(w.Data))
	}

	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit %d writes: %w", len(writes), err)
	}
	s.logger.DebugContext(ctx, "Batch committed", log.FieldUserID, uid, log.FieldCount, len(writes))
	return nil
}

// watch runs next until it fails or the subscription is cancelled. next
// hands every callback to deliver. The returned Unsubscribe blocks until the
// loop has exited, except when called from inside a callback: then it only
// cancels and that callback is the last one.
func (s *Store) watch(ctx context.Context, next func(deliver func(func())) error, stop func(), onErr remote.ErrorFunc, fields ...any) remote.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var delivering atomic.Bool
	deliver := func(cb func()) {
		if ctx.Err() != nil {
			return
		}
		delivering.Store(true)
		defer delivering.Store(false)
		cb()
	}

	go func() {
		defer close(done)
		for {
			err := next(deliver)
			if err == nil {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				return
			}
			s.logger.Warn("Snapshot listener failed", append(fields, log.FieldError, err)...)
			if onErr != nil {
				onErr(err)
			}
			return
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			stop()
			if delivering.Load() {
				return
			}
			<-done
		})
	}
}

func (s *Store) Subscribe(ctx context.Context, uid string, coll remote.Collection, fn remote.SnapshotFunc, onErr remote.ErrorFunc) (remote.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.query(uid, coll).Snapshots(ctx)

	next := func(deliver func(func())) error {
		snap, err := it.Next()
		if err != nil {
			return err
		}
		all, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		docs := make([]remote.Document, 0, len(all))
		for _, d := range all {
			docs = append(docs, toDocument(d))
		}
		deliver(func() { fn(docs) })
		return nil
	}
	stop := func() {
		cancel()
		it.Stop()
	}
	return s.watch(ctx, next, stop, onErr, log.FieldUserID, uid, log.FieldCollection, string(coll)), nil
}

func (s *Store) SubscribeUser(ctx context.Context, uid string, fn remote.UserSnapshotFunc, onErr remote.ErrorFunc) (remote.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.userRef(uid).Snapshots(ctx)

	next := func(deliver func(func())) error {
		snap, err := it.Next()
		if err != nil && !(isNotFound(err) && snap != nil) {
			return err
		}
		if !snap.Exists() {
			deliver(func() { fn(remote.Document{ID: uid}, false) })
			return nil
		}
		doc := toDocument(snap)
		deliver(func() { fn(doc, true) })
		return nil
	}
	stop := func() {
		cancel()
		it.Stop()
	}
	return s.watch(ctx, next, stop, onErr, log.FieldUserID, uid, log.FieldCollection, string(remote.Users)), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ remote.Store = (*Store)(nil)
