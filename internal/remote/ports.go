// Package remote defines the per-user document store that acts as the
// system of record: a users/{uid} profile document with transactions,
// categories and budgets sub-collections.
package remote

import (
	"context"
	"errors"
)

type Collection string

const (
	Users        Collection = "users"
	Transactions Collection = "transactions"
	Categories   Collection = "categories"
	Budgets      Collection = "budgets"
)

// FieldUpdatedAt is stamped by the store on every write.
const FieldUpdatedAt = "updatedAt"

// Collections lists the per-user sub-collections.
var Collections = []Collection{Transactions, Categories, Budgets}

var (
	ErrNotFound = errors.New("document not found")
	// ErrBatchTooLarge is returned by Commit for more than MaxBatchWrites writes.
	ErrBatchTooLarge = errors.New("batch exceeds write limit")
)

// MaxBatchWrites is the most writes one Commit accepts (the Firestore cap).
const MaxBatchWrites = 500

// Document is one stored record. Data holds plain JSON-compatible values;
// native timestamps are already rendered as RFC 3339 strings.
type Document struct {
	ID   string
	Data map[string]any
}

// Write is one element of an atomic batch. Collection Users targets the
// profile document itself and ignores ID.
type Write struct {
	Collection Collection
	ID         string
	Data       map[string]any
	Delete     bool
}

// UserWrite targets the profile document.
func UserWrite(data map[string]any) Write {
	return Write{Collection: Users, Data: data}
}

type (
	// Unsubscribe stops a subscription. Once it returns no further callback
	// starts. It may be called from inside the subscription's own callback.
	Unsubscribe func()

	SnapshotFunc     func(docs []Document)
	UserSnapshotFunc func(doc Document, exists bool)
	ErrorFunc        func(err error)
)

// Store is the outbound port to the remote document database.
type Store interface {
	GetUser(ctx context.Context, uid string) (Document, error)
	SetUser(ctx context.Context, uid string, data map[string]any) error

	Get(ctx context.Context, uid string, coll Collection, id string) (Document, error)
	Set(ctx context.Context, uid string, coll Collection, id string, data map[string]any) error
	Delete(ctx context.Context, uid string, coll Collection, id string) error

	// List returns transactions newest first by createdAt and the other
	// collections in id order.
	List(ctx context.Context, uid string, coll Collection) ([]Document, error)

	// Commit applies every write or none. Larger batches than MaxBatchWrites
	// fail with ErrBatchTooLarge.
	Commit(ctx context.Context, uid string, writes []Write) error

	// Subscribe delivers the current contents and then one snapshot per change.
	Subscribe(ctx context.Context, uid string, coll Collection, fn SnapshotFunc, onErr ErrorFunc) (Unsubscribe, error)
	SubscribeUser(ctx context.Context, uid string, fn UserSnapshotFunc, onErr ErrorFunc) (Unsubscribe, error)

	Close() error
}
