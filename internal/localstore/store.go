// Package localstore persists the cached aggregate and the last sync
// timestamp in a key/value backend.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/log"
)

const (
	DataKey          = "budget-app-data"
	SyncTimestampKey = "budget-app-sync-timestamp"
)

// KeyValueStore is the persistence capability the adapter needs. A missing
// key is reported with ok=false and a nil error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Lister is implemented by backends that can enumerate keys by prefix.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type Store struct {
	kv        KeyValueStore
	logger    *log.Logger
	namespace string
	now       func() time.Time
}

type Option func(*Store)

// WithNamespace prefixes both keys so several users can share one backend.
func WithNamespace(ns string) Option {
	return func(s *Store) { s.namespace = ns }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used for sync timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(kv KeyValueStore, opts ...Option) *Store {
	if kv == nil {
		panic("localstore: nil key/value store")
	}
	s := &Store{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	s.logger = s.logger.WithComponent(log.ComponentLocalStore)
	return s
}

func (s *Store) key(k string) string {
	if s.namespace == "" {
		return k
	}
	return s.namespace + ":" + k
}

// Namespace returns the key prefix, empty for the default layout.
func (s *Store) Namespace() string { return s.namespace }

// GetLocalData returns the cached aggregate, or nil when there is none.
// A blob that cannot be parsed is evicted and reported as absent.
func (s *Store) GetLocalData(ctx context.Context) (*core.LocalData, error) {
	key := s.key(DataKey)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read local data: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var data core.LocalData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		s.logger.WarnContext(ctx, "Discarding corrupt local data",
			log.FieldKey, key,
			log.FieldErrorType, log.ErrorTypeCorruption,
			log.FieldError, err)
		if derr := s.kv.Delete(ctx, key); derr != nil {
			s.logger.WarnContext(ctx, "Failed to evict corrupt local data", log.FieldKey, key, log.FieldError, derr)
		}
		return nil, nil
	}
	data = data.Clone()
	return &data, nil
}

func (s *Store) SaveLocalData(ctx context.Context, data core.LocalData) error {
	b, err := json.Marshal(data.Clone())
	if err != nil {
		return fmt.Errorf("encode local data: %w", err)
	}
	if err := s.kv.Set(ctx, s.key(DataKey), string(b)); err != nil {
		return fmt.Errorf("save local data: %w", err)
	}
	s.logger.DebugContext(ctx, "Local data saved",
		"transactions", len(data.Transactions),
		"categories", len(data.Categories),
		"budgets", len(data.Budgets))
	return nil
}

// LastSyncTimestamp returns the last successful sync in epoch milliseconds,
// 0 when unknown.
func (s *Store) LastSyncTimestamp(ctx context.Context) int64 {
	raw, ok, err := s.kv.Get(ctx, s.key(SyncTimestampKey))
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read sync timestamp", log.FieldError, err)
		return 0
	}
	if !ok {
		return 0
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return ms
}

// LastSync is LastSyncTimestamp as a time; the zero time when unknown.
func (s *Store) LastSync(ctx context.Context) time.Time {
	ms := s.LastSyncTimestamp(ctx)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (s *Store) UpdateSyncTimestamp(ctx context.Context) error {
	ms := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.kv.Set(ctx, s.key(SyncTimestampKey), ms); err != nil {
		return fmt.Errorf("update sync timestamp: %w", err)
	}
	return nil
}

func (s *Store) ClearLocalData(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key(DataKey), s.key(SyncTimestampKey)); err != nil {
		return fmt.Errorf("clear local data: %w", err)
	}
	s.logger.InfoContext(ctx, "Local data cleared", "namespace", s.namespace)
	return nil
}

// Namespaces lists the namespaces that hold a cached aggregate. It needs a
// backend that implements Lister.
func Namespaces(ctx context.Context, kv KeyValueStore) ([]string, error) {
	l, ok := kv.(Lister)
	if !ok {
		return nil, fmt.Errorf("list namespaces: backend %T cannot enumerate keys", kv)
	}
	keys, err := l.Keys(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	suffix := ":" + DataKey
	var out []string
	for _, k := range keys {
		if ns, found := strings.CutSuffix(k, suffix); found && ns != "" {
			out = append(out, ns)
		}
	}
	return out, nil
}
