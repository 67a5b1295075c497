// Package appstate is the in-memory mirror of a user's budget data that UI
// layers read from. Mutations are applied optimistically and then
// persisted through the sync engine.
package appstate

import (
	"sync"
	"time"

	"budgetsync/internal/core"
)

type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusError   SyncStatus = "error"
	StatusOffline SyncStatus = "offline"
)

type State struct {
	Transactions []core.Transaction
	Categories   []core.Category
	Budgets      []core.Budget
	User         *core.User
	Stats        core.BudgetStats
	Loading      bool
	SyncStatus   SyncStatus
}

func initialState() State {
	return State{
		Transactions: []core.Transaction{},
		Categories:   []core.Category{},
		Budgets:      []core.Budget{},
		SyncStatus:   StatusIdle,
	}
}

// Data returns the aggregate held by the state.
func (s State) Data() core.LocalData {
	d := core.LocalData{
		Transactions: s.Transactions,
		Categories:   s.Categories,
		Budgets:      s.Budgets,
	}
	if s.User != nil {
		d.User = *s.User
	}
	return d.Clone()
}

func (s State) withData(d core.LocalData, month string) State {
	d = d.Clone()
	s.Transactions = d.Transactions
	s.Categories = d.Categories
	s.Budgets = d.Budgets
	if d.User.IsZero() {
		s.User = nil
	} else {
		u := d.User
		s.User = &u
	}
	s.Stats = core.ComputeStats(d, month)
	return s
}

// Reduce applies a to s. Stats are recomputed for month (YYYY-MM) whenever
// the aggregate changes.
func Reduce(s State, a Action, month string) State {
	return a.reduce(s, month)
}

type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	next      int
	now       func() time.Time
}

type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		state:     initialState(),
		listeners: make(map[int]func(State)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch applies a and notifies subscribers with the new state.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	s.state = Reduce(s.state, a, core.MonthKey(s.now()))
	st := s.state
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
	return st
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every transition and returns its cancel.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// OnDataChange adapts the store to the sync engine's listener callback.
func (s *Store) OnDataChange(data core.LocalData) {
	s.Dispatch(LoadData{Data: data})
}
