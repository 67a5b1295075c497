package appstate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetsync/internal/core"
	"budgetsync/internal/log"
	"budgetsync/internal/remote"
	"budgetsync/internal/syncengine"
)

// Engine is the part of the sync engine the mutation helpers use.
type Engine interface {
	OnlineStatus() bool
	UpdateLocal(ctx context.Context, fn func(cur *core.LocalData) *core.LocalData) error
	WriteEntity(ctx context.Context, uid string, coll remote.Collection, v core.Entity) syncengine.Result
	DeleteEntity(ctx context.Context, uid string, coll remote.Collection, id string) syncengine.Result
	WriteUser(ctx context.Context, user core.User) syncengine.Result
}

// Mutator turns user intents into optimistic state updates, local
// persistence and a best-effort remote write. Remote failures are logged
// and never undo the local change.
type Mutator struct {
	store  *Store
	engine Engine
	uid    string
	logger *log.Logger
	now    func() time.Time
	newID  func() string

	// background is detached from callers so remote writes survive the
	// request that triggered them.
	background context.Context
	wg         sync.WaitGroup
}

type MutatorOption func(*Mutator)

func WithMutatorClock(now func() time.Time) MutatorOption {
	return func(m *Mutator) { m.now = now }
}

func WithIDGenerator(fn func() string) MutatorOption {
	return func(m *Mutator) { m.newID = fn }
}

func WithMutatorLogger(l *log.Logger) MutatorOption {
	return func(m *Mutator) { m.logger = l }
}

func NewMutator(store *Store, engine Engine, uid string, opts ...MutatorOption) *Mutator {
	if store == nil || engine == nil {
		panic("appstate: store and engine are required")
	}
	m := &Mutator{
		store:      store,
		engine:     engine,
		uid:        uid,
		now:        time.Now,
		newID:      uuid.NewString,
		background: context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.Discard()
	}
	m.logger = m.logger.WithComponent(log.ComponentState)
	return m
}

// TransactionInput is what a form collects for a new transaction.
type TransactionInput struct {
	Type        core.TransactionType
	Amount      core.Money
	Description string
	Category    string
	Date        string
}

type CategoryInput struct {
	Name  string
	Type  core.TransactionType
	Color string
	Icon  string
}

type BudgetInput struct {
	Category  string
	Amount    core.Money
	Period    core.Period
	StartDate string
}

func (m *Mutator) stamp() string { return core.FormatTimestamp(m.now()) }

func (m *Mutator) AddTransaction(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	ts := m.stamp()
	t := core.Transaction{
		ID:          m.newID(),
		Type:        in.Type,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Date:        in.Date,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	if err := m.apply(ctx, AddTransaction{Transaction: t}); err != nil {
		return t, err
	}
	m.push(remote.Transactions, t.ID, func(ctx context.Context) syncengine.Result {
		return m.engine.WriteEntity(ctx, m.uid, remote.Transactions, t)
	})
	return t, nil
}

func (m *Mutator) DeleteTransaction(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete transaction: %w", core.ErrEmptyID)
	}
	if err := m.apply(ctx, DeleteTransaction{ID: id}); err != nil {
		return err
	}
	m.push(remote.Transactions, id, func(ctx context.Context) syncengine.Result {
		return m.engine.DeleteEntity(ctx, m.uid, remote.Transactions, id)
	})
	return nil
}

func (m *Mutator) AddCategory(ctx context.Context, in CategoryInput) (core.Category, error) {
	ts := m.stamp()
	c := core.Category{
		ID:        m.newID(),
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Color:     in.Color,
		Icon:      in.Icon,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("add category: %w", err)
	}
	if err := m.apply(ctx, AddCategory{Category: c}); err != nil {
		return c, err
	}
	m.push(remote.Categories, c.ID, func(ctx context.Context) syncengine.Result {
		return m.engine.WriteEntity(ctx, m.uid, remote.Categories, c)
	})
	return c, nil
}

// DeleteCategory removes the category. Transactions keep the name as text.
func (m *Mutator) DeleteCategory(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete category: %w", core.ErrEmptyID)
	}
	if err := m.apply(ctx, DeleteCategory{ID: id}); err != nil {
		return err
	}
	m.push(remote.Categories, id, func(ctx context.Context) syncengine.Result {
		return m.engine.DeleteEntity(ctx, m.uid, remote.Categories, id)
	})
	return nil
}

func (m *Mutator) AddBudget(ctx context.Context, in BudgetInput) (core.Budget, error) {
	ts := m.stamp()
	b := core.Budget{
		ID:        m.newID(),
		Category:  strings.TrimSpace(in.Category),
		Amount:    in.Amount,
		Period:    in.Period,
		StartDate: in.StartDate,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("add budget: %w", err)
	}
	if err := m.apply(ctx, AddBudget{Budget: b}); err != nil {
		return b, err
	}
	m.push(remote.Budgets, b.ID, func(ctx context.Context) syncengine.Result {
		return m.engine.WriteEntity(ctx, m.uid, remote.Budgets, b)
	})
	return b, nil
}

func (m *Mutator) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.ID == "" {
		return core.Budget{}, fmt.Errorf("update budget: %w", core.ErrEmptyID)
	}
	b.UpdatedAt = m.stamp()
	if err := b.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	if err := m.apply(ctx, UpdateBudget{Budget: b}); err != nil {
		return b, err
	}
	m.push(remote.Budgets, b.ID, func(ctx context.Context) syncengine.Result {
		return m.engine.WriteEntity(ctx, m.uid, remote.Budgets, b)
	})
	return b, nil
}

func (m *Mutator) DeleteBudget(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete budget: %w", core.ErrEmptyID)
	}
	if err := m.apply(ctx, DeleteBudget{ID: id}); err != nil {
		return err
	}
	m.push(remote.Budgets, id, func(ctx context.Context) syncengine.Result {
		return m.engine.DeleteEntity(ctx, m.uid, remote.Budgets, id)
	})
	return nil
}

func (m *Mutator) UpdateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = m.uid
	}
	u.UpdatedAt = m.stamp()
	if u.CreatedAt == "" {
		u.CreatedAt = u.UpdatedAt
	}
	if err := u.Validate(); err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	if err := m.apply(ctx, UpdateUser{User: u}); err != nil {
		return u, err
	}
	m.push(remote.Users, u.ID, func(ctx context.Context) syncengine.Result {
		return m.engine.WriteUser(ctx, u)
	})
	return u, nil
}

// apply dispatches the optimistic update and replays it onto the cache.
// Without a cache the current state seeds it.
func (m *Mutator) apply(ctx context.Context, a DataAction) error {
	st := m.store.Dispatch(a)
	err := m.engine.UpdateLocal(ctx, func(cur *core.LocalData) *core.LocalData {
		var next core.LocalData
		if cur == nil {
			next = st.Data()
		} else {
			next = a.ApplyTo(*cur)
		}
		return &next
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to persist change locally", log.FieldError, err)
		return fmt.Errorf("persist locally: %w", err)
	}
	return nil
}

// push performs the remote write in the background.
func (m *Mutator) push(coll remote.Collection, id string, write func(ctx context.Context) syncengine.Result) {
	if !m.engine.OnlineStatus() {
		m.logger.Info("Offline, change kept locally until the next sync",
			log.FieldCollection, string(coll),
			log.FieldEntityID, id)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		res := write(m.background)
		if !res.Success {
			m.logger.Warn("Remote write failed, local change kept",
				log.FieldCollection, string(coll),
				log.FieldEntityID, id,
				log.FieldErrorType, res.Kind.String(),
				"message", res.Message)
			return
		}
		m.logger.Debug("Remote write completed", log.FieldCollection, string(coll), log.FieldEntityID, id)
	}()
}

// Wait blocks until pending remote writes finish.
func (m *Mutator) Wait() {
	m.wg.Wait()
}
