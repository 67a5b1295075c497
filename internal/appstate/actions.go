package appstate

import (
	"slices"

	"budgetsync/internal/core"
)

// Action is a state transition.
type Action interface {
	reduce(s State, month string) State
}

// DataAction changes the aggregate. ApplyTo is also used to replay the
// same change onto the locally cached copy.
type DataAction interface {
	Action
	ApplyTo(d core.LocalData) core.LocalData
}

type (
	AddTransaction    struct{ Transaction core.Transaction }
	DeleteTransaction struct{ ID string }
	AddCategory       struct{ Category core.Category }
	DeleteCategory    struct{ ID string }
	AddBudget         struct{ Budget core.Budget }
	UpdateBudget      struct{ Budget core.Budget }
	DeleteBudget      struct{ ID string }
	UpdateUser        struct{ User core.User }
	// LoadData replaces the whole aggregate, e.g. after a sync or a
	// listener update.
	LoadData struct{ Data core.LocalData }
	Reset    struct{}

	SetLoading    struct{ Loading bool }
	SetSyncStatus struct{ Status SyncStatus }
)

func without[T core.Entity](items []T, id string) []T {
	return slices.DeleteFunc(slices.Clone(items), func(it T) bool { return it.EntityID() == id })
}

func (a AddTransaction) ApplyTo(d core.LocalData) core.LocalData {
	d = d.Clone()
	d.Transactions = append(d.Transactions, a.Transaction)
	return d
}

func (a DeleteTransaction) ApplyTo(d core.LocalData) core.LocalData {
	d = d.Clone()
	d.Transactions = without(d.Transactions, a.ID)
	return d
}

func (a AddCategory) ApplyTo(d core.LocalData) core.LocalData {
	d = d.Clone()
	d.Categories = append(d.Categories, a.Category)
	return d
}

func (a DeleteCategory) ApplyTo(d core.LocalData) core.LocalData {
	d = d.Clone()
	d.Categories = without(d.Categories, a.ID)
	return d
}

func (a AddBudget) ApplyTo(d core.LocalData) core.LocalData {
	d = d.Clone()
	d.Budgets = append(d.Budgets, a.Budget)
	return d
}

func (a UpdateBudget) ApplyTo(d core.LocalData) core.LocalData {
	d = d.Clone()
	for i, b := range d.Budgets {
		if b.ID == a.Budget.ID {
			d.Budgets[i] = a.Budget
		}
	}
	return d
}

func (a DeleteBudget) ApplyTo(d core.LocalData) core.LocalData {
	d = d.Clone()
	d.Budgets = without(d.Budgets, a.ID)
	return d
}

func (a UpdateUser) ApplyTo(d core.LocalData) core.LocalData {
	d = d.Clone()
	d.User = a.User
	return d
}

func (a LoadData) ApplyTo(core.LocalData) core.LocalData { return a.Data.Clone() }
func (Reset) ApplyTo(core.LocalData) core.LocalData      { return core.LocalData{}.Clone() }

func (a AddTransaction) reduce(s State, m string) State    { return s.withData(a.ApplyTo(s.Data()), m) }
func (a DeleteTransaction) reduce(s State, m string) State { return s.withData(a.ApplyTo(s.Data()), m) }
func (a AddCategory) reduce(s State, m string) State       { return s.withData(a.ApplyTo(s.Data()), m) }
func (a DeleteCategory) reduce(s State, m string) State    { return s.withData(a.ApplyTo(s.Data()), m) }
func (a AddBudget) reduce(s State, m string) State         { return s.withData(a.ApplyTo(s.Data()), m) }
func (a UpdateBudget) reduce(s State, m string) State      { return s.withData(a.ApplyTo(s.Data()), m) }
func (a DeleteBudget) reduce(s State, m string) State      { return s.withData(a.ApplyTo(s.Data()), m) }
func (a UpdateUser) reduce(s State, m string) State        { return s.withData(a.ApplyTo(s.Data()), m) }
func (a LoadData) reduce(s State, m string) State          { return s.withData(a.ApplyTo(s.Data()), m) }

func (Reset) reduce(State, string) State { return initialState() }

func (a SetLoading) reduce(s State, _ string) State {
	s.Loading = a.Loading
	return s
}

func (a SetSyncStatus) reduce(s State, _ string) State {
	s.SyncStatus = a.Status
	return s
}
