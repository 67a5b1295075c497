package appstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/core"
)

var june = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

func tx(id string, tt core.TransactionType, amount float64, date string) core.Transaction {
	return core.Transaction{
		ID: id, Type: tt, Amount: core.NewMoney(amount), Description: "d " + id,
		Category: "Food & Dining", Date: date, CreatedAt: "2024-06-01T00:00:00.000Z",
	}
}

func TestReduce_TransactionsUpdateStats(t *testing.T) {
	s := initialState()
	s = Reduce(s, AddTransaction{Transaction: tx("a", core.Income, 1000, "2024-06-02")}, "2024-06")
	s = Reduce(s, AddTransaction{Transaction: tx("b", core.Expense, 250, "2024-06-03")}, "2024-06")
	s = Reduce(s, AddTransaction{Transaction: tx("c", core.Expense, 99, "2024-05-30")}, "2024-06")

	require.Len(t, s.Transactions, 3)
	assert.Equal(t, "1000.00", s.Stats.TotalIncome.String())
	assert.Equal(t, "250.00", s.Stats.TotalExpenses.String())
	assert.Equal(t, "750.00", s.Stats.Balance.String())
	assert.InDelta(t, 75.0, s.Stats.SavingsRate, 0.001)

	s = Reduce(s, DeleteTransaction{ID: "b"}, "2024-06")
	assert.Len(t, s.Transactions, 2)
	assert.True(t, s.Stats.TotalExpenses.IsZero())
}

func TestReduce_Budgets(t *testing.T) {
	b := core.Budget{ID: "b1", Category: "Food & Dining", Amount: core.NewMoney(300), Period: core.Monthly, StartDate: "2024-06-01"}
	s := Reduce(initialState(), AddBudget{Budget: b}, "2024-06")
	assert.Equal(t, "300.00", s.Stats.MonthlyBudget.String())

	b.Amount = core.NewMoney(400)
	s = Reduce(s, UpdateBudget{Budget: b}, "2024-06")
	require.Len(t, s.Budgets, 1)
	assert.Equal(t, "400.00", s.Stats.MonthlyBudget.String())

	s = Reduce(s, DeleteBudget{ID: "b1"}, "2024-06")
	assert.Empty(t, s.Budgets)
}

func TestReduce_LoadDataAndReset(t *testing.T) {
	data := core.EmptyData(core.DefaultUser("u1", "u1@example.com", "U", "", june))
	data.Transactions = []core.Transaction{tx("a", core.Expense, 10, "2024-06-01")}

	s := Reduce(initialState(), LoadData{Data: data}, "2024-06")
	require.NotNil(t, s.User)
	assert.Equal(t, "u1", s.User.ID)
	assert.Len(t, s.Categories, len(core.DefaultCategories()))
	assert.Equal(t, data, s.Data())

	s = Reduce(s, SetSyncStatus{Status: StatusSynced}, "2024-06")
	assert.Equal(t, StatusSynced, s.SyncStatus)

	s = Reduce(s, Reset{}, "2024-06")
	assert.Nil(t, s.User)
	assert.Empty(t, s.Transactions)
	assert.Equal(t, StatusIdle, s.SyncStatus)
}

func TestApplyTo_DoesNotAliasInput(t *testing.T) {
	in := core.LocalData{Transactions: []core.Transaction{tx("a", core.Expense, 1, "2024-06-01")}}
	out := DeleteTransaction{ID: "a"}.ApplyTo(in)
	assert.Empty(t, out.Transactions)
	assert.Len(t, in.Transactions, 1)
}

func TestStore_SubscribeAndCancel(t *testing.T) {
	st := NewStore(WithClock(func() time.Time { return june }))
	var seen []int
	cancel := st.Subscribe(func(s State) { seen = append(seen, len(s.Transactions)) })

	st.Dispatch(AddTransaction{Transaction: tx("a", core.Expense, 5, "2024-06-01")})
	st.OnDataChange(core.LocalData{Transactions: []core.Transaction{
		tx("a", core.Expense, 5, "2024-06-01"), tx("b", core.Expense, 5, "2024-06-02"),
	}})
	cancel()
	st.Dispatch(Reset{})

	assert.Equal(t, []int{1, 2}, seen)
	assert.Empty(t, st.Snapshot().Transactions)
}
