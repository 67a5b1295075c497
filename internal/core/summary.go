package core

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetStats is the monthly overview derived from transactions and budgets.
type BudgetStats struct {
	TotalIncome   Money   `json:"totalIncome"`
	TotalExpenses Money   `json:"totalExpenses"`
	Balance       Money   `json:"balance"`
	SavingsRate   float64 `json:"savingsRate"`
	MonthlyBudget Money   `json:"monthlyBudget"`
	BudgetUsed    Money   `json:"budgetUsed"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category   string  `json:"category"`
	Amount     Money   `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// Report is a compact summary for one month (YYYY-MM).
type Report struct {
	Period            string           `json:"period"`
	TotalIncome       Money            `json:"totalIncome"`
	TotalExpenses     Money            `json:"totalExpenses"`
	TotalInvestments  Money            `json:"totalInvestments"`
	Balance           Money            `json:"balance"`
	SavingsRate       float64          `json:"savingsRate"`
	ExpenseByCategory []CategoryAmount `json:"expenseByCategory"`
	TransactionCount  int              `json:"transactionCount"`
	GeneratedAt       string           `json:"generatedAt"`
}

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// InMonth filters transactions whose date falls in month (YYYY-MM).
func InMonth(txs []Transaction, month string) []Transaction {
	var out []Transaction
	for _, t := range txs {
		if strings.HasPrefix(t.Date, month) {
			out = append(out, t)
		}
	}
	return out
}

func sumByType(txs []Transaction, tt TransactionType) Money {
	var total Money
	for _, t := range txs {
		if t.Type == tt {
			total = total.Add(t.Amount)
		}
	}
	return total
}

func percentage(part, whole Money) float64 {
	if !whole.IsPositive() {
		return 0
	}
	p := part.Decimal().Div(whole.Decimal()).Mul(decimal.NewFromInt(100))
	return p.Round(2).InexactFloat64()
}

// ComputeStats aggregates the given month. Budget totals only count
// monthly budgets.
func ComputeStats(data LocalData, month string) BudgetStats {
	monthly := InMonth(data.Transactions, month)
	income := sumByType(monthly, Income)
	expenses := sumByType(monthly, Expense)
	balance := income.Sub(expenses)

	var budget, used Money
	for _, b := range data.Budgets {
		if b.Period != Monthly {
			continue
		}
		budget = budget.Add(b.Amount)
		used = used.Add(b.Spent)
	}

	return BudgetStats{
		TotalIncome:   income,
		TotalExpenses: expenses,
		Balance:       balance,
		SavingsRate:   percentage(balance, income),
		MonthlyBudget: budget,
		BudgetUsed:    used,
	}
}

// GenerateReport builds the monthly report. Investments count against the
// balance; the category breakdown covers expense categories with spending.
func GenerateReport(txs []Transaction, categories []Category, month string, now time.Time) Report {
	monthly := InMonth(txs, month)
	income := sumByType(monthly, Income)
	expenses := sumByType(monthly, Expense)
	investments := sumByType(monthly, Investment)
	balance := income.Sub(expenses).Sub(investments)

	breakdown := make([]CategoryAmount, 0)
	for _, c := range categories {
		if c.Type != Expense {
			continue
		}
		var total Money
		for _, t := range monthly {
			if t.Type == Expense && t.Category == c.Name {
				total = total.Add(t.Amount)
			}
		}
		if !total.IsPositive() {
			continue
		}
		breakdown = append(breakdown, CategoryAmount{
			Category:   c.Name,
			Amount:     total,
			Percentage: percentage(total, expenses),
		})
	}
	sort.SliceStable(breakdown, func(i, j int) bool {
		return breakdown[i].Amount.Cmp(breakdown[j].Amount) > 0
	})

	return Report{
		Period:            month,
		TotalIncome:       income,
		TotalExpenses:     expenses,
		TotalInvestments:  investments,
		Balance:           balance,
		SavingsRate:       percentage(balance, income),
		ExpenseByCategory: breakdown,
		TransactionCount:  len(monthly),
		GeneratedAt:       FormatTimestamp(now),
	}
}

// KeepMonth drops every transaction outside month; categories, budgets and
// the profile are kept.
func KeepMonth(data LocalData, month string) LocalData {
	out := data.Clone()
	out.Transactions = InMonth(data.Transactions, month)
	if out.Transactions == nil {
		out.Transactions = []Transaction{}
	}
	return out
}
