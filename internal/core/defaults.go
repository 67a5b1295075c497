package core

import "time"

// DefaultCategories is the fixed set handed to accounts that have none yet.
func DefaultCategories() []Category {
	return []Category{
		{ID: "cat_salary", Name: "Salary", Type: Income, Color: "#10B981", Icon: "briefcase"},
		{ID: "cat_freelance", Name: "Freelance", Type: Income, Color: "#059669", Icon: "laptop"},
		{ID: "cat_bonus", Name: "Bonus", Type: Income, Color: "#047857", Icon: "gift"},
		{ID: "cat_investment_income", Name: "Investment Returns", Type: Income, Color: "#065F46", Icon: "trending-up"},

		{ID: "cat_food", Name: "Food & Dining", Type: Expense, Color: "#EF4444", Icon: "restaurant"},
		{ID: "cat_transport", Name: "Transportation", Type: Expense, Color: "#DC2626", Icon: "car"},
		{ID: "cat_shopping", Name: "Shopping", Type: Expense, Color: "#B91C1C", Icon: "bag"},
		{ID: "cat_entertainment", Name: "Entertainment", Type: Expense, Color: "#991B1B", Icon: "film"},
		{ID: "cat_bills", Name: "Bills & Utilities", Type: Expense, Color: "#7F1D1D", Icon: "receipt"},
		{ID: "cat_healthcare", Name: "Healthcare", Type: Expense, Color: "#F87171", Icon: "medical"},
		{ID: "cat_education", Name: "Education", Type: Expense, Color: "#FCA5A5", Icon: "school"},

		{ID: "cat_stocks", Name: "Stocks", Type: Investment, Color: "#8B5CF6", Icon: "bar-chart"},
		{ID: "cat_crypto", Name: "Cryptocurrency", Type: Investment, Color: "#7C3AED", Icon: "logo-bitcoin"},
		{ID: "cat_real_estate", Name: "Real Estate", Type: Investment, Color: "#6D28D9", Icon: "home"},
		{ID: "cat_mutual_funds", Name: "Mutual Funds", Type: Investment, Color: "#5B21B6", Icon: "pie-chart"},
	}
}

// DefaultUser returns the profile created on first sign-in.
func DefaultUser(id, email, name, timezone string, now time.Time) User {
	if timezone == "" {
		timezone = "UTC"
	}
	ts := FormatTimestamp(now)
	return User{
		ID:                 id,
		Name:               name,
		Email:              email,
		Currency:           "USD",
		Timezone:           timezone,
		MonthlyIncomeGoal:  NewMoney(5000),
		MonthlyExpenseGoal: NewMoney(3000),
		SavingsGoal:        NewMoney(2000),
		Notifications: Notifications{
			Email:         true,
			Push:          true,
			BudgetAlerts:  true,
			WeeklyReports: false,
		},
		Preferences: Preferences{
			Theme:          ThemeLight,
			Language:       "en",
			DateFormat:     "MM/dd/yyyy",
			CurrencyFormat: "$#,##0.00",
		},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// EmptyData is the aggregate for a fresh account.
func EmptyData(user User) LocalData {
	return LocalData{
		Transactions: []Transaction{},
		Categories:   DefaultCategories(),
		Budgets:      []Budget{},
		User:         user,
	}
}
