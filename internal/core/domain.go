package core

import (
	"errors"
	"strings"
)

const (
	Income     TransactionType = "income"
	Expense    TransactionType = "expense"
	Investment TransactionType = "investment"
)

const (
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

type (
	TransactionType string
	Period          string
	Theme           string

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Date        string          `json:"date"`
		CreatedAt   string          `json:"createdAt"`
		UpdatedAt   string          `json:"updatedAt,omitempty"`
	}

	Category struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Type      TransactionType `json:"type"`
		Color     string          `json:"color"`
		Icon      string          `json:"icon"`
		CreatedAt string          `json:"createdAt,omitempty"`
		UpdatedAt string          `json:"updatedAt,omitempty"`
	}

	Budget struct {
		ID        string `json:"id"`
		Category  string `json:"category"`
		Amount    Money  `json:"amount"`
		Spent     Money  `json:"spent"`
		Period    Period `json:"period"`
		StartDate string `json:"startDate"`
		CreatedAt string `json:"createdAt,omitempty"`
		UpdatedAt string `json:"updatedAt,omitempty"`
	}

	Notifications struct {
		Email         bool `json:"email"`
		Push          bool `json:"push"`
		BudgetAlerts  bool `json:"budgetAlerts"`
		WeeklyReports bool `json:"weeklyReports"`
	}

	Preferences struct {
		Theme          Theme  `json:"theme"`
		Language       string `json:"language"`
		DateFormat     string `json:"dateFormat"`
		CurrencyFormat string `json:"currencyFormat"`
	}

	User struct {
		ID                 string        `json:"id"`
		Name               string        `json:"name"`
		Email              string        `json:"email"`
		Avatar             string        `json:"avatar,omitempty"`
		Currency           string        `json:"currency"`
		Timezone           string        `json:"timezone"`
		MonthlyIncomeGoal  Money         `json:"monthlyIncomeGoal"`
		MonthlyExpenseGoal Money         `json:"monthlyExpenseGoal"`
		SavingsGoal        Money         `json:"savingsGoal"`
		Notifications      Notifications `json:"notifications"`
		Preferences        Preferences   `json:"preferences"`
		CreatedAt          string        `json:"createdAt"`
		UpdatedAt          string        `json:"updatedAt"`
	}

	// LocalData is the aggregate persisted locally and exchanged during sync.
	LocalData struct {
		Transactions []Transaction `json:"transactions"`
		Categories   []Category    `json:"categories"`
		Budgets      []Budget      `json:"budgets"`
		User         User          `json:"user"`
	}
)

// Entity is implemented by every list-valued record that takes part in a merge.
type Entity interface {
	EntityID() string
	Version() string
}

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyID          = errors.New("empty id")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidPeriod    = errors.New("invalid budget period")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidTheme     = errors.New("invalid theme")
)

func (t Transaction) EntityID() string { return t.ID }
func (c Category) EntityID() string    { return c.ID }
func (b Budget) EntityID() string      { return b.ID }

// Version returns the timestamp used for last-writer-wins comparisons:
// updatedAt when present, createdAt otherwise.
func (t Transaction) Version() string { return versionOf(t.UpdatedAt, t.CreatedAt) }
func (c Category) Version() string    { return versionOf(c.UpdatedAt, c.CreatedAt) }
func (b Budget) Version() string      { return versionOf(b.UpdatedAt, b.CreatedAt) }

func versionOf(updatedAt, createdAt string) string {
	if updatedAt != "" {
		return updatedAt
	}
	return createdAt
}

func (tt TransactionType) Valid() bool {
	switch tt {
	case Income, Expense, Investment:
		return true
	default:
		return false
	}
}

func (p Period) Valid() bool {
	return p == Monthly || p == Yearly
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if _, err := ParseDate(t.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if b.Amount.IsNegative() || b.Spent.IsNegative() {
		return ErrInvalidAmount
	}
	if !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	if _, err := ParseDate(b.StartDate); err != nil {
		return ErrInvalidDate
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrEmptyID
	}
	switch u.Preferences.Theme {
	case ThemeLight, ThemeDark, ThemeAuto, "":
	default:
		return ErrInvalidTheme
	}
	return nil
}

// IsZero reports whether the profile was never populated.
func (u User) IsZero() bool {
	return u.ID == "" && u.Email == "" && u.Name == "" && u.UpdatedAt == ""
}

// Clone returns a copy whose slices can be modified independently.
// Nil slices come back empty so the aggregate always encodes as arrays.
func (d LocalData) Clone() LocalData {
	return LocalData{
		Transactions: cloneSlice(d.Transactions),
		Categories:   cloneSlice(d.Categories),
		Budgets:      cloneSlice(d.Budgets),
		User:         d.User,
	}
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
