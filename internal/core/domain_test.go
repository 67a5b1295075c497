package core

import (
	"errors"
	"testing"
	"time"
)

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:          "t1",
		Type:        Expense,
		Amount:      NewMoney(12.5),
		Description: "Groceries",
		Category:    "Food & Dining",
		Date:        "2025-01-15",
		CreatedAt:   "2025-01-15T10:00:00Z",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mod  func(*Transaction)
		want error
	}{
		{"bad type", func(tx *Transaction) { tx.Type = "gift" }, ErrInvalidType},
		{"negative amount", func(tx *Transaction) { tx.Amount = NewMoney(-1) }, ErrInvalidAmount},
		{"empty description", func(tx *Transaction) { tx.Description = "  " }, ErrEmptyDescription},
		{"empty category", func(tx *Transaction) { tx.Category = "" }, ErrEmptyCategory},
		{"bad date", func(tx *Transaction) { tx.Date = "15/01/2025" }, ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := good
			tc.mod(&tx)
			if err := tx.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBudgetValidate(t *testing.T) {
	b := Budget{ID: "b1", Category: "Shopping", Amount: NewMoney(400), Period: Monthly, StartDate: "2025-01-01"}
	if err := b.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	b.Period = "weekly"
	if err := b.Validate(); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestCategoryAndUserValidate(t *testing.T) {
	if err := (Category{Name: "Rent", Type: Expense}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Category{Type: Expense}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}

	u := DefaultUser("u1", "a@b.c", "Ann", "", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := u.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	u.Preferences.Theme = "neon"
	if err := u.Validate(); !errors.Is(err, ErrInvalidTheme) {
		t.Fatalf("expected ErrInvalidTheme, got %v", err)
	}
}

func TestVersionPrefersUpdatedAt(t *testing.T) {
	tx := Transaction{CreatedAt: "2024-01-01T00:00:00Z"}
	if tx.Version() != "2024-01-01T00:00:00Z" {
		t.Fatalf("expected createdAt fallback, got %q", tx.Version())
	}
	tx.UpdatedAt = "2024-02-01T00:00:00Z"
	if tx.Version() != "2024-02-01T00:00:00Z" {
		t.Fatalf("expected updatedAt, got %q", tx.Version())
	}
}

func TestIsNewer(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"2024-01-02", "2024-01-01", true},
		{"2024-01-01", "2024-01-02", false},
		{"2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z", false},
		{"2024-01-01T00:00:00.001Z", "2024-01-01T00:00:00Z", true},
		{"garbage", "2024-01-01", false},
		{"2024-01-01", "", false},
	}
	for _, tc := range cases {
		if got := IsNewer(tc.a, tc.b); got != tc.want {
			t.Fatalf("IsNewer(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestDefaultCategories(t *testing.T) {
	cats := DefaultCategories()
	if len(cats) != 15 {
		t.Fatalf("expected 15 default categories, got %d", len(cats))
	}
	seen := map[string]bool{}
	for _, c := range cats {
		if seen[c.ID] {
			t.Fatalf("duplicate id %s", c.ID)
		}
		seen[c.ID] = true
		if err := c.Validate(); err != nil {
			t.Fatalf("default category %s invalid: %v", c.ID, err)
		}
	}
}

func TestCloneNeverNil(t *testing.T) {
	c := LocalData{}.Clone()
	if c.Transactions == nil || c.Categories == nil || c.Budgets == nil {
		t.Fatalf("clone should return empty slices, got %+v", c)
	}
}
