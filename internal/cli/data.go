package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"budgetsync/internal/appstate"
	"budgetsync/internal/core"
)

// mutator loads the cached aggregate into a fresh state store so edits are
// applied on top of it.
func (s *session) mutator(ctx context.Context) (*appstate.Mutator, error) {
	store := appstate.NewStore()
	cached, err := s.engine.LocalData(ctx)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		store.Dispatch(appstate.LoadData{Data: *cached})
	}
	return appstate.NewMutator(store, s.engine, s.uid, appstate.WithMutatorLogger(s.logger)), nil
}

func parseAmount(s string) (core.Money, error) {
	m, err := core.ParseMoney(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("amount %q: %w", s, err)
	}
	return m, nil
}

func today() string { return time.Now().Format(core.DateLayout) }

func newAddTransactionCommand(opts *rootOptions) *cobra.Command {
	var txType, amount, description, category, date string
	cmd := &cobra.Command{
		Use:   "add-transaction",
		Short: "Record an income, expense or investment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := parseAmount(amount)
			if err != nil {
				return err
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.mutator(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Wait()
			t, err := m.AddTransaction(cmd.Context(), appstate.TransactionInput{
				Type:        core.TransactionType(strings.ToLower(txType)),
				Amount:      amt,
				Description: description,
				Category:    category,
				Date:        date,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&txType, "type", string(core.Expense), "income, expense or investment")
	f.StringVar(&amount, "amount", "", "amount, e.g. 12.50 (required)")
	f.StringVar(&description, "description", "", "description (required)")
	f.StringVar(&category, "category", "", "category name (required)")
	f.StringVar(&date, "date", today(), "date as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newDeleteTransactionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-transaction <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.mutator(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Wait()
			return m.DeleteTransaction(cmd.Context(), args[0])
		},
	}
}

func newAddCategoryCommand(opts *rootOptions) *cobra.Command {
	var name, catType, color, icon string
	cmd := &cobra.Command{
		Use:   "add-category",
		Short: "Create a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.mutator(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Wait()
			c, err := m.AddCategory(cmd.Context(), appstate.CategoryInput{
				Name:  name,
				Type:  core.TransactionType(strings.ToLower(catType)),
				Color: color,
				Icon:  icon,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "category name (required)")
	f.StringVar(&catType, "type", string(core.Expense), "income, expense or investment")
	f.StringVar(&color, "color", "#6B7280", "display color")
	f.StringVar(&icon, "icon", "pricetag", "icon name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newAddBudgetCommand(opts *rootOptions) *cobra.Command {
	var category, amount, period, start string
	cmd := &cobra.Command{
		Use:   "add-budget",
		Short: "Set a spending budget for a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := parseAmount(amount)
			if err != nil {
				return err
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.mutator(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Wait()
			b, err := m.AddBudget(cmd.Context(), appstate.BudgetInput{
				Category:  category,
				Amount:    amt,
				Period:    core.Period(strings.ToLower(period)),
				StartDate: start,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), b.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&category, "category", "", "category name (required)")
	f.StringVar(&amount, "amount", "", "budget amount (required)")
	f.StringVar(&period, "period", string(core.Monthly), "monthly or yearly")
	f.StringVar(&start, "start-date", today(), "first day as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize one month of cached data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := time.Parse("2006-01", month); err != nil {
				return fmt.Errorf("month %q: want YYYY-MM", month)
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			cached, err := s.engine.LocalData(cmd.Context())
			if err != nil {
				return err
			}
			var data core.LocalData
			if cached != nil {
				data = *cached
			}
			return writeJSON(cmd.OutOrStdout(), core.GenerateReport(data.Transactions, data.Categories, month, time.Now()))
		},
	}
	cmd.Flags().StringVar(&month, "month", core.MonthKey(time.Now()), "month as YYYY-MM")
	return cmd
}

func newResetCommand(opts *rootOptions) *cobra.Command {
	var currentMonth bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the local cache",
		Long: "Clear the local cache and sync timestamp. With --current-month only\n" +
			"transactions outside the current month are dropped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if !currentMonth {
				if err := s.engine.ClearLocalData(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Local data cleared")
				return nil
			}

			month := core.MonthKey(time.Now())
			kept := 0
			err = s.engine.UpdateLocal(cmd.Context(), func(cur *core.LocalData) *core.LocalData {
				if cur == nil {
					return nil
				}
				next := core.KeepMonth(*cur, month)
				kept = len(next.Transactions)
				return &next
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Kept %d transaction(s) from %s\n", kept, month)
			return nil
		},
	}
	cmd.Flags().BoolVar(&currentMonth, "current-month", false, "keep the current month's transactions")
	return cmd
}
