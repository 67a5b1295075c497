package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgetsync/internal/appstate"
	"budgetsync/internal/log"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Merge the local cache with the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return resultError(cmd.OutOrStdout(), s.engine.SyncData(cmd.Context(), s.uid))
		},
	}
}

func newPullCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Replace the local cache with the remote state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return resultError(cmd.OutOrStdout(), s.engine.SyncFromRemote(cmd.Context(), s.uid))
		},
	}
}

func newPushCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload local changes that are newer than the remote copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			local, err := s.engine.LocalData(cmd.Context())
			if err != nil {
				return err
			}
			if local == nil {
				return fmt.Errorf("nothing cached for %s: run pull or sync first", s.uid)
			}
			return resultError(cmd.OutOrStdout(), s.engine.SyncToRemote(cmd.Context(), s.uid, *local))
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, last sync and listeners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return writeJSON(cmd.OutOrStdout(), s.engine.Status(cmd.Context()))
		},
	}
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow remote changes and upload local edits until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := SignalContext(cmd.Context(), s.logger)
			defer cancel()

			s.engine.Start(ctx)
			store := appstate.NewStore()
			if cached, err := s.engine.LocalData(ctx); err == nil && cached != nil {
				store.Dispatch(appstate.LoadData{Data: *cached})
			}

			res := s.engine.InitializeSync(ctx, s.uid, store.OnDataChange)
			if res.Data != nil {
				store.Dispatch(appstate.LoadData{Data: *res.Data})
			}
			if !res.Success {
				s.logger.Warn("Initial sync did not complete, waiting for connectivity",
					log.FieldUserID, s.uid, log.FieldErrorType, res.Kind.String(), "message", res.Message)
			}
			defer s.engine.CleanupSync(s.uid)

			auto := appstate.NewAutoSync(store, s.engine, s.uid, s.cfg.DebounceDelay, s.logger)
			auto.Start()
			defer auto.Stop()

			unsubscribe := store.Subscribe(func(st appstate.State) {
				fmt.Fprintf(cmd.OutOrStdout(), "%d transactions, %d categories, %d budgets, balance %s\n",
					len(st.Transactions), len(st.Categories), len(st.Budgets), st.Stats.Balance)
			})
			defer unsubscribe()

			s.logger.Info("Watching for changes", log.FieldUserID, s.uid)
			<-ctx.Done()
			return nil
		},
	}
}
