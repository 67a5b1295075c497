package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"budgetsync/internal/backend"
	"budgetsync/internal/config"
	"budgetsync/internal/localstore"
	"budgetsync/internal/log"
	"budgetsync/internal/syncengine"
)

type rootOptions struct {
	configPath string
	overrides  Overrides
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "budgetsync",
		Short: "Keep a local budget cache in sync with the cloud store",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file (env vars still win)")
	pf.StringVar(&opts.overrides.UserID, "user", "", "user id (default $BUDGETSYNC_USER_ID)")
	pf.BoolVar(&opts.overrides.Offline, "offline", false, "treat the device as offline")
	pf.StringVar(&opts.overrides.LogLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(
		newSyncCommand(opts),
		newPullCommand(opts),
		newPushCommand(opts),
		newStatusCommand(opts),
		newWatchCommand(opts),
		newAddTransactionCommand(opts),
		newDeleteTransactionCommand(opts),
		newAddCategoryCommand(opts),
		newAddBudgetCommand(opts),
		newReportCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newResetCommand(opts),
		newRequestSyncCommand(opts),
		newWatchEventsCommand(opts),
		newServeCommand(opts),
	)
	return rootCmd
}

// session is one command's view of the backends: the shared components
// and the signed-in user's engine.
type session struct {
	cfg    *config.Config
	bcfg   backend.Config
	logger *log.Logger
	comps  *backend.Components
	engine *syncengine.Engine
	local  *localstore.Store
	uid    string
}

func (o *rootOptions) config(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := LoadConfig(o.configPath, o.overrides)
	if err != nil {
		return nil, nil, err
	}
	return cfg, SetupLogger(cfg.LogLevel, cmd.ErrOrStderr()), nil
}

// open builds the backends and the engine for the configured user.
func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, logger, err := o.config(cmd)
	if err != nil {
		return nil, err
	}
	uid, err := requireUser(cfg)
	if err != nil {
		return nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	comps, err := backend.NewFactory(logger).Build(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	comps.Start(ctx)

	engine, local := comps.Engine(bcfg, uid, logger, nil)
	return &session{
		cfg:    cfg,
		bcfg:   bcfg,
		logger: logger,
		comps:  comps,
		engine: engine,
		local:  local,
		uid:    uid,
	}, nil
}

func (s *session) Close() {
	if err := s.engine.Stop(context.Background()); err != nil {
		s.logger.Warn("Engine stop failed", log.FieldError, err.Error())
	}
	if err := s.comps.Close(); err != nil {
		s.logger.Warn("Closing backends failed", log.FieldError, err.Error())
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resultError prints res and turns a failed Result into the command error.
func resultError(w io.Writer, res syncengine.Result) error {
	if !res.Success {
		return fmt.Errorf("%s (%s)", res.Message, res.Kind)
	}
	fmt.Fprintln(w, res.Message)
	if n := res.Conflicts.Total(); n > 0 {
		fmt.Fprintf(w, "%d conflict(s), remote copy kept:\n", n)
		for _, t := range res.Conflicts.Transactions {
			fmt.Fprintf(w, "  transaction %s\n", t.ID)
		}
		for _, c := range res.Conflicts.Categories {
			fmt.Fprintf(w, "  category %s\n", c.ID)
		}
		for _, b := range res.Conflicts.Budgets {
			fmt.Fprintf(w, "  budget %s\n", b.ID)
		}
	}
	return nil
}
