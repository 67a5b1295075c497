package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	apphttp "budgetsync/internal/http"
	"budgetsync/internal/log"
	"budgetsync/internal/syncengine"
)

// engineSyncer serves the status endpoints for the single signed-in user.
type engineSyncer struct {
	engine *syncengine.Engine
	uid    string
}

var errUnknownUser = errors.New("user is not served by this device")

func (e engineSyncer) SyncStatus(ctx context.Context, uid string) (syncengine.Status, error) {
	if uid != e.uid {
		return syncengine.Status{}, errUnknownUser
	}
	return e.engine.Status(ctx), nil
}

func (e engineSyncer) RequestSync(ctx context.Context, uid, reason string) (syncengine.Result, error) {
	if uid != e.uid {
		return syncengine.Result{}, errUnknownUser
	}
	return e.engine.SyncData(ctx, uid), nil
}

// RunServer serves until ctx is done, then shuts down within timeout.
func RunServer(ctx context.Context, srv *apphttp.Server, logger *log.Logger, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting status server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve sync status, metrics and a sync trigger over HTTP",
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

			srv := apphttp.NewServer(":"+s.cfg.Port, engineSyncer{engine: s.engine, uid: s.uid}, s.comps.Gatherer, s.logger,
				apphttp.WithReadiness(func(ctx context.Context) error {
					_, err := s.engine.LocalData(ctx)
					return err
				}))
			return RunServer(ctx, srv, s.logger, 30*time.Second)
		},
	}
}
