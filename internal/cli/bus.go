package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"budgetsync/internal/amqp"
	"budgetsync/internal/core"
	"budgetsync/internal/natsbus"
	"budgetsync/internal/syncengine"
)

func newRequestSyncCommand(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "request-sync",
		Short: "Queue a sync for the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.config(cmd)
			if err != nil {
				return err
			}
			uid, err := requireUser(cfg)
			if err != nil {
				return err
			}
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.PublishSyncRequest(cmd.Context(), uid, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sync requested for %s\n", uid)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded with the request")
	return cmd
}

func formatEvent(ev syncengine.SyncEvent) string {
	status := "ok"
	if !ev.Success {
		status = "failed (" + ev.Kind + ")"
	}
	line := fmt.Sprintf("%s %s %s: %s", core.FormatTimestamp(ev.Timestamp), ev.Operation, status, ev.Message)
	if ev.Conflicts > 0 {
		line += fmt.Sprintf(" [%d conflicts]", ev.Conflicts)
	}
	return line
}

func newWatchEventsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch-events",
		Short: "Print sync events published on NATS until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.config(cmd)
			if err != nil {
				return err
			}
			uid, err := requireUser(cfg)
			if err != nil {
				return err
			}
			bus, err := natsbus.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
			if err != nil {
				return err
			}
			defer bus.Close()

			ctx, cancel := SignalContext(cmd.Context(), logger)
			defer cancel()

			events := make(chan syncengine.SyncEvent, 16)
			unsubscribe, err := bus.Subscribe(uid, func(ev syncengine.SyncEvent) {
				select {
				case events <- ev:
				case <-time.After(time.Second):
					logger.Warn("Dropping sync event, printer is behind")
				}
			})
			if err != nil {
				return err
			}
			defer unsubscribe()

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					fmt.Fprintln(cmd.OutOrStdout(), formatEvent(ev))
				}
			}
		},
	}
}
