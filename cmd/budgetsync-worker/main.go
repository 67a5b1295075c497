package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetsync/internal/amqp"
	"budgetsync/internal/backend"
	"budgetsync/internal/cli"
	apphttp "budgetsync/internal/http"
	"budgetsync/internal/localstore"
	"budgetsync/internal/log"
	"budgetsync/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig("", cli.Overrides{})
	if err != nil {
		log.Setup("info").Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, os.Stdout)
	logger.Info("Starting budgetsync-worker")

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	comps, err := backend.NewFactory(logger).Build(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backends", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer comps.Close()
	comps.Start(ctx)

	w := worker.NewSyncWorker(
		func(ctx context.Context, uid string) (worker.UserEngine, error) {
			engine, _ := comps.Engine(bcfg, uid, logger, nil)
			engine.Start(ctx)
			return engine, nil
		},
		func(ctx context.Context) ([]string, error) {
			return localstore.Namespaces(ctx, comps.KV)
		},
		worker.Options{DedupeWindow: cfg.DedupeWindow, Logger: logger},
	)
	if err := w.Start(ctx, cfg.SyncSchedule); err != nil {
		logger.Error("Failed to start sync worker", log.FieldError, err.Error())
		os.Exit(1)
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer client.Close()

		go func() {
			if err := client.ConsumeSyncRequests(ctx, w.HandleSyncRequest); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err.Error())
				cancel()
			}
		}()
	} else {
		logger.Info("Skipping AMQP consumption - no AMQP_URL provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, w, comps.Gatherer, logger,
		apphttp.WithReadiness(func(ctx context.Context) error {
			_, err := localstore.Namespaces(ctx, comps.KV)
			return err
		}))
	if err := cli.RunServer(ctx, srv, logger, 30*time.Second); err != nil {
		logger.Error("Server error", log.FieldError, err.Error())
		cancel()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down worker...")
	if err := w.Stop(shutdownCtx); err != nil {
		logger.Warn("Worker stop incomplete", log.FieldError, err.Error())
	}
	logger.Info("Worker shutdown complete")
}
