// Package cli holds the budgetsync command tree and the setup shared by
// cmd/budgetsync and cmd/budgetsync-worker.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"budgetsync/internal/config"
	"budgetsync/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger and installs it as the slog default.
// Commands log to stderr so their output on stdout stays parseable.
func SetupLogger(level string, out io.Writer) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	cfg.Output = out
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// Overrides are command-line values that win over file and environment.
type Overrides struct {
	UserID   string
	Offline  bool
	LogLevel string
}

// LoadConfig reads the optional YAML file ($BUDGETSYNC_CONFIG when path is
// empty) and the environment, applies the overrides and validates the result.
func LoadConfig(path string, o Overrides) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("BUDGETSYNC_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if o.UserID != "" {
		cfg.UserID = o.UserID
	}
	if o.Offline {
		cfg.Offline = true
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func requireUser(cfg *config.Config) (string, error) {
	if cfg.UserID == "" {
		return "", fmt.Errorf("no user: pass --user or set BUDGETSYNC_USER_ID")
	}
	return cfg.UserID, nil
}
