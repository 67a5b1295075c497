package backend

import (
	"fmt"
	"time"

	"budgetsync/internal/config"
	"budgetsync/internal/syncengine"
)

// Config is the part of the application config the factory needs.
type Config struct {
	Local        LocalType
	SQLiteDBPath string
	PostgresURL  string

	Remote             RemoteType
	FirestoreProjectID string
	GoogleCredentials  string

	Bus          BusType
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	NATSURL      string
	NATSSubject  string

	Offline       bool
	ProbeAddr     string
	ProbeInterval time.Duration

	Retry      syncengine.RetryPolicy
	StaleAfter time.Duration
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Local:        LocalType(appConfig.LocalBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		PostgresURL:  appConfig.PostgresURL,

		Remote:             RemoteType(appConfig.RemoteBackend),
		FirestoreProjectID: appConfig.FirestoreProjectID,
		GoogleCredentials:  appConfig.GoogleCredentials,

		Bus:          BusType(appConfig.EventBus),
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		NATSURL:      appConfig.NATSURL,
		NATSSubject:  appConfig.NATSSubject,

		Offline:       appConfig.Offline,
		ProbeAddr:     appConfig.ProbeAddr,
		ProbeInterval: appConfig.ProbeInterval,

		Retry: syncengine.RetryPolicy{
			MaxRetries:      appConfig.RetryMaxAttempts,
			InitialInterval: appConfig.RetryInitialInterval,
			MaxInterval:     appConfig.RetryMaxInterval,
			MaxElapsed:      syncengine.DefaultRetryPolicy().MaxElapsed,
			AttemptTimeout:  appConfig.RemoteTimeout,
		},
		StaleAfter: appConfig.StaleAfter,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Local.IsValid() {
		return fmt.Errorf("invalid local backend: %s", c.Local)
	}
	if !c.Remote.IsValid() {
		return fmt.Errorf("invalid remote backend: %s", c.Remote)
	}
	if !c.Bus.IsValid() {
		return fmt.Errorf("invalid event bus: %s", c.Bus)
	}

	switch c.Local {
	case SQLiteLocal:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresLocal:
		if c.PostgresURL == "" {
			return fmt.Errorf("Postgres URL is required for postgres backend")
		}
	}

	if c.Remote == FirestoreRemote && c.FirestoreProjectID == "" {
		return fmt.Errorf("Firestore project id is required for firestore backend")
	}

	switch c.Bus {
	case AMQPBus:
		if c.AMQPURL == "" || c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP URL, exchange and queue are required for amqp event bus")
		}
	case NATSBus:
		if c.NATSURL == "" || c.NATSSubject == "" {
			return fmt.Errorf("NATS URL and subject are required for nats event bus")
		}
	}
	return nil
}
