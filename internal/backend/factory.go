package backend

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"budgetsync/internal/amqp"
	"budgetsync/internal/connectivity"
	"budgetsync/internal/localstore"
	kvmemory "budgetsync/internal/localstore/memory"
	"budgetsync/internal/localstore/postgres"
	"budgetsync/internal/localstore/sqlite"
	"budgetsync/internal/log"
	"budgetsync/internal/natsbus"
	"budgetsync/internal/remote"
	fsremote "budgetsync/internal/remote/firestore"
	rmemory "budgetsync/internal/remote/memory"
	"budgetsync/internal/syncengine"
)

// Factory opens the backends selected by Config.
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentApp)}
}

// Build opens every shared component. On error whatever was already opened
// is closed again.
func (f *Factory) Build(ctx context.Context, cfg Config) (_ *Components, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if c.KV, err = f.OpenLocal(ctx, cfg); err != nil {
		return nil, err
	}
	c.onClose(c.KV.Close)

	if c.Remote, err = f.OpenRemote(ctx, cfg); err != nil {
		return nil, err
	}
	c.onClose(c.Remote.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = syncengine.NewMetrics(reg)
	c.Gatherer = reg

	c.Observer, c.Probe = f.openObserver(cfg)
	if c.Probe != nil {
		c.onClose(func() error {
			c.Probe.Stop()
			return nil
		})
	}

	pub, closeBus, err := f.OpenPublisher(cfg)
	if err != nil {
		// events are best effort; sync keeps working without them
		f.logger.Warn("Event bus unavailable, continuing without sync events",
			"bus", cfg.Bus.String(), log.FieldError, err)
	} else if pub != nil {
		c.Publisher = pub
		c.onClose(closeBus)
	}
	return c, nil
}

// OpenLocal opens the key/value backend behind the cache.
func (f *Factory) OpenLocal(ctx context.Context, cfg Config) (localstore.KeyValueStore, error) {
	switch cfg.Local {
	case SQLiteLocal:
		kv, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite local store", "db_path", cfg.SQLiteDBPath)
		return kv, nil
	case PostgresLocal:
		kv, err := postgres.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		f.logger.Info("Initialized Postgres local store")
		return kv, nil
	case MemoryLocal:
		f.logger.Info("Initialized in-memory local store")
		return kvmemory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported local backend: %s", cfg.Local)
	}
}

// OpenRemote opens the document store.
func (f *Factory) OpenRemote(ctx context.Context, cfg Config) (remote.Store, error) {
	switch cfg.Remote {
	case FirestoreRemote:
		rs, err := fsremote.New(ctx, cfg.FirestoreProjectID, cfg.GoogleCredentials, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firestore client: %w", err)
		}
		f.logger.Info("Initialized Firestore remote store", "project", cfg.FirestoreProjectID)
		return rs, nil
	case MemoryRemote:
		f.logger.Info("Initialized in-memory remote store")
		return rmemory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported remote backend: %s", cfg.Remote)
	}
}

func (f *Factory) openObserver(cfg Config) (connectivity.Observer, *connectivity.Probe) {
	if cfg.Offline {
		f.logger.Info("Offline mode, remote calls will fail fast")
		return connectivity.NewManual(false), nil
	}
	if cfg.ProbeAddr == "" {
		return connectivity.NewManual(true), nil
	}
	probe := connectivity.NewProbe(cfg.ProbeAddr, cfg.ProbeInterval, f.logger)
	return probe, probe
}

// OpenPublisher connects the configured event bus. It returns a nil
// publisher for NoBus.
func (f *Factory) OpenPublisher(cfg Config) (syncengine.Publisher, CleanupFunc, error) {
	switch cfg.Bus {
	case AMQPBus:
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, f.logger)
		if err != nil {
			return nil, nil, err
		}
		f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		return client, client.Close, nil
	case NATSBus:
		bus, err := natsbus.Connect(cfg.NATSURL, cfg.NATSSubject, f.logger)
		if err != nil {
			return nil, nil, err
		}
		f.logger.Info("Initialized NATS publisher", "subject", cfg.NATSSubject)
		return bus, bus.Close, nil
	default:
		return nil, nil, nil
	}
}

// Engine builds a sync engine over the cache namespace ns. An empty ns uses
// the unprefixed keys of a single-user device.
func (c *Components) Engine(cfg Config, ns string, logger *log.Logger, registry *syncengine.Registry) (*syncengine.Engine, *localstore.Store) {
	opts := []localstore.Option{localstore.WithLogger(logger)}
	if ns != "" {
		opts = append(opts, localstore.WithNamespace(ns))
	}
	store := localstore.New(c.KV, opts...)
	engine := syncengine.New(store, c.Remote, c.Observer, syncengine.Options{
		Registry:   registry,
		Logger:     logger,
		Metrics:    c.Metrics,
		Retry:      cfg.Retry,
		StaleAfter: cfg.StaleAfter,
		Publisher:  c.Publisher,
	})
	return engine, store
}
