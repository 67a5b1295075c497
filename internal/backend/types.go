package backend

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"budgetsync/internal/connectivity"
	"budgetsync/internal/localstore"
	"budgetsync/internal/remote"
	"budgetsync/internal/syncengine"
)

// LocalType selects the key/value backend behind the local cache.
type LocalType string

const (
	SQLiteLocal   LocalType = "sqlite"
	PostgresLocal LocalType = "postgres"
	MemoryLocal   LocalType = "memory"
)

func (t LocalType) String() string { return string(t) }

func (t LocalType) IsValid() bool {
	switch t {
	case SQLiteLocal, PostgresLocal, MemoryLocal:
		return true
	default:
		return false
	}
}

// RemoteType selects the document store.
type RemoteType string

const (
	FirestoreRemote RemoteType = "firestore"
	MemoryRemote    RemoteType = "memory"
)

func (t RemoteType) String() string { return string(t) }

func (t RemoteType) IsValid() bool {
	return t == FirestoreRemote || t == MemoryRemote
}

// BusType selects where sync events are published.
type BusType string

const (
	NoBus   BusType = "none"
	AMQPBus BusType = "amqp"
	NATSBus BusType = "nats"
)

func (t BusType) String() string { return string(t) }

func (t BusType) IsValid() bool {
	return t == NoBus || t == AMQPBus || t == NATSBus
}

// CleanupFunc releases a resource opened by the factory.
type CleanupFunc func() error

// Components holds everything the engines of one process share.
type Components struct {
	KV        localstore.KeyValueStore
	Remote    remote.Store
	Observer  connectivity.Observer
	Publisher syncengine.Publisher
	Metrics   *syncengine.Metrics
	Gatherer  prometheus.Gatherer

	// Probe is nil when the device is pinned offline or the probe is off.
	Probe *connectivity.Probe

	cleanups []CleanupFunc
}

// Start begins connectivity probing. It runs the first probe before it
// returns so engines see a settled online state.
func (c *Components) Start(ctx context.Context) {
	if c.Probe != nil {
		c.Probe.Start(ctx)
	}
}

func (c *Components) onClose(fn CleanupFunc) {
	c.cleanups = append(c.cleanups, fn)
}

// Close releases resources in reverse order of creation.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		if err := c.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.cleanups = nil
	return errors.Join(errs...)
}
