// Package natsbus publishes sync outcomes on a NATS subject and lets
// observers follow them.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"budgetsync/internal/log"
	"budgetsync/internal/syncengine"
)

// HeaderUserID carries the user id so subscribers can filter without decoding.
const HeaderUserID = "Budgetsync-User"

type Bus struct {
	nc      *nats.Conn
	subject string
	logger  *log.Logger
}

// Connect dials url and reconnects forever in the background.
func Connect(url, subject string, logger *log.Logger) (*Bus, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentNATS)

	nc, err := nats.Connect(url,
		nats.Name("budgetsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", log.FieldError, err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Bus{nc: nc, subject: subject, logger: logger}, nil
}

func encodeEvent(subject string, ev syncengine.SyncEvent) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderUserID, ev.UserID)
	return msg, nil
}

func decodeEvent(msg *nats.Msg) (syncengine.SyncEvent, error) {
	var ev syncengine.SyncEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.UserID == "" {
		ev.UserID = msg.Header.Get(HeaderUserID)
	}
	return ev, nil
}

// PublishSyncEvent implements syncengine.Publisher.
func (b *Bus) PublishSyncEvent(ctx context.Context, ev syncengine.SyncEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	msg, err := encodeEvent(b.subject, ev)
	if err != nil {
		return err
	}
	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe calls fn for every event about uid, or about everyone when uid
// is empty. Malformed messages are logged and skipped.
func (b *Bus) Subscribe(uid string, fn func(syncengine.SyncEvent)) (func(), error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		if uid != "" && msg.Header.Get(HeaderUserID) != uid {
			return
		}
		ev, err := decodeEvent(msg)
		if err != nil {
			b.logger.Warn("Dropping malformed sync event", log.FieldError, err)
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains pending messages before closing the connection.
func (b *Bus) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
