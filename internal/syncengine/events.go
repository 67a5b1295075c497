package syncengine

import (
	"context"
	"time"

	"budgetsync/internal/log"
)

// SyncEvent describes the outcome of one sync operation for subscribers on
// an event bus.
type SyncEvent struct {
	UserID    string    `json:"userId"`
	Operation string    `json:"operation"`
	Success   bool      `json:"success"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message"`
	Conflicts int       `json:"conflicts"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher broadcasts sync outcomes. Publishing is best effort.
type Publisher interface {
	PublishSyncEvent(ctx context.Context, ev SyncEvent) error
}

func (e *Engine) emit(ctx context.Context, op, uid string, res Result) {
	if e.publisher == nil {
		return
	}
	ev := SyncEvent{
		UserID:    uid,
		Operation: op,
		Success:   res.Success,
		Message:   res.Message,
		Conflicts: res.Conflicts.Total(),
		Timestamp: e.now(),
	}
	if !res.Success {
		ev.Kind = res.Kind.String()
	}
	if err := e.publisher.PublishSyncEvent(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish sync event",
			log.FieldOperation, op,
			log.FieldUserID, uid,
			log.FieldError, err)
	}
}
