package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrMissingUserID = errors.New("sync request without user id")

// SyncRequestMessage asks the worker to reconcile one user's data. It only
// carries the user id; the worker reads everything else from the stores.
type SyncRequestMessage struct {
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSyncRequestMessage creates a new request stamped with the current time
func NewSyncRequestMessage(userID, reason string) *SyncRequestMessage {
	return &SyncRequestMessage{
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncRequestMessageFromJSON parses a request and rejects one without a user.
func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	msg.UserID = strings.TrimSpace(msg.UserID)
	if msg.UserID == "" {
		return nil, ErrMissingUserID
	}
	return &msg, nil
}
