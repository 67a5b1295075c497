package natsbus

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/syncengine"
)

func TestEncodeDecodeEvent(t *testing.T) {
	ev := syncengine.SyncEvent{
		UserID:    "u1",
		Operation: "sync",
		Success:   true,
		Message:   syncengine.MsgSynced,
		Conflicts: 2,
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	msg, err := encodeEvent("budgetsync.events", ev)
	require.NoError(t, err)
	assert.Equal(t, "budgetsync.events", msg.Subject)
	assert.Equal(t, "u1", msg.Header.Get(HeaderUserID))

	got, err := decodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, ev.UserID, got.UserID)
	assert.Equal(t, ev.Conflicts, got.Conflicts)
	assert.True(t, got.Timestamp.Equal(ev.Timestamp))
}

func TestDecodeEvent_FallsBackToHeader(t *testing.T) {
	msg := nats.NewMsg("budgetsync.events")
	msg.Header.Set(HeaderUserID, "u9")
	msg.Data = []byte(`{"operation":"upload","success":false}`)

	got, err := decodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, "u9", got.UserID)
}

func TestDecodeEvent_Malformed(t *testing.T) {
	msg := nats.NewMsg("budgetsync.events")
	msg.Data = []byte("not json")

	_, err := decodeEvent(msg)
	assert.Error(t, err)
}
