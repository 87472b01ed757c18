package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	payload, err := encode(AccountRegistered, AccountRegisteredEvent{
		AccountID:    42,
		Notified:     true,
		RegisteredAt: at,
	})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, AccountRegistered, env.Subject)
	assert.False(t, env.OccurredAt.IsZero())

	var ev AccountRegisteredEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, int64(42), ev.AccountID)
	assert.True(t, ev.Notified)
	assert.Equal(t, at, ev.RegisteredAt)
	assert.JSONEq(t, `{"account_id":42,"notified":true,"registered_at":"2025-01-02T03:04:05Z"}`, string(env.Data))
}

func TestEncode_Unmarshalable(t *testing.T) {
	t.Parallel()
	_, err := encode("x", make(chan int))
	assert.Error(t, err)
}

func TestNewNATSEventBus_Unreachable(t *testing.T) {
	t.Parallel()
	_, err := NewNATSEventBus("nats://127.0.0.1:1")
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	t.Parallel()
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), AccountRegistered, nil))
	assert.NoError(t, p.Close())
}
