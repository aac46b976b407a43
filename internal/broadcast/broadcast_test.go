package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublisherDeliversToEventChannel(t *testing.T) {
	client := newRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, Channel("evt-1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewPublisher(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	p.Notify(WithOrigin(ctx, "corr-42"), Change{Type: TextsReordered, EventID: "evt-1", TextIDs: []string{"c", "a", "b"}})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "event-changes:evt-1", msg.Channel)

	var got Change
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, TextsReordered, got.Type)
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, []string{"c", "a", "b"}, got.TextIDs)
	assert.Equal(t, "corr-42", got.Origin)
	assert.True(t, got.At.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestPublisherSwallowsRedisErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	p := NewPublisher(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NotPanics(t, func() {
		p.Notify(context.Background(), Change{Type: EventUpdated, EventID: "evt-1"})
	})
}

func TestOriginFromContext(t *testing.T) {
	assert.Equal(t, "", OriginFromContext(context.Background()))
	assert.Equal(t, "abc", OriginFromContext(WithOrigin(context.Background(), "abc")))
	assert.Equal(t, "", OriginFromContext(WithOrigin(context.Background(), "")))
}
