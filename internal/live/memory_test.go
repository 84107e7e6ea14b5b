package live

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	hub := NewMemory(4)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, FeesTopic("s1"))
	require.NoError(t, err)
	defer sub.Close()
	other, err := hub.Subscribe(ctx, FeesTopic("s2"))
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, hub.Publish(ctx, FeesTopic("s1"), map[string]int64{"paid": 500}))

	select {
	case payload := <-sub.C():
		var got map[string]int64
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, int64(500), got["paid"])
	case <-time.After(time.Second):
		t.Fatal("no payload delivered")
	}
	select {
	case <-other.C():
		t.Fatal("payload leaked to another topic")
	default:
	}
}

func TestMemoryCloseReleases(t *testing.T) {
	hub := NewMemory(1)
	ctx := context.Background()
	sub, err := hub.Subscribe(ctx, NotificationsTopic)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers(NotificationsTopic))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, hub.Subscribers(NotificationsTopic))

	_, open := <-sub.C()
	assert.False(t, open)
	assert.NoError(t, hub.Publish(ctx, NotificationsTopic, "after close"))
}

func TestMemorySlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewMemory(1)
	ctx := context.Background()
	sub, err := hub.Subscribe(ctx, AttendanceTopic("s1"))
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, hub.Publish(ctx, AttendanceTopic("s1"), i))
	}
	assert.Len(t, sub.C(), 1)
}
