package notifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel-presence/internal/domain"
	"channel-presence/internal/notifier"
)

func TestNotifier_SubscribeAndNotify(t *testing.T) {
	// Arrange
	n := notifier.New()
	var received []notifier.Event
	n.Subscribe(func(evt notifier.Event) {
		received = append(received, evt)
	})

	evt := notifier.Event{
		Kind:     notifier.Added,
		Room:     domain.Room{ID: 1, ChannelName: "lobby"},
		Presence: &domain.Presence{ID: 2, ChannelName: "conn.abc"},
	}

	// Act
	n.Notify(evt)

	// Assert
	require.Len(t, received, 1)
	assert.Equal(t, notifier.Added, received[0].Kind)
	assert.Equal(t, "lobby", received[0].Room.ChannelName)
}

func TestNotifier_Unsubscribe(t *testing.T) {
	// Arrange
	n := notifier.New()
	count := 0
	unsubscribe := n.Subscribe(func(notifier.Event) { count++ })

	// Act
	n.Notify(notifier.Event{Kind: notifier.Added})
	unsubscribe()
	n.Notify(notifier.Event{Kind: notifier.Removed})

	// Assert: 取消订阅后不再收到事件
	assert.Equal(t, 1, count)
}

func TestNotifier_MultipleSubscribers(t *testing.T) {
	// Arrange
	n := notifier.New()
	countA, countB := 0, 0
	n.Subscribe(func(notifier.Event) { countA++ })
	n.Subscribe(func(notifier.Event) { countB++ })

	// Act
	n.Notify(notifier.Event{Kind: notifier.BulkChange})

	// Assert
	assert.Equal(t, 1, countA)
	assert.Equal(t, 1, countB)
}

func TestNotifier_PanickingSubscriberIsIsolated(t *testing.T) {
	// Arrange: 一个订阅者 panic 不应影响其他订阅者，也不应传播给调用方
	n := notifier.New()
	n.Subscribe(func(notifier.Event) { panic("boom") })
	delivered := false
	n.Subscribe(func(notifier.Event) { delivered = true })

	// Act & Assert
	assert.NotPanics(t, func() {
		n.Notify(notifier.Event{Kind: notifier.Added})
	})
	assert.True(t, delivered, "其他订阅者应照常收到事件")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "added", notifier.Added.String())
	assert.Equal(t, "removed", notifier.Removed.String())
	assert.Equal(t, "bulk_change", notifier.BulkChange.String())
}
