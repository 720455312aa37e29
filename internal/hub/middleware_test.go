package hub_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel-presence/internal/hub"
)

// fakePresence 记录 Touch / LeaveAll 的调用，供管道测试使用
type fakePresence struct {
	touched  []string
	left     []string
	touchErr error
	leaveErr error
}

func (f *fakePresence) Touch(ctx context.Context, channelName string) error {
	f.touched = append(f.touched, channelName)
	return f.touchErr
}

func (f *fakePresence) LeaveAll(ctx context.Context, channelName string) error {
	f.left = append(f.left, channelName)
	return f.leaveErr
}

func newTestClient(channelName string) *hub.Client {
	return hub.NewClient(nil, nil, "lobby", channelName, nil)
}

func TestTouchPresence_HeartbeatShortCircuits(t *testing.T) {
	// Arrange
	fake := &fakePresence{}
	dispatched := false
	handler := hub.TouchPresence(fake, "heartbeat", func(ctx context.Context, c *hub.Client, payload []byte) error {
		dispatched = true
		return nil
	})
	client := newTestClient("conn.abc")

	// Act: 心跳载荷 (允许两侧空白)
	err := handler(context.Background(), client, []byte("  heartbeat \n"))

	// Assert: touch 发生了，但下游处理器没有被调用
	require.NoError(t, err)
	assert.Equal(t, []string{"conn.abc"}, fake.touched)
	assert.False(t, dispatched, "心跳不应到达业务处理器")
}

func TestTouchPresence_RegularPayloadDispatches(t *testing.T) {
	// Arrange
	fake := &fakePresence{}
	var got []byte
	handler := hub.TouchPresence(fake, "heartbeat", func(ctx context.Context, c *hub.Client, payload []byte) error {
		got = payload
		return nil
	})
	client := newTestClient("conn.abc")

	// Act
	err := handler(context.Background(), client, []byte(`{"action":"draw"}`))

	// Assert: 先 touch 后分发，载荷原样传递
	require.NoError(t, err)
	assert.Equal(t, []string{"conn.abc"}, fake.touched)
	assert.Equal(t, []byte(`{"action":"draw"}`), got)
}

func TestTouchPresence_TouchErrorStopsDispatch(t *testing.T) {
	// Arrange
	touchErr := errors.New("db unavailable")
	fake := &fakePresence{touchErr: touchErr}
	dispatched := false
	handler := hub.TouchPresence(fake, "heartbeat", func(ctx context.Context, c *hub.Client, payload []byte) error {
		dispatched = true
		return nil
	})

	// Act
	err := handler(context.Background(), newTestClient("conn.abc"), []byte("hello"))

	// Assert
	assert.ErrorIs(t, err, touchErr)
	assert.False(t, dispatched, "touch 失败时不应分发")
}

func TestRemovePresence_LeavesAllThenCleansUp(t *testing.T) {
	// Arrange
	fake := &fakePresence{}
	cleaned := false
	handler := hub.RemovePresence(fake, func(ctx context.Context, c *hub.Client) {
		cleaned = true
	})

	// Act
	handler(context.Background(), newTestClient("conn.abc"))

	// Assert
	assert.Equal(t, []string{"conn.abc"}, fake.left)
	assert.True(t, cleaned, "下游清理应被执行")
}

func TestRemovePresence_CleansUpEvenOnLeaveError(t *testing.T) {
	// Arrange: LeaveAll 失败只记录日志，本地清理仍然进行
	fake := &fakePresence{leaveErr: errors.New("db unavailable")}
	cleaned := false
	handler := hub.RemovePresence(fake, func(ctx context.Context, c *hub.Client) {
		cleaned = true
	})

	// Act
	handler(context.Background(), newTestClient("conn.abc"))

	// Assert
	assert.True(t, cleaned, "即使 LeaveAll 失败也要完成本地清理")
}
