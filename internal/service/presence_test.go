package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"channel-presence/internal/domain"
	"channel-presence/internal/notifier"
	"channel-presence/internal/repository"
	"channel-presence/internal/repository/mocks"
	"channel-presence/internal/service"
)

// newPresenceService 组装被测服务和它的 Mock 依赖，
// 并返回一个收集通知事件的切片指针。
func newPresenceService(t *testing.T) (*service.PresenceService, *mocks.RoomRepository, *mocks.PresenceRepository, *mocks.GroupChannel, *[]notifier.Event) {
	t.Helper()
	mockRoomRepo := new(mocks.RoomRepository)
	mockPresenceRepo := new(mocks.PresenceRepository)
	mockGroups := new(mocks.GroupChannel)

	n := notifier.New()
	events := &[]notifier.Event{}
	n.Subscribe(func(evt notifier.Event) {
		*events = append(*events, evt)
	})

	svc := service.NewPresenceService(mockRoomRepo, mockPresenceRepo, mockGroups, n, 0)
	return svc, mockRoomRepo, mockPresenceRepo, mockGroups, events
}

// --- 测试 Join / AddPresence ---

func TestPresenceService_Join_CreatesRoomAndPresence(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, mockPresenceRepo, mockGroups, events := newPresenceService(t)
	ctx := context.Background()
	room := &domain.Room{ID: 1, ChannelName: "lobby"}
	userID := uint(7)

	mockRoomRepo.On("GetOrCreate", ctx, "lobby").Return(room, nil).Once()
	mockPresenceRepo.On("Create", ctx, mock.MatchedBy(func(p *domain.Presence) bool {
		assert.Equal(t, uint(1), p.RoomID)
		assert.Equal(t, "conn.abc", p.ChannelName)
		require.NotNil(t, p.UserID)
		assert.Equal(t, userID, *p.UserID)
		assert.False(t, p.LastSeen.IsZero(), "创建时应设置 last_seen")
		return true
	})).Return(nil).Once()
	mockGroups.On("GroupAdd", ctx, "lobby", "conn.abc").Return(nil).Once()

	// Act
	joined, err := svc.Join(ctx, "lobby", "conn.abc", &userID)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, joined)
	assert.Equal(t, "lobby", joined.ChannelName)

	// 恰好一个 added 事件，携带刚创建的记录
	require.Len(t, *events, 1)
	evt := (*events)[0]
	assert.Equal(t, notifier.Added, evt.Kind)
	assert.Equal(t, "lobby", evt.Room.ChannelName)
	require.NotNil(t, evt.Presence)
	assert.Equal(t, "conn.abc", evt.Presence.ChannelName)

	mockRoomRepo.AssertExpectations(t)
	mockPresenceRepo.AssertExpectations(t)
	mockGroups.AssertExpectations(t)
}

func TestPresenceService_Join_DuplicateIsNoOp(t *testing.T) {
	// Arrange: 同一连接重复加入同一房间
	svc, mockRoomRepo, mockPresenceRepo, mockGroups, events := newPresenceService(t)
	ctx := context.Background()
	room := &domain.Room{ID: 1, ChannelName: "lobby"}

	mockRoomRepo.On("GetOrCreate", ctx, "lobby").Return(room, nil).Once()
	mockPresenceRepo.On("Create", ctx, mock.AnythingOfType("*domain.Presence")).
		Return(repository.ErrDuplicateEntry).Once()

	// Act
	joined, err := svc.Join(ctx, "lobby", "conn.abc", nil)

	// Assert: 不报错、不组播、不通知
	require.NoError(t, err, "重复加入应是幂等的 no-op")
	require.NotNil(t, joined)
	assert.Empty(t, *events, "重复加入不应产生事件")
	mockGroups.AssertNotCalled(t, "GroupAdd", mock.Anything, mock.Anything, mock.Anything)
	mockPresenceRepo.AssertExpectations(t)
}

func TestPresenceService_Join_AnonymousConnection(t *testing.T) {
	// Arrange: 匿名连接 (userID 为 nil)
	svc, mockRoomRepo, mockPresenceRepo, mockGroups, _ := newPresenceService(t)
	ctx := context.Background()
	room := &domain.Room{ID: 2, ChannelName: "public"}

	mockRoomRepo.On("GetOrCreate", ctx, "public").Return(room, nil).Once()
	mockPresenceRepo.On("Create", ctx, mock.MatchedBy(func(p *domain.Presence) bool {
		return p.UserID == nil
	})).Return(nil).Once()
	mockGroups.On("GroupAdd", ctx, "public", "conn.anon").Return(nil).Once()

	// Act
	_, err := svc.Join(ctx, "public", "conn.anon", nil)

	// Assert
	require.NoError(t, err)
	mockPresenceRepo.AssertExpectations(t)
}

func TestPresenceService_Join_CreateFails(t *testing.T) {
	// Arrange: 存储错误必须传播给调用方
	svc, mockRoomRepo, mockPresenceRepo, _, events := newPresenceService(t)
	ctx := context.Background()
	room := &domain.Room{ID: 1, ChannelName: "lobby"}
	dbErr := errors.New("connection lost")

	mockRoomRepo.On("GetOrCreate", ctx, "lobby").Return(room, nil).Once()
	mockPresenceRepo.On("Create", ctx, mock.AnythingOfType("*domain.Presence")).Return(dbErr).Once()

	// Act
	_, err := svc.Join(ctx, "lobby", "conn.abc", nil)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.Empty(t, *events, "失败的加入不应产生事件")
}

// --- 测试 Leave / RemovePresence ---

func TestPresenceService_Leave_RemovesPresence(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, mockPresenceRepo, mockGroups, events := newPresenceService(t)
	ctx := context.Background()
	room := &domain.Room{ID: 1, ChannelName: "lobby"}
	presence := &domain.Presence{ID: 11, RoomID: 1, ChannelName: "conn.abc"}

	mockRoomRepo.On("FindByChannelName", ctx, "lobby").Return(room, nil).Once()
	mockPresenceRepo.On("Find", ctx, uint(1), "conn.abc").Return(presence, nil).Once()
	mockGroups.On("GroupDiscard", ctx, "lobby", "conn.abc").Return(nil).Once()
	mockPresenceRepo.On("Delete", ctx, presence).Return(nil).Once()

	// Act
	err := svc.Leave(ctx, "lobby", "conn.abc")

	// Assert: removed 事件描述的是删除前的记录
	require.NoError(t, err)
	require.Len(t, *events, 1)
	evt := (*events)[0]
	assert.Equal(t, notifier.Removed, evt.Kind)
	require.NotNil(t, evt.Presence)
	assert.Equal(t, uint(11), evt.Presence.ID)

	mockRoomRepo.AssertExpectations(t)
	mockPresenceRepo.AssertExpectations(t)
	mockGroups.AssertExpectations(t)
}

func TestPresenceService_Leave_UnknownRoomIsNoOp(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, mockPresenceRepo, _, events := newPresenceService(t)
	ctx := context.Background()

	mockRoomRepo.On("FindByChannelName", ctx, "ghost").Return(nil, repository.ErrRoomNotFound).Once()

	// Act
	err := svc.Leave(ctx, "ghost", "conn.abc")

	// Assert: 房间不存在是静默的 no-op
	require.NoError(t, err)
	assert.Empty(t, *events)
	mockPresenceRepo.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything)
}

func TestPresenceService_Leave_MissingPresenceIsNoOp(t *testing.T) {
	// Arrange: 成员记录已被其他移除者删掉
	svc, mockRoomRepo, mockPresenceRepo, mockGroups, events := newPresenceService(t)
	ctx := context.Background()
	room := &domain.Room{ID: 1, ChannelName: "lobby"}

	mockRoomRepo.On("FindByChannelName", ctx, "lobby").Return(room, nil).Once()
	mockPresenceRepo.On("Find", ctx, uint(1), "conn.gone").Return(nil, repository.ErrPresenceNotFound).Once()

	// Act
	err := svc.Leave(ctx, "lobby", "conn.gone")

	// Assert
	require.NoError(t, err, "重复移除应是静默的 no-op")
	assert.Empty(t, *events)
	mockGroups.AssertNotCalled(t, "GroupDiscard", mock.Anything, mock.Anything, mock.Anything)
	mockPresenceRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

// --- 测试 Touch ---

func TestPresenceService_Touch(t *testing.T) {
	// Arrange
	svc, _, mockPresenceRepo, _, _ := newPresenceService(t)
	ctx := context.Background()

	mockPresenceRepo.On("Touch", ctx, "conn.abc").Return(nil).Once()

	// Act & Assert
	require.NoError(t, svc.Touch(ctx, "conn.abc"))
	mockPresenceRepo.AssertExpectations(t)
}

// --- 测试 LeaveAll ---

func TestPresenceService_LeaveAll_RemovesFromAllRooms(t *testing.T) {
	// Arrange: 同一连接在两个房间
	svc, _, mockPresenceRepo, mockGroups, events := newPresenceService(t)
	ctx := context.Background()
	roomA := domain.Room{ID: 1, ChannelName: "room-a"}
	roomB := domain.Room{ID: 2, ChannelName: "room-b"}
	presences := []domain.Presence{
		{ID: 21, RoomID: 1, ChannelName: "conn.abc", Room: roomA},
		{ID: 22, RoomID: 2, ChannelName: "conn.abc", Room: roomB},
	}

	mockPresenceRepo.On("FindByChannelName", ctx, "conn.abc").Return(presences, nil).Once()
	mockGroups.On("GroupDiscard", ctx, "room-a", "conn.abc").Return(nil).Once()
	mockGroups.On("GroupDiscard", ctx, "room-b", "conn.abc").Return(nil).Once()
	mockPresenceRepo.On("Delete", ctx, mock.AnythingOfType("*domain.Presence")).Return(nil).Twice()

	// Act
	err := svc.LeaveAll(ctx, "conn.abc")

	// Assert: 每个房间一个 removed 事件
	require.NoError(t, err)
	require.Len(t, *events, 2)
	rooms := []string{(*events)[0].Room.ChannelName, (*events)[1].Room.ChannelName}
	assert.ElementsMatch(t, []string{"room-a", "room-b"}, rooms)

	mockPresenceRepo.AssertExpectations(t)
	mockGroups.AssertExpectations(t)
}

func TestPresenceService_LeaveAll_NoPresences(t *testing.T) {
	// Arrange: 连接从未加入任何房间
	svc, _, mockPresenceRepo, _, events := newPresenceService(t)
	ctx := context.Background()

	mockPresenceRepo.On("FindByChannelName", ctx, "conn.none").Return([]domain.Presence{}, nil).Once()

	// Act & Assert
	require.NoError(t, svc.LeaveAll(ctx, "conn.none"))
	assert.Empty(t, *events)
}

// --- 测试 PrunePresences ---

func TestPresenceService_PrunePresences_BulkEventPerRoom(t *testing.T) {
	// Arrange: 两个房间，只有一个房间有过期记录
	svc, mockRoomRepo, mockPresenceRepo, _, events := newPresenceService(t)
	ctx := context.Background()
	rooms := []domain.Room{
		{ID: 1, ChannelName: "busy"},
		{ID: 2, ChannelName: "quiet"},
	}

	mockRoomRepo.On("FindAll", ctx).Return(rooms, nil).Once()
	mockPresenceRepo.On("DeleteStale", ctx, uint(1), mock.MatchedBy(func(cutoff time.Time) bool {
		// cutoff 应该在 now-maxAge 附近
		expected := time.Now().Add(-30 * time.Second)
		return cutoff.Sub(expected) < 2*time.Second && expected.Sub(cutoff) < 2*time.Second
	})).Return(int64(3), nil).Once()
	mockPresenceRepo.On("DeleteStale", ctx, uint(2), mock.AnythingOfType("time.Time")).
		Return(int64(0), nil).Once()

	// Act
	err := svc.PrunePresences(ctx, 30*time.Second)

	// Assert: 只有真正删除了记录的房间发事件，且是 bulk_change 而不是逐条 removed
	require.NoError(t, err)
	require.Len(t, *events, 1)
	evt := (*events)[0]
	assert.Equal(t, notifier.BulkChange, evt.Kind)
	assert.Equal(t, "busy", evt.Room.ChannelName)
	assert.Nil(t, evt.Presence, "bulk_change 事件不携带单条记录")

	mockRoomRepo.AssertExpectations(t)
	mockPresenceRepo.AssertExpectations(t)
}

func TestPresenceService_PrunePresences_DefaultMaxAge(t *testing.T) {
	// Arrange: maxAge <= 0 时退回构造时的默认阈值 (60s)
	svc, mockRoomRepo, mockPresenceRepo, _, _ := newPresenceService(t)
	ctx := context.Background()

	mockRoomRepo.On("FindAll", ctx).Return([]domain.Room{{ID: 1, ChannelName: "lobby"}}, nil).Once()
	mockPresenceRepo.On("DeleteStale", ctx, uint(1), mock.MatchedBy(func(cutoff time.Time) bool {
		expected := time.Now().Add(-service.DefaultMaxPresenceAge)
		return cutoff.Sub(expected) < 2*time.Second && expected.Sub(cutoff) < 2*time.Second
	})).Return(int64(0), nil).Once()

	// Act & Assert
	require.NoError(t, svc.PrunePresences(ctx, 0))
	mockPresenceRepo.AssertExpectations(t)
}

func TestPresenceService_PrunePresences_RepositoryError(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, _, _, _ := newPresenceService(t)
	ctx := context.Background()
	dbErr := errors.New("db gone")

	mockRoomRepo.On("FindAll", ctx).Return(nil, dbErr).Once()

	// Act & Assert
	err := svc.PrunePresences(ctx, time.Minute)
	assert.ErrorIs(t, err, dbErr)
}

// --- 测试 PruneRooms ---

func TestPresenceService_PruneRooms(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, _, _, events := newPresenceService(t)
	ctx := context.Background()

	mockRoomRepo.On("DeleteEmpty", ctx).Return(int64(2), nil).Once()

	// Act & Assert: 空房间清扫不产生成员事件
	require.NoError(t, svc.PruneRooms(ctx))
	assert.Empty(t, *events)
	mockRoomRepo.AssertExpectations(t)
}

// --- 测试 RoomMembers ---

func TestPresenceService_RoomMembers(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, mockPresenceRepo, _, _ := newPresenceService(t)
	ctx := context.Background()
	room := &domain.Room{ID: 1, ChannelName: "lobby"}
	users := []domain.User{{ID: 7, Username: "alice"}, {ID: 9, Username: "bob"}}

	mockRoomRepo.On("FindByChannelName", ctx, "lobby").Return(room, nil).Once()
	mockRoomRepo.On("ListUsers", ctx, uint(1)).Return(users, nil).Once()
	mockPresenceRepo.On("CountAnonymous", ctx, uint(1)).Return(int64(3), nil).Once()

	// Act
	gotUsers, anonymous, err := svc.RoomMembers(ctx, "lobby")

	// Assert
	require.NoError(t, err)
	assert.Len(t, gotUsers, 2)
	assert.Equal(t, int64(3), anonymous)
}

func TestPresenceService_RoomMembers_RoomNotFound(t *testing.T) {
	// Arrange
	svc, mockRoomRepo, _, _, _ := newPresenceService(t)
	ctx := context.Background()

	mockRoomRepo.On("FindByChannelName", ctx, "ghost").Return(nil, repository.ErrRoomNotFound).Once()

	// Act
	_, _, err := svc.RoomMembers(ctx, "ghost")

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}
