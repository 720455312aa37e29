package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"channel-presence/internal/domain"
	"channel-presence/internal/notifier"
	"channel-presence/internal/repository"
)

// DefaultMaxPresenceAge 是成员记录的默认过期阈值。
// 超过这个时间没有任何心跳/消息的连接会被清扫任务回收。
const DefaultMaxPresenceAge = 60 * time.Second

// PresenceService 是在线状态的门面：编排房间生命周期、成员存储、
// 组播协作方和变更通知。传输层在连接生命周期事件上调用
// Join / Leave / Touch / LeaveAll；清扫任务调用 PrunePresences / PruneRooms。
type PresenceService struct {
	roomRepo     repository.RoomRepository
	presenceRepo repository.PresenceRepository
	groups       repository.GroupChannel
	notifier     *notifier.Notifier
	maxAge       time.Duration
}

// NewPresenceService 创建 PresenceService 实例。
// maxAge <= 0 时使用 DefaultMaxPresenceAge。
func NewPresenceService(
	roomRepo repository.RoomRepository,
	presenceRepo repository.PresenceRepository,
	groups repository.GroupChannel,
	changeNotifier *notifier.Notifier,
	maxAge time.Duration,
) *PresenceService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for PresenceService")
	}
	if presenceRepo == nil {
		panic("PresenceRepository cannot be nil for PresenceService")
	}
	if groups == nil {
		panic("GroupChannel cannot be nil for PresenceService")
	}
	if changeNotifier == nil {
		panic("Notifier cannot be nil for PresenceService")
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxPresenceAge
	}
	return &PresenceService{
		roomRepo:     roomRepo,
		presenceRepo: presenceRepo,
		groups:       groups,
		notifier:     changeNotifier,
		maxAge:       maxAge,
	}
}

// Notifier 返回变更通知器，供传输层订阅成员变更事件。
func (s *PresenceService) Notifier() *notifier.Notifier {
	return s.notifier
}

// Join 把连接加入房间：房间按需创建 (get-or-create)，
// 成员记录的创建是幂等的。返回加入的房间。
func (s *PresenceService) Join(ctx context.Context, roomChannelName, channelName string, userID *uint) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room": roomChannelName, "channel": channelName})

	room, err := s.roomRepo.GetOrCreate(ctx, roomChannelName)
	if err != nil {
		logCtx.WithError(err).Error("Failed to get or create room")
		return nil, err
	}

	if err := s.AddPresence(ctx, room, channelName, userID); err != nil {
		logCtx.WithError(err).Error("Failed to add presence to room")
		return nil, err
	}
	return room, nil
}

// Leave 把连接移出房间。
// 房间或成员记录不存在都是静默的 no-op：从未有成员创建过的房间
// 不可能需要移除成员，重复移除也是清理语义下的正常结果。
func (s *PresenceService) Leave(ctx context.Context, roomChannelName, channelName string) error {
	room, err := s.roomRepo.FindByChannelName(ctx, roomChannelName)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil
		}
		return err
	}
	return s.RemovePresence(ctx, room, channelName, nil)
}

// AddPresence 在房间中创建成员记录。
// 已存在的 (room, channel) 组合是 no-op：不重复插入、不重复组播、
// 不重复通知。用户引用只在已认证 (userID 非空) 时写入。
// 组播加入和 "added" 事件只发生在真正创建了记录的路径上。
func (s *PresenceService) AddPresence(ctx context.Context, room *domain.Room, channelName string, userID *uint) error {
	presence := &domain.Presence{
		RoomID:      room.ID,
		ChannelName: channelName,
		UserID:      userID,
		LastSeen:    time.Now(),
	}
	if err := s.presenceRepo.Create(ctx, presence); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 该连接已在房间中 (重复 join 或并发 join 输了竞争)，幂等 no-op
			logrus.WithFields(logrus.Fields{"room": room.ChannelName, "channel": channelName}).
				Debug("Presence already exists, join is a no-op")
			return nil
		}
		return err
	}

	if err := s.groups.GroupAdd(ctx, room.ChannelName, channelName); err != nil {
		return err
	}

	presence.Room = *room
	s.notifier.Notify(notifier.Event{
		Kind:     notifier.Added,
		Room:     *room,
		Presence: presence,
	})
	logrus.WithFields(logrus.Fields{"room": room.ChannelName, "channel": channelName}).
		Info("Presence added")
	return nil
}

// RemovePresence 删除房间中的成员记录。
// presence 为 nil 时按 channelName 查找；找不到是静默的 no-op
// (容忍与其他移除者的竞争)。顺序：先组播移除，再删除记录，
// 最后用删除前持有的记录发出 "removed" 事件——事件描述的是
// 刚被移除的那条记录，而不是重新查询 (此时已不存在) 的结果。
func (s *PresenceService) RemovePresence(ctx context.Context, room *domain.Room, channelName string, presence *domain.Presence) error {
	if presence == nil {
		found, err := s.presenceRepo.Find(ctx, room.ID, channelName)
		if err != nil {
			if errors.Is(err, repository.ErrPresenceNotFound) {
				return nil
			}
			return err
		}
		presence = found
	}

	if err := s.groups.GroupDiscard(ctx, room.ChannelName, presence.ChannelName); err != nil {
		return err
	}
	if err := s.presenceRepo.Delete(ctx, presence); err != nil {
		return err
	}

	presence.Room = *room
	s.notifier.Notify(notifier.Event{
		Kind:     notifier.Removed,
		Room:     *room,
		Presence: presence,
	})
	logrus.WithFields(logrus.Fields{"room": room.ChannelName, "channel": presence.ChannelName}).
		Info("Presence removed")
	return nil
}

// Touch 把连接在所有房间中的 last_seen 刷新为当前时间。
// 每条入站消息 (包括心跳) 都会调用，必须保持为一条批量更新。
func (s *PresenceService) Touch(ctx context.Context, channelName string) error {
	return s.presenceRepo.Touch(ctx, channelName)
}

// LeaveAll 把连接从它所在的全部房间移除。
// 传输层在检测到连接终止 (干净关闭或心跳超时) 时恰好调用一次。
func (s *PresenceService) LeaveAll(ctx context.Context, channelName string) error {
	presences, err := s.presenceRepo.FindByChannelName(ctx, channelName)
	if err != nil {
		return err
	}
	for i := range presences {
		p := presences[i]
		room := p.Room
		if err := s.RemovePresence(ctx, &room, p.ChannelName, &p); err != nil {
			return fmt.Errorf("leave all for channel '%s' (room %s): %w", channelName, room.ChannelName, err)
		}
	}
	return nil
}

// PrunePresences 删除每个房间中 last_seen 早于 now−maxAge 的成员记录。
// maxAge <= 0 时使用构造时配置的阈值。每个真正删除了记录的房间
// 恰好发出一个 bulk_change 事件，而不是每行一个。
// 幂等：重复执行找不到新的过期记录。
func (s *PresenceService) PrunePresences(ctx context.Context, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = s.maxAge
	}
	cutoff := time.Now().Add(-maxAge)

	rooms, err := s.roomRepo.FindAll(ctx)
	if err != nil {
		return err
	}

	for _, room := range rooms {
		deleted, err := s.presenceRepo.DeleteStale(ctx, room.ID, cutoff)
		if err != nil {
			return err
		}
		if deleted > 0 {
			s.notifier.Notify(notifier.Event{
				Kind: notifier.BulkChange,
				Room: room,
			})
			logrus.WithFields(logrus.Fields{"room": room.ChannelName, "deleted": deleted}).
				Info("Pruned stale presences")
		}
	}
	return nil
}

// PruneRooms 删除所有已经没有成员记录的房间。
// 逻辑上位于成员清扫的下游：房间只有在最后一条成员记录消失后才可回收。
func (s *PresenceService) PruneRooms(ctx context.Context) error {
	deleted, err := s.roomRepo.DeleteEmpty(ctx)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logrus.WithField("deleted", deleted).Info("Pruned empty rooms")
	}
	return nil
}

// RoomMembers 返回房间内的已认证用户列表和匿名连接数。
// 房间不存在时返回 ErrRoomNotFound。
func (s *PresenceService) RoomMembers(ctx context.Context, roomChannelName string) ([]domain.User, int64, error) {
	room, err := s.roomRepo.FindByChannelName(ctx, roomChannelName)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, 0, ErrRoomNotFound
		}
		return nil, 0, err
	}

	users, err := s.roomRepo.ListUsers(ctx, room.ID)
	if err != nil {
		return nil, 0, err
	}
	anonymous, err := s.presenceRepo.CountAnonymous(ctx, room.ID)
	if err != nil {
		return nil, 0, err
	}
	return users, anonymous, nil
}
