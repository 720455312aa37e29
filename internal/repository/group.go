package repository

import "context"

// GroupChannel 是外部的组播协作方接口。
// 每当成员记录被创建/删除时，核心用房间的组频道名作为 groupID
// 调用 GroupAdd / GroupDiscard；物理投递由实现负责。
type GroupChannel interface {
	// GroupAdd 把连接加入组的投递列表。
	GroupAdd(ctx context.Context, group, channelName string) error

	// GroupDiscard 把连接从组的投递列表中移除。
	// 移除不存在的成员是 no-op。
	GroupDiscard(ctx context.Context, group, channelName string) error

	// GroupMembers 返回组内全部连接频道名。
	GroupMembers(ctx context.Context, group string) ([]string, error)

	// Publish 向组的事件频道发布一条消息 (跨实例投递)。
	Publish(ctx context.Context, group string, payload []byte) error
}
