package hub

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// MessageFunc 处理一条来自客户端的入站消息。
type MessageFunc func(ctx context.Context, c *Client, payload []byte) error

// DisconnectFunc 处理一次客户端断连。
type DisconnectFunc func(ctx context.Context, c *Client)

// Toucher 是心跳刷新所需的最小接口 (由 PresenceService 实现)。
type Toucher interface {
	Touch(ctx context.Context, channelName string) error
}

// Leaver 是断连清理所需的最小接口 (由 PresenceService 实现)。
type Leaver interface {
	LeaveAll(ctx context.Context, channelName string) error
}

// TouchPresence 包装一个消息处理器：先刷新连接的 last_seen，
// 然后判断载荷是否是心跳哨兵值——心跳在 touch 之后短路返回，
// 不会到达下游的业务处理器；其余载荷正常传递。
func TouchPresence(p Toucher, heartbeat string, next MessageFunc) MessageFunc {
	return func(ctx context.Context, c *Client, payload []byte) error {
		if err := p.Touch(ctx, c.ChannelName()); err != nil {
			return err
		}
		if strings.TrimSpace(string(payload)) == heartbeat {
			logrus.WithField("channel", c.ChannelName()).Debug("Heartbeat received, skipping dispatch")
			return nil
		}
		return next(ctx, c, payload)
	}
}

// RemovePresence 包装一个断连处理器：先把连接从它所在的全部房间
// 移除 (LeaveAll)，再执行下游清理。清理失败只记录日志——断连路径
// 上没有可以接收错误的对端。
func RemovePresence(p Leaver, next DisconnectFunc) DisconnectFunc {
	return func(ctx context.Context, c *Client) {
		if err := p.LeaveAll(ctx, c.ChannelName()); err != nil {
			logrus.WithFields(logrus.Fields{"channel": c.ChannelName()}).
				WithError(err).Error("Failed to leave all rooms on disconnect")
		}
		next(ctx, c)
	}
}
