package redisstate

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisGroupChannel 是 GroupChannel 接口的 Redis 实现。
// 每个组对应一个 Redis Set (投递列表) 和一个 Pub/Sub 频道 (跨实例事件投递)。
type RedisGroupChannel struct {
	client *redis.Client
	// Redis key 的前缀，方便多应用共用一个 Redis 实例
	keyPrefix string
}

// NewRedisGroupChannel 创建 RedisGroupChannel 实例
func NewRedisGroupChannel(client *redis.Client, keyPrefix string) *RedisGroupChannel {
	if client == nil {
		panic("redis client cannot be nil for RedisGroupChannel")
	}
	if keyPrefix == "" {
		keyPrefix = "cp:" // 默认前缀 "cp:" (channel presence)
	}
	return &RedisGroupChannel{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (g *RedisGroupChannel) groupKey(group string) string {
	return fmt.Sprintf("%sgroup:%s", g.keyPrefix, group)
}

func (g *RedisGroupChannel) eventChannel(group string) string {
	return fmt.Sprintf("%sgroup:%s:events", g.keyPrefix, group)
}

// --- GroupChannel Interface Implementation ---

// GroupAdd 把连接加入组的投递列表 (SADD 幂等)
func (g *RedisGroupChannel) GroupAdd(ctx context.Context, group, channelName string) error {
	key := g.groupKey(group)
	if err := g.client.SAdd(ctx, key, channelName).Err(); err != nil {
		return fmt.Errorf("redis: failed to add channel '%s' to group '%s': %w", channelName, group, err)
	}
	return nil
}

// GroupDiscard 把连接从组的投递列表中移除 (SREM 对不存在的成员是 no-op)
func (g *RedisGroupChannel) GroupDiscard(ctx context.Context, group, channelName string) error {
	key := g.groupKey(group)
	if err := g.client.SRem(ctx, key, channelName).Err(); err != nil {
		return fmt.Errorf("redis: failed to discard channel '%s' from group '%s': %w", channelName, group, err)
	}
	return nil
}

// GroupMembers 返回组内全部连接频道名
func (g *RedisGroupChannel) GroupMembers(ctx context.Context, group string) ([]string, error) {
	key := g.groupKey(group)
	members, err := g.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get members of group '%s': %w", group, err)
	}
	return members, nil
}

// Publish 向组的事件频道发布一条消息
func (g *RedisGroupChannel) Publish(ctx context.Context, group string, payload []byte) error {
	channel := g.eventChannel(group)
	if err := g.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish to group '%s': %w", group, err)
	}
	return nil
}

// Subscribe 订阅组的事件频道。
// 返回的 PubSub 由调用方负责 Close；Hub 用它把事件推给本实例的客户端。
func (g *RedisGroupChannel) Subscribe(ctx context.Context, group string) *redis.PubSub {
	return g.client.Subscribe(ctx, g.eventChannel(group))
}
