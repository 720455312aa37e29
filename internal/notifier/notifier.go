// Package notifier 实现成员变更事件的进程内发布/订阅。
// 事件在成员记录的变更已提交之后同步分发；订阅者失败 (panic)
// 被隔离记录，绝不会回滚或阻塞已提交的变更。
package notifier

import (
	"sync"

	"github.com/sirupsen/logrus"

	"channel-presence/internal/domain"
)

// Kind 标记事件的三种互斥形态之一。
type Kind int

const (
	// Added 表示单条成员记录被创建
	Added Kind = iota + 1
	// Removed 表示单条成员记录被删除
	Removed
	// BulkChange 表示一次清扫中多条记录同时消失，逐条粒度没有意义
	BulkChange
)

// String 返回事件形态的文本表示 (用于日志和对外的 JSON 消息)
func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case BulkChange:
		return "bulk_change"
	default:
		return "unknown"
	}
}

// Event 是一次成员变更通知。
// Room 总是有值；Presence 仅在 Added/Removed 时非空，
// 描述的是刚刚被创建/删除的那条记录 (不会重新查询)。
type Event struct {
	Kind     Kind
	Room     domain.Room
	Presence *domain.Presence
}

// Subscriber 是事件回调。同步调用，应当保持轻量；
// 通知是 at-least-once 语义，订阅者需要对重复通知保持幂等。
type Subscriber func(Event)

// Notifier 维护订阅者注册表并同步分发事件。
type Notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]Subscriber
	nextID uint64
}

// New 创建 Notifier 实例
func New() *Notifier {
	return &Notifier{
		subs: make(map[uint64]Subscriber),
	}
}

// Subscribe 注册一个订阅者，返回取消订阅的函数。
func (n *Notifier) Subscribe(fn Subscriber) (unsubscribe func()) {
	if fn == nil {
		panic("subscriber cannot be nil for Notifier")
	}
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Notify 把事件同步分发给当前注册的全部订阅者。
// 单个订阅者 panic 只影响它自己：recover 后记录日志，继续分发。
func (n *Notifier) Notify(evt Event) {
	n.mu.RLock()
	// 复制一份回调列表，避免订阅者在回调中注册/注销时死锁
	subs := make([]Subscriber, 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.RUnlock()

	for _, fn := range subs {
		n.dispatch(fn, evt)
	}
}

func (n *Notifier) dispatch(fn Subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"component": "notifier",
				"kind":      evt.Kind.String(),
				"room":      evt.Room.ChannelName,
			}).Errorf("Subscriber panicked while handling presence event: %v", r)
		}
	}()
	fn(evt)
}
