package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	redisstate "channel-presence/internal/infra/state/redis"
	"channel-presence/internal/notifier"
	"channel-presence/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "message"
	Client  *Client // 消息关联的客户端
	RawData []byte  // 仅用于 message (原始 WebSocket 载荷)
}

// presenceMessage 是推送给客户端的成员变更 JSON 消息
type presenceMessage struct {
	Type    string `json:"type"` // "presence"
	Event   string `json:"event"`
	Room    string `json:"room"`
	Channel string `json:"channel,omitempty"`
	UserID  *uint  `json:"user_id,omitempty"`
}

// relayedMessage 是客户端之间转发的普通消息
type relayedMessage struct {
	Type    string `json:"type"` // "message"
	Room    string `json:"room"`
	Channel string `json:"channel"`
	UserID  *uint  `json:"user_id,omitempty"`
	Body    string `json:"body"`
}

// Hub 维护本实例的活跃客户端集合，并通过 Redis 组频道
// 把成员变更事件和普通消息投递给所有实例的房间成员。
type Hub struct {
	messageChan chan HubMessage

	// 客户端集合，按房间组频道名组织
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	// 每个活跃房间一个 Redis 订阅
	subs   map[string]*redis.PubSub
	subsMu sync.Mutex

	groups *redisstate.RedisGroupChannel

	// 组合后的入站消息/断连处理管道 (touch + 心跳过滤 + 业务转发)
	onMessage    MessageFunc
	onDisconnect DisconnectFunc

	unsubscribeNotifier func()
}

// NewHub 创建并返回一个新的 Hub 实例。
// 入站消息管道在这里组合：TouchPresence 先刷新 last_seen 并过滤心跳，
// 断连管道先 LeaveAll 再做本地清理。Hub 同时订阅变更通知器，
// 把每个事件发布到房间的 Redis 事件频道。
func NewHub(svc *service.PresenceService, groups *redisstate.RedisGroupChannel, heartbeat string) *Hub {
	if svc == nil {
		panic("PresenceService cannot be nil for Hub")
	}
	if groups == nil {
		panic("RedisGroupChannel cannot be nil for Hub")
	}

	h := &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[string]map[*Client]bool),
		subs:        make(map[string]*redis.PubSub),
		groups:      groups,
	}
	h.onMessage = TouchPresence(svc, heartbeat, h.relayMessage)
	h.onDisconnect = RemovePresence(svc, h.detachClient)
	h.unsubscribeNotifier = svc.Notifier().Subscribe(h.publishEvent)
	return h
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			// 断连处理可能访问存储，不要阻塞 Hub 主循环
			go h.onDisconnect(context.Background(), msg.Client)
		case "message":
			go h.dispatchMessage(msg)
		default:
			log.Warnf("Received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).
			Warn("Hub message channel full, dropping message")
		return false
	}
}

// StopAllSubscriptions 停止通知订阅和所有房间的 Redis 订阅 (优雅关闭用)。
func (h *Hub) StopAllSubscriptions() {
	if h.unsubscribeNotifier != nil {
		h.unsubscribeNotifier()
	}
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for room, pubsub := range h.subs {
		if err := pubsub.Close(); err != nil {
			logrus.WithField("room", room).WithError(err).Warn("Failed to close room subscription")
		}
		delete(h.subs, room)
	}
}

// --- 内部方法 ---

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	room := client.Room()
	logCtx := logrus.WithFields(logrus.Fields{"room": room, "channel": client.ChannelName()})

	h.roomsMu.Lock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	h.roomsMu.Unlock()

	// 房间的第一个本地客户端触发该房间的 Redis 事件订阅
	h.startSubscription(room)
	logCtx.Info("Client registered to Hub")
}

// detachClient 是断连管道的末端：从房间集合移除客户端并关闭其发送通道。
// LeaveAll 已经由 RemovePresence 包装器在此之前执行。
func (h *Hub) detachClient(ctx context.Context, client *Client) {
	if client == nil {
		return
	}
	room := client.Room()
	logCtx := logrus.WithFields(logrus.Fields{"room": room, "channel": client.ChannelName()})

	roomEmpty := false
	h.roomsMu.Lock()
	if roomClients, ok := h.rooms[room]; ok {
		if _, exists := roomClients[client]; exists {
			delete(roomClients, client)
			// 防止重复关闭 panic
			select {
			case <-client.send:
				logCtx.Warn("Client send channel already closed during unregister")
			default:
				close(client.send)
			}
			if len(roomClients) == 0 {
				delete(h.rooms, room)
				roomEmpty = true
			}
		}
	}
	h.roomsMu.Unlock()

	if roomEmpty {
		h.stopSubscription(room)
	}
	logCtx.Info("Client unregistered from Hub")
}

func (h *Hub) dispatchMessage(msg HubMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.onMessage(ctx, msg.Client, msg.RawData); err != nil {
		logrus.WithFields(logrus.Fields{
			"room":    msg.Client.Room(),
			"channel": msg.Client.ChannelName(),
		}).WithError(err).Error("Failed to process client message")
	}
}

// relayMessage 是心跳过滤后的业务处理器：把普通载荷包装后
// 发布到房间的事件频道，由各实例的订阅推回本地客户端。
func (h *Hub) relayMessage(ctx context.Context, c *Client, payload []byte) error {
	out, err := json.Marshal(relayedMessage{
		Type:    "message",
		Room:    c.Room(),
		Channel: c.ChannelName(),
		UserID:  c.UserID(),
		Body:    string(payload),
	})
	if err != nil {
		return err
	}
	return h.groups.Publish(ctx, c.Room(), out)
}

// publishEvent 把成员变更事件发布到房间的 Redis 事件频道。
// 发布失败只记录日志：变更本身已经提交，事件只是通知。
func (h *Hub) publishEvent(evt notifier.Event) {
	msg := presenceMessage{
		Type:  "presence",
		Event: evt.Kind.String(),
		Room:  evt.Room.ChannelName,
	}
	if evt.Presence != nil {
		msg.Channel = evt.Presence.ChannelName
		msg.UserID = evt.Presence.UserID
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal presence event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.groups.Publish(ctx, evt.Room.ChannelName, payload); err != nil {
		logrus.WithField("room", evt.Room.ChannelName).
			WithError(err).Error("Failed to publish presence event")
	}
}

func (h *Hub) startSubscription(room string) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	if _, ok := h.subs[room]; ok {
		return
	}
	pubsub := h.groups.Subscribe(context.Background(), room)
	h.subs[room] = pubsub

	go func() {
		logCtx := logrus.WithField("room", room)
		logCtx.Debug("Room event subscription started")
		for m := range pubsub.Channel() {
			h.deliverLocal(room, []byte(m.Payload))
		}
		logCtx.Debug("Room event subscription stopped")
	}()
}

func (h *Hub) stopSubscription(room string) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	if pubsub, ok := h.subs[room]; ok {
		if err := pubsub.Close(); err != nil {
			logrus.WithField("room", room).WithError(err).Warn("Failed to close room subscription")
		}
		delete(h.subs, room)
	}
}

// deliverLocal 把一条已发布的消息推给本实例中该房间的所有客户端
func (h *Hub) deliverLocal(room string, message []byte) {
	h.roomsMu.RLock()
	roomClients, ok := h.rooms[room]
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range clientsToSend {
		// 非阻塞发送，避免单个慢客户端阻塞投递
		select {
		case client.send <- message:
		default:
			logrus.WithFields(logrus.Fields{"room": room, "channel": client.ChannelName()}).
				Warn("Client send channel full during delivery, skipping this client")
		}
	}
}
