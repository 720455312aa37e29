package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"channel-presence/internal/hub"
	"channel-presence/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: 生产环境按部署域名收紧 Origin 检查
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler 处理 WebSocket 连接的升级和在线状态接入。
type WebSocketHandler struct {
	hub *hub.Hub
	svc *service.PresenceService
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub, svc *service.PresenceService) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if svc == nil {
		panic("PresenceService cannot be nil for WebSocketHandler")
	}
	return &WebSocketHandler{hub: h, svc: svc}
}

// HandleConnection 升级 HTTP 连接为 WebSocket，把连接加入房间，
// 然后把客户端注册到 Hub 并启动读写泵。
// 认证是可选的：OptionalAuth 中间件解析出的 userID 会被记录到
// 成员记录中，匿名连接同样允许加入。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	roomChannelName := c.Param("room")
	if roomChannelName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room channel name is required"})
		return
	}

	var userID *uint
	if idVal, exists := c.Get("userID"); exists {
		if id, ok := idVal.(uint); ok {
			userID = &id
		}
	}

	// 每个连接一个全局唯一、对客户端不透明的回复频道名
	channelName := "conn." + uuid.NewString()
	logCtx := logrus.WithFields(logrus.Fields{"room": roomChannelName, "channel": channelName})

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logCtx.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	room, err := h.svc.Join(c.Request.Context(), roomChannelName, channelName, userID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to join room, closing connection")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to join room"))
		conn.Close()
		return
	}

	client := hub.NewClient(h.hub, conn, room.ChannelName, channelName, userID)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logCtx.Error("Failed to register client with hub, closing connection")
		// 回滚刚建立的成员记录，避免留下孤儿
		if leaveErr := h.svc.LeaveAll(c.Request.Context(), channelName); leaveErr != nil {
			logCtx.WithError(leaveErr).Error("Failed to roll back presence after registration failure")
		}
		conn.Close()
		return
	}

	client.Run()
	logCtx.Info("WebSocket connection established and client started")
}
