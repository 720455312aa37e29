package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"channel-presence/internal/service"
)

// RoomHandler 处理房间相关的 HTTP 请求
type RoomHandler struct {
	presenceService *service.PresenceService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(presenceService *service.PresenceService) *RoomHandler {
	if presenceService == nil {
		panic("PresenceService cannot be nil for RoomHandler")
	}
	return &RoomHandler{presenceService: presenceService}
}

type memberInfo struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// GetMembers 返回房间当前的已认证成员列表和匿名连接数
// GET /api/rooms/:room/members
func (h *RoomHandler) GetMembers(c *gin.Context) {
	roomChannelName := c.Param("room")
	if roomChannelName == "" {
		RespondError(c, http.StatusBadRequest, "Room channel name is required")
		return
	}

	users, anonymous, err := h.presenceService.RoomMembers(c.Request.Context(), roomChannelName)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	members := make([]memberInfo, 0, len(users))
	for _, u := range users {
		members = append(members, memberInfo{UserID: u.ID, Username: u.Username})
	}
	RespondSuccess(c, http.StatusOK, gin.H{
		"room":            roomChannelName,
		"members":         members,
		"anonymous_count": anonymous,
	}, "")
}
