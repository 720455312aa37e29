package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"channel-presence/internal/service"
)

// HandleServiceError 把服务层错误映射为对应的 HTTP 状态码和响应。
// 未识别的错误一律按内部错误处理，不向客户端泄露细节。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		RespondError(c, http.StatusNotFound, "Room not found")
	case errors.Is(err, service.ErrUserNotFound):
		RespondError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrAuthenticationFailed):
		RespondError(c, http.StatusUnauthorized, "Authentication failed")
	case errors.Is(err, service.ErrRegistrationFailed):
		RespondError(c, http.StatusConflict, "Username or email already exists")
	default:
		logrus.WithError(err).Error("Unhandled service error in HTTP handler")
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
