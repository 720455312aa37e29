package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"channel-presence/internal/domain"
	httpHandler "channel-presence/internal/handler/http"
	"channel-presence/internal/notifier"
	"channel-presence/internal/repository"
	"channel-presence/internal/repository/mocks"
	"channel-presence/internal/service"
)

// setupRouter 组装一个最小的测试路由，服务层用 Mock 仓库支撑
func setupRouter(t *testing.T) (*gin.Engine, *mocks.RoomRepository, *mocks.PresenceRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockRoomRepo := new(mocks.RoomRepository)
	mockPresenceRepo := new(mocks.PresenceRepository)
	svc := service.NewPresenceService(mockRoomRepo, mockPresenceRepo, new(mocks.GroupChannel), notifier.New(), 0)
	handler := httpHandler.NewRoomHandler(svc)

	router := gin.New()
	router.GET("/api/rooms/:room/members", handler.GetMembers)
	return router, mockRoomRepo, mockPresenceRepo
}

func TestRoomHandler_GetMembers_Success(t *testing.T) {
	// Arrange
	router, mockRoomRepo, mockPresenceRepo := setupRouter(t)
	room := &domain.Room{ID: 1, ChannelName: "lobby"}
	users := []domain.User{{ID: 7, Username: "alice"}}

	mockRoomRepo.On("FindByChannelName", mock.Anything, "lobby").Return(room, nil).Once()
	mockRoomRepo.On("ListUsers", mock.Anything, uint(1)).Return(users, nil).Once()
	mockPresenceRepo.On("CountAnonymous", mock.Anything, uint(1)).Return(int64(2), nil).Once()

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/lobby/members", nil)
	router.ServeHTTP(w, req)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Room           string `json:"room"`
			AnonymousCount int64  `json:"anonymous_count"`
			Members        []struct {
				UserID   uint   `json:"user_id"`
				Username string `json:"username"`
			} `json:"members"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "lobby", resp.Data.Room)
	assert.Equal(t, int64(2), resp.Data.AnonymousCount)
	require.Len(t, resp.Data.Members, 1)
	assert.Equal(t, "alice", resp.Data.Members[0].Username)

	mockRoomRepo.AssertExpectations(t)
	mockPresenceRepo.AssertExpectations(t)
}

func TestRoomHandler_GetMembers_RoomNotFound(t *testing.T) {
	// Arrange
	router, mockRoomRepo, _ := setupRouter(t)
	mockRoomRepo.On("FindByChannelName", mock.Anything, "ghost").
		Return(nil, repository.ErrRoomNotFound).Once()

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/ghost/members", nil)
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusNotFound, w.Code)
	mockRoomRepo.AssertExpectations(t)
}
