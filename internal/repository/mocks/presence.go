package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"channel-presence/internal/domain"
)

// PresenceRepository 是 repository.PresenceRepository 的 Mock 实现
type PresenceRepository struct {
	mock.Mock
}

func (m *PresenceRepository) Create(ctx context.Context, presence *domain.Presence) error {
	args := m.Called(ctx, presence)
	return args.Error(0)
}

func (m *PresenceRepository) Find(ctx context.Context, roomID uint, channelName string) (*domain.Presence, error) {
	args := m.Called(ctx, roomID, channelName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Presence), args.Error(1)
}

func (m *PresenceRepository) FindByChannelName(ctx context.Context, channelName string) ([]domain.Presence, error) {
	args := m.Called(ctx, channelName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Presence), args.Error(1)
}

func (m *PresenceRepository) Touch(ctx context.Context, channelName string) error {
	args := m.Called(ctx, channelName)
	return args.Error(0)
}

func (m *PresenceRepository) Delete(ctx context.Context, presence *domain.Presence) error {
	args := m.Called(ctx, presence)
	return args.Error(0)
}

func (m *PresenceRepository) DeleteStale(ctx context.Context, roomID uint, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, roomID, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PresenceRepository) ListByRoom(ctx context.Context, roomID uint) ([]domain.Presence, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Presence), args.Error(1)
}

func (m *PresenceRepository) CountAnonymous(ctx context.Context, roomID uint) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}
