package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// GroupChannel 是 repository.GroupChannel 的 Mock 实现
type GroupChannel struct {
	mock.Mock
}

func (m *GroupChannel) GroupAdd(ctx context.Context, group, channelName string) error {
	args := m.Called(ctx, group, channelName)
	return args.Error(0)
}

func (m *GroupChannel) GroupDiscard(ctx context.Context, group, channelName string) error {
	args := m.Called(ctx, group, channelName)
	return args.Error(0)
}

func (m *GroupChannel) GroupMembers(ctx context.Context, group string) ([]string, error) {
	args := m.Called(ctx, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *GroupChannel) Publish(ctx context.Context, group string, payload []byte) error {
	args := m.Called(ctx, group, payload)
	return args.Error(0)
}
