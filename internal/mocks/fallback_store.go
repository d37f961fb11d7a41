package mocks

import (
	"context"

	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/stretchr/testify/mock"
)

type FallbackStore struct {
	mock.Mock
}

func (m *FallbackStore) Set(ctx context.Context, msg model.FallbackMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *FallbackStore) Get(ctx context.Context, id string) (*model.FallbackMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FallbackMessage), args.Error(1)
}

func (m *FallbackStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *FallbackStore) List(ctx context.Context) ([]model.FallbackMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FallbackMessage), args.Error(1)
}
