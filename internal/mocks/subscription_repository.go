package mocks

import (
	"context"

	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/stretchr/testify/mock"
)

type SubscriptionRepository struct {
	mock.Mock
}

func (m *SubscriptionRepository) FindRenewable(ctx context.Context, limit int, cursor int64) ([]model.Subscription, error) {
	args := m.Called(ctx, limit, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Subscription), args.Error(1)
}

func (m *SubscriptionRepository) BulkUpdate(ctx context.Context, updates []model.SubscriptionBulkUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}

func (m *SubscriptionRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}
