package mocks

import (
	"context"

	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/stretchr/testify/mock"
)

type Notifier struct {
	mock.Mock
}

func (m *Notifier) Send(ctx context.Context, payload model.NotificationPayload, retryCount int) error {
	args := m.Called(ctx, payload, retryCount)
	return args.Error(0)
}

func (m *Notifier) SendBatch(ctx context.Context, payloads []model.NotificationPayload) error {
	args := m.Called(ctx, payloads)
	return args.Error(0)
}
