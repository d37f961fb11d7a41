package mocks

import (
	"context"

	"github.com/Behyna/dcb-renewal-service/pkg/mq"
	"github.com/stretchr/testify/mock"
)

type Publisher struct {
	mock.Mock
}

func (m *Publisher) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *Publisher) Publish(ctx context.Context, env mq.Envelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}
