package mocks

import (
	"context"

	"github.com/Behyna/dcb-renewal-service/pkg/jobqueue"
	"github.com/stretchr/testify/mock"
)

type Enqueuer struct {
	mock.Mock
}

func (m *Enqueuer) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *Enqueuer) Enqueue(ctx context.Context, payload any, opts jobqueue.Options) error {
	args := m.Called(ctx, payload, opts)
	return args.Error(0)
}
