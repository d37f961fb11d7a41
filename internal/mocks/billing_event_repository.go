package mocks

import (
	"context"

	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/stretchr/testify/mock"
)

type BillingEventRepository struct {
	mock.Mock
}

func (m *BillingEventRepository) CreateMany(ctx context.Context, events []model.BillingEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}
