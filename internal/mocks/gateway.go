package mocks

import (
	"context"

	"github.com/Behyna/dcb-renewal-service/pkg/carrier"
	"github.com/stretchr/testify/mock"
)

type Gateway struct {
	mock.Mock
}

func (m *Gateway) Charge(ctx context.Context, req carrier.ChargeRequest) carrier.Result {
	args := m.Called(ctx, req)
	return args.Get(0).(carrier.Result)
}
