package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type Ledger struct {
	mock.Mock
}

func (m *Ledger) PushTail(ctx context.Context, entries ...string) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *Ledger) PopHead(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *Ledger) Len(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
