package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Behyna/dcb-renewal-service/internal/clock"
	"github.com/Behyna/dcb-renewal-service/internal/ledger"
	"github.com/Behyna/dcb-renewal-service/internal/mocks"
	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/Behyna/dcb-renewal-service/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func outcomeEntry(t *testing.T, subscriptionID string, success bool) string {
	t.Helper()

	outcome := model.ChargeOutcome{
		SubscriptionID:     subscriptionID,
		Timestamp:          time.Now().UTC(),
		Success:            success,
		PaymentReferenceID: "ref-" + subscriptionID,
		HTTPStatus:         200,
		Message:            "charged successfully",
		Snapshot: model.Subscription{
			SubscriptionID:        subscriptionID,
			MSISDN:                "8801700000001",
			MerchantTransactionID: "mtx-" + subscriptionID,
			PaymentChannel:        model.PaymentChannel{Code: model.ChannelGP},
			Product:               model.Product{Name: "Sports Pack"},
			ProductPlan:           model.ProductPlan{BillingCycleDays: 30},
			PlanPricing:           model.PlanPricing{BaseAmount: decimal.NewFromInt(50), Currency: "BDT"},
		},
	}
	if !success {
		outcome.HTTPStatus = 500
		outcome.Message = "charge declined with status 500"
	}

	raw, err := json.Marshal(outcome)
	require.NoError(t, err)
	return string(raw)
}

func TestReportService_Drain(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)

	t.Run("empty ledger is a no-op", func(t *testing.T) {
		led := &mocks.Ledger{}
		subs := &mocks.SubscriptionRepository{}
		events := &mocks.BillingEventRepository{}
		notifier := &mocks.Notifier{}

		led.On("PopHead", mock.Anything).Return("", ledger.ErrLedgerEmpty).Once()

		svc := service.NewReportService(led, subs, events, notifier,
			clock.NewFake(now), newTestMetrics(), logger)

		require.NoError(t, svc.Drain(ctx))

		subs.AssertNotCalled(t, "BulkUpdate", mock.Anything, mock.Anything)
		events.AssertNotCalled(t, "CreateMany", mock.Anything, mock.Anything)
		notifier.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything)
	})

	t.Run("turns each outcome into one update, one event and one notification", func(t *testing.T) {
		led := &mocks.Ledger{}
		subs := &mocks.SubscriptionRepository{}
		events := &mocks.BillingEventRepository{}
		notifier := &mocks.Notifier{}

		led.On("PopHead", mock.Anything).Return(outcomeEntry(t, "sub-1", true), nil).Once()
		led.On("PopHead", mock.Anything).Return(outcomeEntry(t, "sub-2", false), nil).Once()
		led.On("PopHead", mock.Anything).Return("", ledger.ErrLedgerEmpty).Once()

		wantNext := now.Add(30 * 24 * time.Hour)

		subs.On("BulkUpdate", mock.Anything,
			mock.MatchedBy(func(updates []model.SubscriptionBulkUpdate) bool {
				return len(updates) == 2 &&
					updates[0].SubscriptionID == "sub-1" && updates[0].Success &&
					updates[1].SubscriptionID == "sub-2" && !updates[1].Success &&
					updates[0].NextBillingAt.Equal(wantNext) &&
					updates[1].NextBillingAt.Equal(wantNext)
			})).Return(nil).Once()

		events.On("CreateMany", mock.Anything,
			mock.MatchedBy(func(batch []model.BillingEvent) bool {
				return len(batch) == 2 &&
					batch[0].Status == model.BillingEventStatusSuccess &&
					batch[0].PaymentReferenceID == "ref-sub-1" &&
					batch[0].EventType == model.BillingEventTypeRenewal &&
					batch[1].Status == model.BillingEventStatusFailed
			})).Return(nil).Once()

		notifier.On("SendBatch", mock.Anything,
			mock.MatchedBy(func(payloads []model.NotificationPayload) bool {
				return len(payloads) == 2 &&
					payloads[0].EventType == model.NotificationEventRenewSuccess &&
					payloads[1].EventType == model.NotificationEventRenewFail &&
					payloads[0].ID != "" &&
					payloads[0].Keyword == "Sports Pack" &&
					payloads[0].PaymentProvider == model.ChannelGP
			})).Return(nil).Once()

		svc := service.NewReportService(led, subs, events, notifier,
			clock.NewFake(now), newTestMetrics(), logger)

		require.NoError(t, svc.Drain(ctx))

		subs.AssertExpectations(t)
		events.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("skips malformed entries and processes the rest", func(t *testing.T) {
		led := &mocks.Ledger{}
		subs := &mocks.SubscriptionRepository{}
		events := &mocks.BillingEventRepository{}
		notifier := &mocks.Notifier{}

		led.On("PopHead", mock.Anything).Return("{not json", nil).Once()
		led.On("PopHead", mock.Anything).Return(outcomeEntry(t, "sub-1", true), nil).Once()
		led.On("PopHead", mock.Anything).Return("", ledger.ErrLedgerEmpty).Once()

		subs.On("BulkUpdate", mock.Anything,
			mock.MatchedBy(func(updates []model.SubscriptionBulkUpdate) bool {
				return len(updates) == 1 && updates[0].SubscriptionID == "sub-1"
			})).Return(nil).Once()
		events.On("CreateMany", mock.Anything, mock.Anything).Return(nil).Once()
		notifier.On("SendBatch", mock.Anything, mock.Anything).Return(nil).Once()

		svc := service.NewReportService(led, subs, events, notifier,
			clock.NewFake(now), newTestMetrics(), logger)

		require.NoError(t, svc.Drain(ctx))
		subs.AssertExpectations(t)
	})

	t.Run("batch of only malformed entries stops before the database", func(t *testing.T) {
		led := &mocks.Ledger{}
		subs := &mocks.SubscriptionRepository{}
		events := &mocks.BillingEventRepository{}
		notifier := &mocks.Notifier{}

		led.On("PopHead", mock.Anything).Return("garbage", nil).Once()
		led.On("PopHead", mock.Anything).Return("", ledger.ErrLedgerEmpty).Once()

		svc := service.NewReportService(led, subs, events, notifier,
			clock.NewFake(now), newTestMetrics(), logger)

		require.NoError(t, svc.Drain(ctx))
		subs.AssertNotCalled(t, "BulkUpdate", mock.Anything, mock.Anything)
	})

	t.Run("pushes already popped entries back when a mid-batch pop fails", func(t *testing.T) {
		led := &mocks.Ledger{}
		subs := &mocks.SubscriptionRepository{}
		events := &mocks.BillingEventRepository{}
		notifier := &mocks.Notifier{}

		entry := outcomeEntry(t, "sub-1", true)

		led.On("PopHead", mock.Anything).Return(entry, nil).Once()
		led.On("PopHead", mock.Anything).Return("", errors.New("connection reset")).Once()
		led.On("PushTail", mock.Anything, []string{entry}).Return(nil).Once()

		svc := service.NewReportService(led, subs, events, notifier,
			clock.NewFake(now), newTestMetrics(), logger)

		err := svc.Drain(ctx)
		require.Error(t, err)

		var svcErr service.Error
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, service.ErrCodeLedger, svcErr.Code)

		led.AssertExpectations(t)
		subs.AssertNotCalled(t, "BulkUpdate", mock.Anything, mock.Anything)
	})

	t.Run("pushes the whole batch back when the bulk update fails", func(t *testing.T) {
		led := &mocks.Ledger{}
		subs := &mocks.SubscriptionRepository{}
		events := &mocks.BillingEventRepository{}
		notifier := &mocks.Notifier{}

		entryOne := outcomeEntry(t, "sub-1", true)
		entryTwo := outcomeEntry(t, "sub-2", false)

		led.On("PopHead", mock.Anything).Return(entryOne, nil).Once()
		led.On("PopHead", mock.Anything).Return(entryTwo, nil).Once()
		led.On("PopHead", mock.Anything).Return("", ledger.ErrLedgerEmpty).Once()

		subs.On("BulkUpdate", mock.Anything, mock.Anything).
			Return(errors.New("deadlock detected")).Once()

		led.On("PushTail", mock.Anything, []string{entryOne, entryTwo}).Return(nil).Once()

		svc := service.NewReportService(led, subs, events, notifier,
			clock.NewFake(now), newTestMetrics(), logger)

		err := svc.Drain(ctx)
		require.Error(t, err)

		var svcErr service.Error
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, service.ErrCodeDatabase, svcErr.Code)

		led.AssertExpectations(t)
		events.AssertNotCalled(t, "CreateMany", mock.Anything, mock.Anything)
		notifier.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything)
	})

	t.Run("push-back failure joins both causes into a ledger error", func(t *testing.T) {
		led := &mocks.Ledger{}
		subs := &mocks.SubscriptionRepository{}
		events := &mocks.BillingEventRepository{}
		notifier := &mocks.Notifier{}

		led.On("PopHead", mock.Anything).Return(outcomeEntry(t, "sub-1", true), nil).Once()
		led.On("PopHead", mock.Anything).Return("", ledger.ErrLedgerEmpty).Once()

		subs.On("BulkUpdate", mock.Anything, mock.Anything).
			Return(errors.New("deadlock detected")).Once()
		led.On("PushTail", mock.Anything, mock.Anything).
			Return(errors.New("redis down")).Once()

		svc := service.NewReportService(led, subs, events, notifier,
			clock.NewFake(now), newTestMetrics(), logger)

		err := svc.Drain(ctx)
		require.Error(t, err)

		var svcErr service.Error
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, service.ErrCodeLedger, svcErr.Code)
	})
}
