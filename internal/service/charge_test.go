package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Behyna/dcb-renewal-service/internal/clock"
	"github.com/Behyna/dcb-renewal-service/internal/mocks"
	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/Behyna/dcb-renewal-service/internal/service"
	"github.com/Behyna/dcb-renewal-service/pkg/carrier"
	"github.com/Behyna/dcb-renewal-service/pkg/jobqueue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var dhaka = time.FixedZone("Asia/Dhaka", 6*60*60)

func renewalJob(channel string, mutate func(*model.Subscription)) service.RenewalJob {
	snapshot := model.Subscription{
		ID:                    1,
		SubscriptionID:        "sub-1",
		MSISDN:                "8801700000001",
		Status:                model.SubscriptionStatusActive,
		AutoRenew:             true,
		MerchantTransactionID: "mtx-1",
		PaymentChannel:        model.PaymentChannel{Code: channel},
		Product:               model.Product{ExternalID: "SportsPack", Name: "Sports Pack"},
		ProductPlan:           model.ProductPlan{BillingCycleDays: 30},
		PlanPricing:           model.PlanPricing{BaseAmount: decimal.NewFromInt(50), Currency: "BDT"},
	}

	if mutate != nil {
		mutate(&snapshot)
	}

	return service.RenewalJob{SubscriptionID: snapshot.SubscriptionID, Snapshot: snapshot}
}

func decodeOutcome(t *testing.T, entries []string) model.ChargeOutcome {
	t.Helper()
	require.Len(t, entries, 1)

	var outcome model.ChargeOutcome
	require.NoError(t, json.Unmarshal([]byte(entries[0]), &outcome))
	return outcome
}

func TestChargeService_GP(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("successful charge appends outcome and does not requeue", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		clk := clock.NewFake(time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC))

		gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req carrier.ChargeRequest) bool {
			return req.MSISDN == "8801700000001" &&
				req.Currency == "BDT" &&
				req.TransactionID == "mtx-1" &&
				req.ReferenceCode != ""
		})).Return(carrier.Result{Success: true, HTTPStatus: 200, DurationMs: 120}).Once()

		var pushed []string
		led.On("PushTail", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { pushed = args.Get(1).([]string) }).
			Return(nil).Once()

		svc := service.NewChargeService(service.GPPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		require.NoError(t, svc.Process(ctx, renewalJob(model.ChannelGP, nil)))

		outcome := decodeOutcome(t, pushed)
		assert.True(t, outcome.Success)
		assert.Equal(t, "sub-1", outcome.SubscriptionID)
		assert.NotEmpty(t, outcome.PaymentReferenceID)
		assert.Equal(t, "charged successfully", outcome.Message)

		queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
		gateway.AssertExpectations(t)
		led.AssertExpectations(t)
	})

	t.Run("bills under the configured keyword when one exists", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		clk := clock.NewFake(time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC))

		gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req carrier.ChargeRequest) bool {
			return req.Description == "SPORTS renewal"
		})).Return(carrier.Result{Success: true, HTTPStatus: 200}).Once()
		led.On("PushTail", mock.Anything, mock.Anything).Return(nil).Once()

		svc := service.NewChargeService(service.GPPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		job := renewalJob(model.ChannelGP, func(s *model.Subscription) {
			s.ChargingConfiguration = model.ChargingConfiguration{Config: `{"keyword":"SPORTS"}`}
		})

		require.NoError(t, svc.Process(ctx, job))
		gateway.AssertExpectations(t)
	})

	t.Run("falls back to the product name without a keyword", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		clk := clock.NewFake(time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC))

		gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req carrier.ChargeRequest) bool {
			return req.Description == "Sports Pack renewal"
		})).Return(carrier.Result{Success: true, HTTPStatus: 200}).Once()
		led.On("PushTail", mock.Anything, mock.Anything).Return(nil).Once()

		svc := service.NewChargeService(service.GPPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		require.NoError(t, svc.Process(ctx, renewalJob(model.ChannelGP, nil)))
		gateway.AssertExpectations(t)
	})

	t.Run("failed charge before the cutoff comes back in eight hours", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		// 02:00 Dhaka time, retry at 10:00 lands on the same local day.
		clk := clock.NewFake(time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC))

		gateway.On("Charge", mock.Anything, mock.Anything).
			Return(carrier.Result{Success: false, HTTPStatus: 500}).Once()
		led.On("PushTail", mock.Anything, mock.Anything).Return(nil).Once()

		queue.On("Enqueue", mock.Anything,
			mock.MatchedBy(func(job service.RenewalJob) bool { return job.SubscriptionID == "sub-1" }),
			mock.MatchedBy(func(opts jobqueue.Options) bool {
				return opts.JobID == "sub-1" &&
					opts.Delay == 8*time.Hour &&
					opts.RemoveOnComplete &&
					opts.RemoveOnFail
			})).Return(nil).Once()

		svc := service.NewChargeService(service.GPPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		require.NoError(t, svc.Process(ctx, renewalJob(model.ChannelGP, nil)))
		queue.AssertExpectations(t)
	})

	t.Run("failed charge past the cutoff waits for the next dispatch", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		// 20:00 Dhaka time, retry at 04:00 would cross local midnight.
		clk := clock.NewFake(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))

		gateway.On("Charge", mock.Anything, mock.Anything).
			Return(carrier.Result{Success: false, HTTPStatus: 500}).Once()
		led.On("PushTail", mock.Anything, mock.Anything).Return(nil).Once()

		svc := service.NewChargeService(service.GPPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		require.NoError(t, svc.Process(ctx, renewalJob(model.ChannelGP, nil)))

		queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
		led.AssertExpectations(t)
	})

	t.Run("failed outcome still reaches the ledger when requeue errors", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		clk := clock.NewFake(time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC))

		gateway.On("Charge", mock.Anything, mock.Anything).
			Return(carrier.Result{Success: false, HTTPStatus: 502}).Once()
		queue.On("Enqueue", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("redis down")).Once()

		var pushed []string
		led.On("PushTail", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { pushed = args.Get(1).([]string) }).
			Return(nil).Once()

		svc := service.NewChargeService(service.GPPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		require.NoError(t, svc.Process(ctx, renewalJob(model.ChannelGP, nil)))

		outcome := decodeOutcome(t, pushed)
		assert.False(t, outcome.Success)
		assert.Equal(t, 502, outcome.HTTPStatus)
	})

	t.Run("ledger append failure surfaces as a ledger error", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		clk := clock.NewFake(time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC))

		gateway.On("Charge", mock.Anything, mock.Anything).
			Return(carrier.Result{Success: true, HTTPStatus: 200}).Once()
		led.On("PushTail", mock.Anything, mock.Anything).
			Return(errors.New("redis down")).Once()

		svc := service.NewChargeService(service.GPPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		err := svc.Process(ctx, renewalJob(model.ChannelGP, nil))
		require.Error(t, err)

		var svcErr service.Error
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, service.ErrCodeLedger, svcErr.Code)
	})
}

func TestChargeService_Robi(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	robiConfig := `{"apiKey":"key-1","username":"user-1","onBehalfOf":"Acme","channel":"WAP"}`

	t.Run("charges with credentials from the charging configuration", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		clk := clock.NewFake(time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC))

		gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req carrier.ChargeRequest) bool {
			return req.Robi != nil &&
				req.Robi.APIKey == "key-1" &&
				req.Robi.Username == "user-1" &&
				req.Robi.OnBehalfOf == "Acme"
		})).Return(carrier.Result{Success: true, HTTPStatus: 200}).Once()
		led.On("PushTail", mock.Anything, mock.Anything).Return(nil).Once()

		svc := service.NewChargeService(service.RobiPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		job := renewalJob(model.ChannelRobi, func(s *model.Subscription) {
			s.ChargingConfiguration = model.ChargingConfiguration{Config: robiConfig}
		})

		require.NoError(t, svc.Process(ctx, job))
		gateway.AssertExpectations(t)
	})

	t.Run("skips the job when the charging configuration is missing", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		clk := clock.NewFake(time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC))

		svc := service.NewChargeService(service.RobiPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		require.NoError(t, svc.Process(ctx, renewalJob(model.ChannelRobi, nil)))

		gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
		led.AssertNotCalled(t, "PushTail", mock.Anything, mock.Anything)
	})

	t.Run("failed charge is never requeued same day", func(t *testing.T) {
		gateway := &mocks.Gateway{}
		queue := &mocks.Enqueuer{}
		led := &mocks.Ledger{}

		// Early local morning, well before the cutoff that gates the GP retry.
		clk := clock.NewFake(time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC))

		gateway.On("Charge", mock.Anything, mock.Anything).
			Return(carrier.Result{
				Success:    false,
				HTTPStatus: 403,
				Error:      &carrier.Error{Code: "REFUSED", Message: "subscriber barred"},
			}).Once()

		var pushed []string
		led.On("PushTail", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { pushed = args.Get(1).([]string) }).
			Return(nil).Once()

		svc := service.NewChargeService(service.RobiPolicy(), gateway, queue, led,
			clk, dhaka, newTestMetrics(), logger)

		job := renewalJob(model.ChannelRobi, func(s *model.Subscription) {
			s.ChargingConfiguration = model.ChargingConfiguration{Config: robiConfig}
		})

		require.NoError(t, svc.Process(ctx, job))

		queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)

		outcome := decodeOutcome(t, pushed)
		assert.False(t, outcome.Success)
		require.NotNil(t, outcome.Error)
		assert.Equal(t, "REFUSED", outcome.Error.Code)
		assert.Equal(t, "subscriber barred", outcome.Message)
	})
}
