package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Behyna/dcb-renewal-service/internal/clock"
	"github.com/Behyna/dcb-renewal-service/internal/ledger"
	"github.com/Behyna/dcb-renewal-service/internal/metrics"
	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/Behyna/dcb-renewal-service/pkg/carrier"
	"github.com/Behyna/dcb-renewal-service/pkg/jobqueue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChargePolicy is the per-operator behavior of a renewal worker.
type ChargePolicy struct {
	Operator string
	// RequeueSameDay re-enqueues a failed charge with RequeueDelay provided
	// the retry moment still falls before the next local midnight.
	RequeueSameDay bool
	RequeueDelay   time.Duration
	// RequiresConfig skips the job when the operator charging configuration
	// is absent; the next daily dispatch reconsiders the subscription.
	RequiresConfig bool
}

func GPPolicy() ChargePolicy {
	return ChargePolicy{Operator: model.ChannelGP, RequeueSameDay: true, RequeueDelay: 8 * time.Hour}
}

func RobiPolicy() ChargePolicy {
	return ChargePolicy{Operator: model.ChannelRobi, RequiresConfig: true}
}

type ChargeService interface {
	Process(ctx context.Context, job RenewalJob) error
}

type charge struct {
	policy   ChargePolicy
	gateway  carrier.Gateway
	queue    jobqueue.Enqueuer
	ledger   ledger.Ledger
	clock    clock.Clock
	location *time.Location
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewChargeService(policy ChargePolicy, gateway carrier.Gateway, queue jobqueue.Enqueuer,
	led ledger.Ledger, clk clock.Clock, location *time.Location, m *metrics.Metrics, logger *zap.Logger) ChargeService {
	return &charge{
		policy:   policy,
		gateway:  gateway,
		queue:    queue,
		ledger:   led,
		clock:    clk,
		location: location,
		metrics:  m,
		logger:   logger,
	}
}

func (c *charge) Process(ctx context.Context, job RenewalJob) error {
	paymentReferenceID := uuid.NewString()
	snapshot := job.Snapshot

	req, err := c.buildRequest(snapshot, paymentReferenceID)
	if err != nil {
		c.logger.Warn("Skipping renewal, charging configuration missing",
			zap.String("subscriptionID", job.SubscriptionID),
			zap.String("operator", c.policy.Operator))
		c.metrics.SkippedJobs.WithLabelValues(c.policy.Operator, "missing_config").Inc()
		return nil
	}

	c.logger.Debug("Charging subscription",
		zap.String("subscriptionID", job.SubscriptionID),
		zap.String("operator", c.policy.Operator),
		zap.String("paymentReferenceID", paymentReferenceID),
		zap.String("msisdn", snapshot.MSISDN))

	result := c.gateway.Charge(ctx, *req)
	c.metrics.RecordChargeAttempt(c.policy.Operator, result.Success, time.Duration(result.DurationMs)*time.Millisecond)

	if result.Success {
		c.logger.Info("Charge succeeded",
			zap.String("subscriptionID", job.SubscriptionID),
			zap.String("operator", c.policy.Operator),
			zap.Int64("durationMs", result.DurationMs))
	} else {
		c.logger.Warn("Charge failed",
			zap.String("subscriptionID", job.SubscriptionID),
			zap.String("operator", c.policy.Operator),
			zap.Int("httpStatus", result.HTTPStatus))

		c.maybeRequeue(ctx, job)
	}

	outcome := c.buildOutcome(job, paymentReferenceID, result)

	entry, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode charge outcome: %w", err)
	}

	if err := c.ledger.PushTail(ctx, string(entry)); err != nil {
		c.logger.Error("Failed to append charge outcome to ledger",
			zap.String("subscriptionID", job.SubscriptionID),
			zap.Error(err))
		return NewServiceError(ErrCodeLedger, err)
	}

	return nil
}

func (c *charge) buildRequest(snapshot model.Subscription, paymentReferenceID string) (*carrier.ChargeRequest, error) {
	currency := snapshot.PlanPricing.Currency
	if currency == "" {
		currency = carrier.DefaultCurrency
	}

	// GP bills under the keyword its charging configuration registered; the
	// product name is the fallback when no keyword is configured.
	description := fmt.Sprintf("%s renewal", snapshot.Product.Name)
	if c.policy.Operator == model.ChannelGP {
		if cfg, ok := snapshot.ChargingConfiguration.GPConfig(); ok && cfg.Keyword != "" {
			description = fmt.Sprintf("%s renewal", cfg.Keyword)
		}
	}

	req := carrier.ChargeRequest{
		MSISDN:           snapshot.MSISDN,
		Amount:           snapshot.PlanPricing.BaseAmount,
		Currency:         currency,
		ReferenceCode:    paymentReferenceID,
		Description:      description,
		BillingCycleDays: snapshot.ProductPlan.BillingCycleDays,
		ProductID:        snapshot.Product.ExternalID,
		TransactionID:    snapshot.MerchantTransactionID,
	}

	if c.policy.RequiresConfig {
		cfg, ok := snapshot.ChargingConfiguration.RobiConfig()
		if !ok {
			return nil, ErrMissingConfig
		}

		req.Robi = &carrier.RobiParams{
			APIKey:               cfg.APIKey,
			Username:             cfg.Username,
			OnBehalfOf:           cfg.OnBehalfOf,
			PurchaseCategoryCode: cfg.PurchaseCategoryCode,
			Channel:              cfg.Channel,
			SubscriptionID:       cfg.SubscriptionID,
			UnSubURL:             cfg.UnSubURL,
			ContactInfo:          cfg.ContactInfo,
		}
	}

	return &req, nil
}

// maybeRequeue applies the same-day retry rule: a failed charge comes back in
// RequeueDelay hours unless that moment spills past the next local midnight,
// in which case tomorrow's dispatch picks the subscription up instead.
func (c *charge) maybeRequeue(ctx context.Context, job RenewalJob) {
	if !c.policy.RequeueSameDay {
		return
	}

	now := c.clock.Now().In(c.location)
	retryAt := now.Add(c.policy.RequeueDelay)

	year, month, day := now.Date()
	nextMidnight := time.Date(year, month, day, 0, 0, 0, 0, c.location).Add(24 * time.Hour)

	if !retryAt.Before(nextMidnight) {
		c.logger.Info("Retry would cross local midnight, leaving to next dispatch",
			zap.String("subscriptionID", job.SubscriptionID),
			zap.Time("retryAt", retryAt))
		return
	}

	opts := jobqueue.Options{
		Delay:            c.policy.RequeueDelay,
		JobID:            job.SubscriptionID,
		RemoveOnComplete: true,
		RemoveOnFail:     true,
	}

	if err := c.queue.Enqueue(ctx, job, opts); err != nil {
		c.logger.Error("Failed to re-queue failed charge",
			zap.String("subscriptionID", job.SubscriptionID),
			zap.Error(err))
		return
	}

	c.metrics.Requeues.WithLabelValues(c.policy.Operator).Inc()
	c.logger.Info("Re-queued failed charge",
		zap.String("subscriptionID", job.SubscriptionID),
		zap.Duration("delay", c.policy.RequeueDelay))
}

func (c *charge) buildOutcome(job RenewalJob, paymentReferenceID string, result carrier.Result) model.ChargeOutcome {
	outcome := model.ChargeOutcome{
		SubscriptionID:     job.SubscriptionID,
		Snapshot:           job.Snapshot,
		Timestamp:          c.clock.Now().UTC(),
		Success:            result.Success,
		PaymentReferenceID: paymentReferenceID,
		HTTPStatus:         result.HTTPStatus,
		RequestPayload:     result.RequestPayload,
		ResponsePayload:    result.ResponsePayload,
		ResponseDurationMs: result.DurationMs,
	}

	if result.Success {
		outcome.Message = "charged successfully"
	} else {
		outcome.Message = fmt.Sprintf("charge declined with status %d", result.HTTPStatus)
	}

	if result.Error != nil {
		outcome.Error = &model.OutcomeError{Code: result.Error.Code, Message: result.Error.Message}
		outcome.Message = result.Error.Message
	}

	return outcome
}
