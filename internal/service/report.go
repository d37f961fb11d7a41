package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Behyna/dcb-renewal-service/internal/clock"
	"github.com/Behyna/dcb-renewal-service/internal/ledger"
	"github.com/Behyna/dcb-renewal-service/internal/metrics"
	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/Behyna/dcb-renewal-service/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxBatchSize bounds one drain so a single tick never holds the pipeline
// for an unbounded working set.
const MaxBatchSize = 250

type ReportService interface {
	Drain(ctx context.Context) error
}

// report drains the result ledger, turns each outcome into one subscription
// update, one billing event and one notification, and applies them in bulk.
type report struct {
	ledger        ledger.Ledger
	subscriptions repository.SubscriptionRepository
	events        repository.BillingEventRepository
	notifier      Notifier
	clock         clock.Clock
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewReportService(led ledger.Ledger, subscriptions repository.SubscriptionRepository,
	events repository.BillingEventRepository, notifier Notifier, clk clock.Clock,
	m *metrics.Metrics, logger *zap.Logger) ReportService {
	return &report{
		ledger:        led,
		subscriptions: subscriptions,
		events:        events,
		notifier:      notifier,
		clock:         clk,
		metrics:       m,
		logger:        logger,
	}
}

func (r *report) Drain(ctx context.Context) error {
	entries, err := r.pop(ctx)
	if err != nil {
		// Entries popped before the failure must go back; dropping them here
		// would lose outcomes that were already removed from the ledger.
		if len(entries) > 0 {
			return r.fail(ctx, entries, ErrCodeLedger, err)
		}
		return NewServiceError(ErrCodeLedger, err)
	}

	if len(entries) == 0 {
		return nil
	}

	r.metrics.LedgerDrains.Inc()

	var summary DrainSummary
	summary.Popped = len(entries)

	now := r.clock.Now().UTC()

	updates := make([]model.SubscriptionBulkUpdate, 0, len(entries))
	events := make([]model.BillingEvent, 0, len(entries))
	notifications := make([]model.NotificationPayload, 0, len(entries))

	for _, entry := range entries {
		var outcome model.ChargeOutcome
		if err := json.Unmarshal([]byte(entry), &outcome); err != nil {
			r.logger.Warn("Skipping malformed ledger entry", zap.Error(err))
			summary.Malformed++
			r.metrics.MalformedOutcomes.Inc()
			continue
		}

		nextBillingAt := now.Add(time.Duration(outcome.Snapshot.ProductPlan.BillingCycleDays) * 24 * time.Hour)

		updates = append(updates, model.SubscriptionBulkUpdate{
			SubscriptionID: outcome.SubscriptionID,
			Success:        outcome.Success,
			NextBillingAt:  nextBillingAt,
		})
		events = append(events, r.buildEvent(outcome))
		notifications = append(notifications, r.buildNotification(outcome, now))

		summary.Processed++
		if outcome.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		r.metrics.RecordOutcome(outcome.Success)
	}

	if summary.Processed == 0 {
		return nil
	}

	if err := r.subscriptions.BulkUpdate(ctx, updates); err != nil {
		return r.fail(ctx, entries, ErrCodeDatabase, fmt.Errorf("failed to bulk update subscriptions: %w", err))
	}

	if err := r.events.CreateMany(ctx, events); err != nil {
		return r.fail(ctx, entries, ErrCodeDatabase, fmt.Errorf("failed to insert billing events: %w", err))
	}

	if err := r.notifier.SendBatch(ctx, notifications); err != nil {
		return r.fail(ctx, entries, ErrCodeLedger, fmt.Errorf("failed to fan out notifications: %w", err))
	}

	r.logger.Info("Drained charge outcomes",
		zap.Int("popped", summary.Popped),
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("malformed", summary.Malformed))

	return nil
}

func (r *report) pop(ctx context.Context) ([]string, error) {
	entries := make([]string, 0, MaxBatchSize)

	for len(entries) < MaxBatchSize {
		entry, err := r.ledger.PopHead(ctx)
		if errors.Is(err, ledger.ErrLedgerEmpty) {
			break
		}
		if err != nil {
			return entries, err
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// fail pushes the whole batch back onto the ledger tail so no popped outcome
// is lost. Re-processing may duplicate work; downstream consumers are
// idempotent on the merchant transaction identifier.
func (r *report) fail(ctx context.Context, entries []string, code string, cause error) error {
	r.metrics.DrainErrors.Inc()

	if err := r.ledger.PushTail(ctx, entries...); err != nil {
		r.logger.Error("Failed to push batch back to ledger, outcomes lost",
			zap.Int("entries", len(entries)),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return NewServiceError(ErrCodeLedger, errors.Join(cause, err))
	}

	r.logger.Error("Drain batch failed, entries pushed back",
		zap.Int("entries", len(entries)),
		zap.Error(cause))

	return NewServiceError(code, cause)
}

func (r *report) buildEvent(outcome model.ChargeOutcome) model.BillingEvent {
	snapshot := outcome.Snapshot

	status := model.BillingEventStatusFailed
	if outcome.Success {
		status = model.BillingEventStatusSuccess
	}

	return model.BillingEvent{
		SubscriptionID:     outcome.SubscriptionID,
		MerchantID:         snapshot.MerchantID,
		ProductID:          snapshot.ProductID,
		PlanID:             snapshot.ProductPlanID,
		PaymentChannelID:   snapshot.PaymentChannelID,
		MSISDN:             snapshot.MSISDN,
		PaymentReferenceID: outcome.PaymentReferenceID,
		EventType:          model.BillingEventTypeRenewal,
		Status:             status,
		Amount:             snapshot.PlanPricing.BaseAmount,
		Currency:           snapshot.PlanPricing.Currency,
		RequestPayload:     outcome.RequestPayload,
		ResponsePayload:    outcome.ResponsePayload,
		ResponseMessage:    outcome.Message,
		DurationMs:         outcome.ResponseDurationMs,
		ResponseCode:       outcome.HTTPStatus,
	}
}

func (r *report) buildNotification(outcome model.ChargeOutcome, now time.Time) model.NotificationPayload {
	snapshot := outcome.Snapshot

	eventType := model.NotificationEventRenewFail
	if outcome.Success {
		eventType = model.NotificationEventRenewSuccess
	}

	return model.NotificationPayload{
		ID:                    uuid.NewString(),
		Source:                model.NotificationSource,
		SubscriptionID:        outcome.SubscriptionID,
		MerchantTransactionID: snapshot.MerchantTransactionID,
		Keyword:               snapshot.Product.Name,
		MSISDN:                snapshot.MSISDN,
		PaymentProvider:       snapshot.PaymentChannel.Code,
		EventType:             eventType,
		Amount:                snapshot.PlanPricing.BaseAmount,
		Currency:              snapshot.PlanPricing.Currency,
		BillingCycleDays:      snapshot.ProductPlan.BillingCycleDays,
		Timestamp:             now,
	}
}
