package service

import (
	"context"
	"fmt"

	"github.com/Behyna/dcb-renewal-service/internal/clock"
	"github.com/Behyna/dcb-renewal-service/internal/ledger"
	"github.com/Behyna/dcb-renewal-service/internal/metrics"
	"github.com/Behyna/dcb-renewal-service/pkg/mq"
	"go.uber.org/zap"
)

// MaxFallbackRetries caps redelivery attempts for a parked notification
// before it is declared permanently failed and dropped.
const MaxFallbackRetries = 5

type RetryService interface {
	Sweep(ctx context.Context) error
}

// retry sweeps the notification fallback store and attempts redelivery.
type retry struct {
	publisher mq.Publisher
	fallback  ledger.FallbackStore
	notifier  Notifier
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewRetryService(publisher mq.Publisher, fallback ledger.FallbackStore, notifier Notifier,
	clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) RetryService {
	return &retry{
		publisher: publisher,
		fallback:  fallback,
		notifier:  notifier,
		clock:     clk,
		metrics:   m,
		logger:    logger,
	}
}

func (r *retry) Sweep(ctx context.Context) error {
	if !r.publisher.IsConnected() {
		r.logger.Info("Broker not connected, skipping fallback sweep")
		return nil
	}

	messages, err := r.fallback.List(ctx)
	if err != nil {
		return NewServiceError(ErrCodeLedger, fmt.Errorf("failed to list fallback messages: %w", err))
	}

	if len(messages) == 0 {
		return nil
	}

	r.logger.Info("Sweeping notification fallback store", zap.Int("messages", len(messages)))

	for _, msg := range messages {
		if !r.publisher.IsConnected() {
			r.logger.Warn("Broker connection lost mid-sweep, stopping")
			return nil
		}

		if msg.RetryCount >= MaxFallbackRetries {
			r.logger.Error("Notification permanently failed, dropping",
				zap.String("notificationID", msg.ID),
				zap.String("subscriptionID", msg.SubscriptionID),
				zap.Int("retries", msg.RetryCount))
			r.metrics.FallbackRetries.WithLabelValues("permanent").Inc()

			if err := r.fallback.Delete(ctx, msg.ID); err != nil {
				r.logger.Error("Failed to drop permanent fallback",
					zap.String("notificationID", msg.ID),
					zap.Error(err))
			}
			continue
		}

		if err := r.notifier.Send(ctx, msg.NotificationPayload, msg.RetryCount+1); err != nil {
			msg.RetryCount++
			msg.FailedAt = r.clock.Now().UTC()
			r.metrics.FallbackRetries.WithLabelValues("failure").Inc()

			if err := r.fallback.Set(ctx, msg); err != nil {
				r.logger.Error("Failed to update fallback retry count",
					zap.String("notificationID", msg.ID),
					zap.Error(err))
			}
			continue
		}

		r.metrics.FallbackRetries.WithLabelValues("success").Inc()
		r.logger.Info("Redelivered fallback notification",
			zap.String("notificationID", msg.ID),
			zap.Int("attempt", msg.RetryCount+1))

		if err := r.fallback.Delete(ctx, msg.ID); err != nil {
			r.logger.Error("Failed to delete delivered fallback",
				zap.String("notificationID", msg.ID),
				zap.Error(err))
		}
	}

	return nil
}
