package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Behyna/dcb-renewal-service/internal/clock"
	"github.com/Behyna/dcb-renewal-service/internal/ledger"
	"github.com/Behyna/dcb-renewal-service/internal/metrics"
	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/Behyna/dcb-renewal-service/pkg/mq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const notifyConcurrency = 10

type Notifier interface {
	// Send publishes one payload and awaits the broker ack.
	Send(ctx context.Context, payload model.NotificationPayload, retryCount int) error

	// SendBatch fans the payloads out with bounded concurrency. A payload the
	// broker refuses is parked in the fallback store instead of failing the
	// batch; only a fallback-write failure propagates.
	SendBatch(ctx context.Context, payloads []model.NotificationPayload) error
}

type notifier struct {
	publisher mq.Publisher
	fallback  ledger.FallbackStore
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewNotifier(publisher mq.Publisher, fallback ledger.FallbackStore, clk clock.Clock,
	m *metrics.Metrics, logger *zap.Logger) Notifier {
	return &notifier{publisher: publisher, fallback: fallback, clock: clk, metrics: m, logger: logger}
}

func (n *notifier) Send(ctx context.Context, payload model.NotificationPayload, retryCount int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	env := mq.Envelope{
		MessageID:         payload.ID,
		Body:              body,
		RetryCount:        retryCount,
		OriginalTimestamp: payload.Timestamp,
		Source:            payload.Source,
	}

	err = n.publisher.Publish(ctx, env)
	n.metrics.RecordPublish(err)

	return err
}

func (n *notifier) SendBatch(ctx context.Context, payloads []model.NotificationPayload) error {
	if len(payloads) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(notifyConcurrency)

	for _, payload := range payloads {
		payload := payload
		g.Go(func() error {
			if err := n.Send(ctx, payload, 0); err != nil {
				n.logger.Warn("Notification publish failed, parking in fallback store",
					zap.String("notificationID", payload.ID),
					zap.String("subscriptionID", payload.SubscriptionID),
					zap.Error(err))
				return n.park(ctx, payload)
			}

			return nil
		})
	}

	return g.Wait()
}

func (n *notifier) park(ctx context.Context, payload model.NotificationPayload) error {
	msg := model.FallbackMessage{
		NotificationPayload: payload,
		FailedAt:            n.clock.Now().UTC(),
		RetryCount:          0,
	}

	if err := n.fallback.Set(ctx, msg); err != nil {
		n.logger.Error("Failed to write notification fallback",
			zap.String("notificationID", payload.ID),
			zap.Error(err))
		return fmt.Errorf("failed to write notification fallback: %w", err)
	}

	n.metrics.FallbackWrites.Inc()

	return nil
}
