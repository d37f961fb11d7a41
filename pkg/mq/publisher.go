package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Envelope is one confirmed publish. The message id, retry count, original
// timestamp and source travel as AMQP headers alongside the JSON body.
type Envelope struct {
	MessageID         string
	Body              []byte
	RetryCount        int
	OriginalTimestamp time.Time
	Source            string
}

// Publisher is the confirmed-publish wire the notifier and the retrier
// depend on.
type Publisher interface {
	IsConnected() bool
	Publish(ctx context.Context, env Envelope) error
}

// Publish sends the envelope to the main exchange and waits for the broker
// ack. Internal transport errors are retried with a fixed delay before the
// failure surfaces to the caller.
func (r *RabbitMQ) Publish(ctx context.Context, env Envelope) error {
	operation := func() error {
		return r.publishOnce(ctx, env)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.RetryDelay), uint64(r.cfg.RetryAttempts)),
		ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		r.logger.Error("Failed to publish message after retries",
			zap.String("messageID", env.MessageID),
			zap.Int("attempts", r.cfg.RetryAttempts+1),
			zap.Error(err))
		return err
	}

	return nil
}

func (r *RabbitMQ) publishOnce(ctx context.Context, env Envelope) error {
	ch, err := r.channel()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.MessageID,
		Timestamp:    time.Now().UTC(),
		Body:         env.Body,
		Headers: amqp.Table{
			"x-retry-count":        int32(env.RetryCount),
			"x-original-timestamp": env.OriginalTimestamp.UTC().Format(time.RFC3339),
			"x-source":             env.Source,
		},
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, r.cfg.Exchange, r.cfg.RoutingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to await broker confirm: %w", err)
	}

	if !acked {
		return ErrPublishNacked
	}

	return nil
}
