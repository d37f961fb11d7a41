package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Behyna/dcb-renewal-service/internal/clock"
	"github.com/Behyna/dcb-renewal-service/internal/metrics"
	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/Behyna/dcb-renewal-service/internal/repository"
	"github.com/Behyna/dcb-renewal-service/pkg/jobqueue"
	"go.uber.org/zap"
)

const (
	QueueGP   = "renewal_gp"
	QueueRobi = "renewal_robi"

	pageYield = 50 * time.Millisecond
)

// QueueSet maps a payment channel code to the operator queue that serves it.
type QueueSet map[string]jobqueue.Enqueuer

// OperatorQueues builds the routing table. ROBI_MIFE subscriptions ride the
// ROBI queue; their own channel code survives in the snapshot.
func OperatorQueues(gp, robi jobqueue.Enqueuer) QueueSet {
	return QueueSet{
		model.ChannelGP:       gp,
		model.ChannelRobi:     robi,
		model.ChannelRobiMife: robi,
	}
}

type Dispatcher interface {
	Run(ctx context.Context) error
}

// dispatcher pages through today's due subscriptions and enqueues one delayed
// job per row. The paging cursor survives a failed run so the next run
// resumes instead of re-reading finished pages.
type dispatcher struct {
	repo    repository.SubscriptionRepository
	queues  QueueSet
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	cursor int64
}

func NewDispatcher(repo repository.SubscriptionRepository, queues QueueSet, clk clock.Clock,
	m *metrics.Metrics, logger *zap.Logger) Dispatcher {
	return &dispatcher{repo: repo, queues: queues, clock: clk, metrics: m, logger: logger}
}

func (d *dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info("Starting renewal dispatch", zap.Int64("cursor", d.cursor))

	var summary DispatchSummary

	for {
		page, err := d.repo.FindRenewable(ctx, repository.DefaultPageSize, d.cursor)
		if err != nil {
			d.logger.Error("Failed to read renewable page",
				zap.Int64("cursor", d.cursor),
				zap.Error(err))
			return NewServiceError(ErrCodeDatabase, fmt.Errorf("failed to read renewable page: %w", err))
		}

		if len(page) == 0 {
			d.cursor = 0
			d.logger.Info("Renewal dispatch complete",
				zap.Int("pages", summary.Pages),
				zap.Int("enqueued", summary.Enqueued),
				zap.Int("overdue", summary.Overdue),
				zap.Int("skippedUnknownOperator", summary.Skipped))
			return nil
		}

		summary.Pages++
		d.metrics.DispatchPages.Inc()

		if err := d.dispatchPage(ctx, page, &summary); err != nil {
			return err
		}

		d.cursor = page[len(page)-1].ID

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pageYield):
		}
	}
}

func (d *dispatcher) dispatchPage(ctx context.Context, page []model.Subscription, summary *DispatchSummary) error {
	now := d.clock.Now()

	for _, row := range page {
		queue, ok := d.queues[row.PaymentChannel.Code]
		if !ok {
			d.logger.Warn("Unknown payment channel, skipping subscription",
				zap.String("subscriptionID", row.SubscriptionID),
				zap.String("channel", row.PaymentChannel.Code))
			summary.Skipped++
			d.metrics.UnknownOperator.Inc()
			continue
		}

		delay := row.NextBillingAt.Sub(now)
		if delay < 0 {
			d.logger.Warn("Subscription billing moment already passed, charging immediately",
				zap.String("subscriptionID", row.SubscriptionID),
				zap.Time("nextBillingAt", row.NextBillingAt))
			delay = 0
			summary.Overdue++
			d.metrics.OverdueJobs.Inc()
		}

		job := RenewalJob{SubscriptionID: row.SubscriptionID, Snapshot: row}
		opts := jobqueue.Options{
			Delay:            delay,
			JobID:            row.SubscriptionID,
			RemoveOnComplete: true,
			RemoveOnFail:     false,
		}

		if err := queue.Enqueue(ctx, job, opts); err != nil {
			d.logger.Error("Failed to enqueue renewal job",
				zap.String("subscriptionID", row.SubscriptionID),
				zap.String("queue", queue.Name()),
				zap.Error(err))
			return NewServiceError(ErrCodeQueue, fmt.Errorf("failed to enqueue renewal job: %w", err))
		}

		summary.Enqueued++
		d.metrics.RecordDispatch(row.PaymentChannel.Code)
	}

	return nil
}
