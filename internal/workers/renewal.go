package workers

import (
	"context"
	"encoding/json"

	"github.com/Behyna/dcb-renewal-service/internal/service"
	"github.com/Behyna/dcb-renewal-service/pkg/jobqueue"
	"go.uber.org/zap"
)

// RenewalWorker hosts one operator queue: it decodes delivered renewal jobs
// and hands them to the operator's charge service.
type RenewalWorker struct {
	worker *jobqueue.Worker
	logger *zap.Logger
	name   string
}

func NewRenewalWorker(queue *jobqueue.Queue, svc service.ChargeService, concurrency int,
	logger *zap.Logger) *RenewalWorker {
	w := &RenewalWorker{logger: logger, name: queue.Name()}

	handler := func(ctx context.Context, job jobqueue.Job) error {
		var cmd service.RenewalJob
		if err := json.Unmarshal(job.Payload, &cmd); err != nil {
			logger.Warn("Invalid renewal job payload, dropping",
				zap.String("queue", queue.Name()),
				zap.String("jobID", job.ID),
				zap.Error(err))
			return nil
		}

		return svc.Process(ctx, cmd)
	}

	onFailed := func(jobID string, err error) {
		logger.Error("Renewal job failed",
			zap.String("queue", queue.Name()),
			zap.String("jobID", jobID),
			zap.Error(err))
	}

	w.worker = jobqueue.NewWorker(queue, concurrency, handler, onFailed, logger)

	return w
}

func (w *RenewalWorker) Start() {
	w.worker.Start()
}

func (w *RenewalWorker) Stop(ctx context.Context) error {
	return w.worker.Stop(ctx)
}
