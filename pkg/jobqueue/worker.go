package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, job Job) error

// FailedHandler receives jobs whose handler returned an error or panicked.
// Used only for logging; retries happen through explicit re-enqueues.
type FailedHandler func(jobID string, err error)

// Worker hosts the bounded-concurrency consumers of one queue.
type Worker struct {
	queue       *Queue
	concurrency int
	handler     Handler
	onFailed    FailedHandler
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(queue *Queue, concurrency int, handler Handler, onFailed FailedHandler, logger *zap.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		queue:       queue,
		concurrency: concurrency,
		handler:     handler,
		onFailed:    onFailed,
		logger:      logger,
	}
}

// Start launches the promoter and the consumer goroutines. It returns
// immediately; Stop drains them.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.promoteLoop(ctx)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.consumeLoop(ctx)
	}

	w.logger.Info("Queue worker started",
		zap.String("queue", w.queue.Name()),
		zap.Int("concurrency", w.concurrency))
}

// Stop cancels the loops and waits for in-flight jobs up to the context
// deadline.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Queue worker stopped", zap.String("queue", w.queue.Name()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue %s worker did not drain in time: %w", w.queue.Name(), ctx.Err())
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.promote(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("Failed to promote delayed jobs",
					zap.String("queue", w.queue.Name()),
					zap.Error(err))
			}
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		id, err := w.queue.rdb.BLMove(ctx, w.queue.readyKey(), w.queue.activeKey(), "LEFT", "RIGHT", time.Second).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			w.logger.Error("Failed to claim job",
				zap.String("queue", w.queue.Name()),
				zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		w.runJob(ctx, id)
	}
}

func (w *Worker) runJob(ctx context.Context, id string) {
	defer func() {
		if err := w.queue.rdb.LRem(context.Background(), w.queue.activeKey(), 1, id).Err(); err != nil {
			w.logger.Error("Failed to remove job from active list",
				zap.String("queue", w.queue.Name()),
				zap.String("jobID", id),
				zap.Error(err))
		}
	}()

	record, err := w.queue.rdb.Get(ctx, w.queue.jobKey(id)).Bytes()
	if err != nil {
		w.logger.Warn("Job record missing, dropping delivery",
			zap.String("queue", w.queue.Name()),
			zap.String("jobID", id),
			zap.Error(err))
		return
	}

	var job Job
	if err := json.Unmarshal(record, &job); err != nil {
		w.logger.Warn("Malformed job record, dropping delivery",
			zap.String("queue", w.queue.Name()),
			zap.String("jobID", id),
			zap.Error(err))
		w.queue.rdb.Del(context.Background(), w.queue.jobKey(id))
		return
	}

	// Release the dedup marker before running the handler: the same-day
	// re-queue policy enqueues the same job id from inside it. The release
	// runs on a background context so a cancelled claim context cannot leave
	// a stale marker that would swallow that re-enqueue.
	if err := w.queue.rdb.Del(context.Background(), w.queue.jobKey(id)).Err(); err != nil {
		w.logger.Error("Failed to release job dedup marker",
			zap.String("queue", w.queue.Name()),
			zap.String("jobID", id),
			zap.Error(err))
	}

	handlerErr := w.invoke(ctx, job)

	cleanup := context.Background()
	if handlerErr == nil {
		if !job.RemoveOnComplete {
			w.queue.rdb.Set(cleanup, w.queue.completedKey(id), record, recordTTL)
		}
	} else {
		if !job.RemoveOnFail {
			w.queue.rdb.Set(cleanup, w.queue.failedKey(id), record, recordTTL)
		}

		if w.onFailed != nil {
			w.onFailed(id, handlerErr)
		}
	}
}

func (w *Worker) invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()

	return w.handler(ctx, job)
}
