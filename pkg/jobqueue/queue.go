package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	promoteInterval = 500 * time.Millisecond
	promoteBatch    = 100
	recordTTL       = 24 * time.Hour
)

// Options control a single enqueue. JobID is the deduplication key: while a
// job with the same id is pending or running, a second enqueue is a no-op.
type Options struct {
	Delay            time.Duration
	JobID            string
	RemoveOnComplete bool
	RemoveOnFail     bool
}

type Job struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	RemoveOnComplete bool `json:"remove_on_complete"`
	RemoveOnFail     bool `json:"remove_on_fail"`
}

// Enqueuer is the narrow surface the dispatcher and the workers depend on.
type Enqueuer interface {
	Name() string
	Enqueue(ctx context.Context, payload any, opts Options) error
}

// Queue is a named delayed queue on Redis. Delayed jobs sit in a sorted set
// scored by due time; a promoter moves due jobs onto a ready list that worker
// goroutines drain with BLMOVE. The per-job record key doubles as the
// deduplication marker.
type Queue struct {
	rdb    *redis.Client
	name   string
	prefix string
	logger *zap.Logger
}

func New(rdb *redis.Client, keyPrefix, name string, logger *zap.Logger) *Queue {
	return &Queue{rdb: rdb, name: name, prefix: keyPrefix, logger: logger}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) base() string            { return q.prefix + "queue:" + q.name }
func (q *Queue) delayedKey() string      { return q.base() + ":delayed" }
func (q *Queue) readyKey() string        { return q.base() + ":ready" }
func (q *Queue) activeKey() string       { return q.base() + ":active" }
func (q *Queue) jobKey(id string) string { return q.base() + ":job:" + id }

func (q *Queue) completedKey(id string) string { return q.base() + ":completed:" + id }
func (q *Queue) failedKey(id string) string    { return q.base() + ":failed:" + id }

func (q *Queue) Enqueue(ctx context.Context, payload any, opts Options) error {
	if opts.JobID == "" {
		return fmt.Errorf("enqueue on %s requires a job id", q.name)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	job := Job{
		ID:               opts.JobID,
		Payload:          body,
		EnqueuedAt:       time.Now().UTC(),
		RemoveOnComplete: opts.RemoveOnComplete,
		RemoveOnFail:     opts.RemoveOnFail,
	}

	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job record: %w", err)
	}

	created, err := q.rdb.SetNX(ctx, q.jobKey(opts.JobID), record, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store job record: %w", err)
	}

	if !created {
		q.logger.Debug("Job already pending, enqueue skipped",
			zap.String("queue", q.name),
			zap.String("jobID", opts.JobID))
		return nil
	}

	due := time.Now().Add(opts.Delay).UnixMilli()
	err = q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(due),
		Member: opts.JobID,
	}).Err()
	if err != nil {
		q.rdb.Del(ctx, q.jobKey(opts.JobID))
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	return nil
}

// promote moves every due job from the delayed set onto the ready list.
func (q *Queue) promote(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	for {
		ids, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   now,
			Count: promoteBatch,
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to read delayed jobs: %w", err)
		}

		if len(ids) == 0 {
			return nil
		}

		pipe := q.rdb.TxPipeline()
		for _, id := range ids {
			pipe.ZRem(ctx, q.delayedKey(), id)
			pipe.RPush(ctx, q.readyKey(), id)
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to promote jobs: %w", err)
		}

		if len(ids) < promoteBatch {
			return nil
		}
	}
}
