package jobqueue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Behyna/dcb-renewal-service/pkg/jobqueue"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type payload struct {
	SubscriptionID string `json:"subscription_id"`
}

func newTestQueue(t *testing.T) (*jobqueue.Queue, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return jobqueue.New(rdb, "test:", "renewal_gp", zap.NewNop()), rdb
}

func TestQueue_EnqueueDeduplicates(t *testing.T) {
	queue, rdb := newTestQueue(t)
	ctx := context.Background()

	opts := jobqueue.Options{Delay: time.Hour, JobID: "sub-1", RemoveOnComplete: true}

	require.NoError(t, queue.Enqueue(ctx, payload{SubscriptionID: "sub-1"}, opts))
	require.NoError(t, queue.Enqueue(ctx, payload{SubscriptionID: "sub-1"}, opts))

	delayed, err := rdb.ZCard(ctx, "test:queue:renewal_gp:delayed").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)
}

func TestQueue_EnqueueRequiresJobID(t *testing.T) {
	queue, _ := newTestQueue(t)

	err := queue.Enqueue(context.Background(), payload{}, jobqueue.Options{})
	assert.Error(t, err)
}

func TestWorker_DeliversDueJobs(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	var mu sync.Mutex
	var handled []string

	handler := func(ctx context.Context, job jobqueue.Job) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, job.ID)
		return nil
	}

	worker := jobqueue.NewWorker(queue, 2, handler, nil, zap.NewNop())
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	require.NoError(t, queue.Enqueue(ctx, payload{SubscriptionID: "sub-1"},
		jobqueue.Options{JobID: "sub-1", RemoveOnComplete: true}))
	require.NoError(t, queue.Enqueue(ctx, payload{SubscriptionID: "sub-2"},
		jobqueue.Options{JobID: "sub-2", RemoveOnComplete: true}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWorker_HonorsDelay(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	var mu sync.Mutex
	var deliveredAt time.Time

	handler := func(ctx context.Context, job jobqueue.Job) error {
		mu.Lock()
		defer mu.Unlock()
		deliveredAt = time.Now()
		return nil
	}

	worker := jobqueue.NewWorker(queue, 1, handler, nil, zap.NewNop())
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	enqueuedAt := time.Now()
	require.NoError(t, queue.Enqueue(ctx, payload{SubscriptionID: "sub-1"},
		jobqueue.Options{Delay: 1500 * time.Millisecond, JobID: "sub-1", RemoveOnComplete: true}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !deliveredAt.IsZero()
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, deliveredAt.Sub(enqueuedAt), 1400*time.Millisecond)
}

func TestWorker_FailedJobInvokesHookAndKeepsRecord(t *testing.T) {
	queue, rdb := newTestQueue(t)
	ctx := context.Background()

	failed := make(chan string, 1)

	handler := func(ctx context.Context, job jobqueue.Job) error {
		return errors.New("gateway exploded")
	}
	onFailed := func(jobID string, err error) {
		failed <- jobID
	}

	worker := jobqueue.NewWorker(queue, 1, handler, onFailed, zap.NewNop())
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	require.NoError(t, queue.Enqueue(ctx, payload{SubscriptionID: "sub-1"},
		jobqueue.Options{JobID: "sub-1", RemoveOnComplete: true, RemoveOnFail: false}))

	select {
	case id := <-failed:
		assert.Equal(t, "sub-1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("failed hook never fired")
	}

	assert.Eventually(t, func() bool {
		exists, err := rdb.Exists(ctx, "test:queue:renewal_gp:failed:sub-1").Result()
		return err == nil && exists == 1
	}, 2*time.Second, 50*time.Millisecond)
}

func TestWorker_ReleasesDedupMarkerBeforeHandler(t *testing.T) {
	queue, rdb := newTestQueue(t)

	marker := make(chan int64, 1)

	handler := func(ctx context.Context, job jobqueue.Job) error {
		exists, err := rdb.Exists(context.Background(), "test:queue:renewal_gp:job:sub-1").Result()
		if err != nil {
			return err
		}
		marker <- exists
		return nil
	}

	worker := jobqueue.NewWorker(queue, 1, handler, nil, zap.NewNop())
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	require.NoError(t, queue.Enqueue(context.Background(), payload{SubscriptionID: "sub-1"},
		jobqueue.Options{JobID: "sub-1", RemoveOnComplete: true}))

	select {
	case exists := <-marker:
		assert.Equal(t, int64(0), exists)
	case <-time.After(5 * time.Second):
		t.Fatal("job never delivered")
	}
}

func TestWorker_HandlerCanReenqueueSameJobID(t *testing.T) {
	queue, _ := newTestQueue(t)

	var mu sync.Mutex
	deliveries := 0

	handler := func(ctx context.Context, job jobqueue.Job) error {
		mu.Lock()
		deliveries++
		first := deliveries == 1
		mu.Unlock()

		if first {
			return queue.Enqueue(ctx, payload{SubscriptionID: "sub-1"},
				jobqueue.Options{JobID: "sub-1", RemoveOnComplete: true, RemoveOnFail: true})
		}
		return nil
	}

	worker := jobqueue.NewWorker(queue, 1, handler, nil, zap.NewNop())
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	require.NoError(t, queue.Enqueue(context.Background(), payload{SubscriptionID: "sub-1"},
		jobqueue.Options{JobID: "sub-1", RemoveOnComplete: true}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries == 2
	}, 5*time.Second, 50*time.Millisecond)
}
