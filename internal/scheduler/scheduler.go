package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler owns the cron runner driving the dispatcher, the result consumer
// and the fallback retrier. Every job is a named singleton: an invocation
// still running when the next fires makes the next one a no-op.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(location *time.Location, logger *zap.Logger) *Scheduler {
	cronLogger := &zapCronLogger{logger: logger}

	c := cron.New(
		cron.WithLocation(location),
		cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		),
	)

	return &Scheduler{cron: c, logger: logger}
}

// Register schedules run under the given cron spec. Specs accept both
// five-field expressions and @every descriptors.
func (s *Scheduler) Register(name, spec string, run func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := run(context.Background()); err != nil {
			s.logger.Error("Scheduled job failed",
				zap.String("job", name),
				zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s with spec %q: %w", name, spec, err)
	}

	s.logger.Info("Scheduled job", zap.String("job", name), zap.String("spec", spec))

	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts new invocations and waits for running jobs up to the context
// deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduled jobs did not finish in time: %w", ctx.Err())
	}
}

type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
