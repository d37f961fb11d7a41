package main

import (
	"context"
	"fmt"

	"github.com/Behyna/dcb-renewal-service/internal/api"
	v1 "github.com/Behyna/dcb-renewal-service/internal/api/v1"
	"github.com/Behyna/dcb-renewal-service/internal/api/v1/middleware"
	"github.com/Behyna/dcb-renewal-service/internal/clock"
	"github.com/Behyna/dcb-renewal-service/internal/config"
	"github.com/Behyna/dcb-renewal-service/internal/ledger"
	"github.com/Behyna/dcb-renewal-service/internal/metrics"
	"github.com/Behyna/dcb-renewal-service/internal/repository"
	"github.com/Behyna/dcb-renewal-service/internal/scheduler"
	"github.com/Behyna/dcb-renewal-service/internal/service"
	"github.com/Behyna/dcb-renewal-service/internal/workers"
	"github.com/Behyna/dcb-renewal-service/pkg/carrier"
	"github.com/Behyna/dcb-renewal-service/pkg/httpclient"
	"github.com/Behyna/dcb-renewal-service/pkg/jobqueue"
	"github.com/Behyna/dcb-renewal-service/pkg/mq"
	"github.com/Behyna/dcb-renewal-service/pkg/postgres"
	pkgredis "github.com/Behyna/dcb-renewal-service/pkg/redis"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

func main() {
	fx.New(
		fx.Provide(
			config.Load,
			NewLogger,
			clock.New,
			prometheus.NewRegistry,
			NewMetrics,

			NewConnectionDB,
			NewRedisClient,
			NewLedgerStore,
			NewLedger,
			NewFallbackStore,
			NewMQConnection,
			NewPublisher,

			repository.NewSubscriptionRepository,
			repository.NewBillingEventRepository,

			NewQueues,
			NewGateways,
			NewChargeServices,
			NewDispatcher,
			service.NewNotifier,
			service.NewReportService,
			service.NewRetryService,
			NewWorkers,
			NewScheduler,

			NewFiberApp,
			v1.NewHandler,
		),
		fx.Invoke(
			registerConnectionLifecycle,
			startWorkers,
			startScheduler,
			startServer,
		),
	).Run()
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]interface{}{"service": cfg.ServiceName}

	return zapCfg.Build()
}

func NewMetrics(registry *prometheus.Registry) *metrics.Metrics {
	return metrics.NewMetrics(registry)
}

func NewConnectionDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	return postgres.NewConnection(context.Background(), cfg.Database, logger)
}

func NewRedisClient(cfg *config.Config, logger *zap.Logger) (*goredis.Client, error) {
	return pkgredis.NewClient(context.Background(), cfg.Redis, logger)
}

func NewLedgerStore(cfg *config.Config, rdb *goredis.Client) *ledger.Store {
	return ledger.NewStore(rdb, cfg.Redis.KeyPrefix)
}

func NewLedger(store *ledger.Store) ledger.Ledger { return store }

func NewFallbackStore(store *ledger.Store) ledger.FallbackStore { return store }

func NewMQConnection(cfg *config.Config, logger *zap.Logger) (*mq.RabbitMQ, error) {
	return mq.NewConnection(cfg.RabbitMQ, logger)
}

func NewPublisher(rabbit *mq.RabbitMQ) mq.Publisher { return rabbit }

// Queues groups the per-operator delayed queues.
type Queues struct {
	GP   *jobqueue.Queue
	Robi *jobqueue.Queue
}

func NewQueues(cfg *config.Config, rdb *goredis.Client, logger *zap.Logger) Queues {
	return Queues{
		GP:   jobqueue.New(rdb, cfg.Redis.KeyPrefix, service.QueueGP, logger),
		Robi: jobqueue.New(rdb, cfg.Redis.KeyPrefix, service.QueueRobi, logger),
	}
}

// Gateways groups the carrier gateway clients.
type Gateways struct {
	GP   carrier.Gateway
	Robi carrier.Gateway
}

func NewGateways(cfg *config.Config) Gateways {
	return Gateways{
		GP:   carrier.NewGPGateway(cfg.GP, httpclient.NewHTTPClient(cfg.GP.Timeout)),
		Robi: carrier.NewRobiGateway(cfg.Robi, httpclient.NewHTTPClient(cfg.Robi.Timeout)),
	}
}

// ChargeServices groups the per-operator worker logic.
type ChargeServices struct {
	GP   service.ChargeService
	Robi service.ChargeService
}

func NewChargeServices(cfg *config.Config, gateways Gateways, queues Queues, led ledger.Ledger,
	clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) ChargeServices {
	location := cfg.Location()

	return ChargeServices{
		GP: service.NewChargeService(service.GPPolicy(), gateways.GP, queues.GP,
			led, clk, location, m, logger),
		Robi: service.NewChargeService(service.RobiPolicy(), gateways.Robi, queues.Robi,
			led, clk, location, m, logger),
	}
}

func NewDispatcher(repo repository.SubscriptionRepository, queues Queues, clk clock.Clock,
	m *metrics.Metrics, logger *zap.Logger) service.Dispatcher {
	return service.NewDispatcher(repo, service.OperatorQueues(queues.GP, queues.Robi), clk, m, logger)
}

// Workers groups the per-operator queue hosts.
type Workers struct {
	GP   *workers.RenewalWorker
	Robi *workers.RenewalWorker
}

func NewWorkers(cfg *config.Config, queues Queues, services ChargeServices, logger *zap.Logger) Workers {
	return Workers{
		GP:   workers.NewRenewalWorker(queues.GP, services.GP, cfg.Pipeline.GPConcurrency, logger),
		Robi: workers.NewRenewalWorker(queues.Robi, services.Robi, cfg.Pipeline.RobiConcurrency, logger),
	}
}

func NewScheduler(cfg *config.Config, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(cfg.Location(), logger)
}

func NewFiberApp(m *metrics.Metrics, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(middleware.HTTPMetricsMiddleware(m, logger))
	return app
}

// registerConnectionLifecycle closes the external connections last: the
// broker drains first, then the Redis client, then the SQL pool.
func registerConnectionLifecycle(lc fx.Lifecycle, db *gorm.DB, rdb *goredis.Client,
	rabbit *mq.RabbitMQ, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing external connections")

			if err := rabbit.Close(); err != nil {
				logger.Error("Failed to close RabbitMQ connection", zap.Error(err))
			}

			if err := rdb.Close(); err != nil {
				logger.Error("Failed to close Redis client", zap.Error(err))
			}

			sqlDB, err := db.DB()
			if err != nil {
				return err
			}

			return sqlDB.Close()
		},
	})
}

func startWorkers(lc fx.Lifecycle, w Workers, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.GP.Start()
			w.Robi.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping renewal workers")

			if err := w.GP.Stop(ctx); err != nil {
				return err
			}

			return w.Robi.Stop(ctx)
		},
	})
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler, cfg *config.Config,
	dispatcher service.Dispatcher, report service.ReportService, retrier service.RetryService,
	logger *zap.Logger) error {
	if err := s.Register("renewal-dispatch", cfg.Pipeline.DispatchCron, dispatcher.Run); err != nil {
		return err
	}

	if err := s.Register("result-drain", "@every "+cfg.Pipeline.DrainInterval.String(), report.Drain); err != nil {
		return err
	}

	if err := s.Register("notification-retry", "@every "+cfg.Pipeline.RetryInterval.String(), retrier.Sweep); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			logger.Info("Scheduler started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping scheduler")
			return s.Stop(ctx)
		},
	})

	return nil
}

func startServer(lc fx.Lifecycle, app *fiber.App, handler *v1.Handler,
	registry *prometheus.Registry, cfg *config.Config, logger *zap.Logger) {
	api.SetupRoutes(app, handler, registry)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
					logger.Error("HTTP listener exited", zap.Error(err))
				}
			}()

			logger.Info("HTTP listener started", zap.Int("port", cfg.Port))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.ShutdownWithContext(ctx)
		},
	})
}
