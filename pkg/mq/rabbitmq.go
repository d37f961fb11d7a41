package mq

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Config struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`

	Exchange   string `mapstructure:"exchange"`
	Queue      string `mapstructure:"queue"`
	RoutingKey string `mapstructure:"routing_key"`

	DLQExchange string `mapstructure:"dlq_exchange"`
	DLQKey      string `mapstructure:"dlq_key"`
	DLQQueue    string `mapstructure:"dlq_queue"`

	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

func (c Config) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Pass, c.Host, c.Port)
}

const (
	mainQueueMaxLength = 1_000_000
	dlqMaxLength       = 10_000
	dlqMessageTTL      = 24 * time.Hour
)

// RabbitMQ holds one long-lived connection with a confirm-mode channel. On
// connection loss it reconnects with linearly increasing backoff, serialized
// by a connecting guard so only one reconnect loop runs at a time.
type RabbitMQ struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.RWMutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	connected bool

	connecting atomic.Bool
	closed     atomic.Bool
}

func NewConnection(cfg Config, logger *zap.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{cfg: cfg, logger: logger}

	if err := r.connect(); err != nil {
		logger.Error("Failed to connect to RabbitMQ",
			zap.Error(err),
			zap.String("host", cfg.Host),
			zap.String("port", cfg.Port))
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	logger.Info("Successfully connected to RabbitMQ",
		zap.String("host", cfg.Host),
		zap.String("exchange", cfg.Exchange))

	return r, nil
}

func (r *RabbitMQ) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.cfg.URL())
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to put channel into confirm mode: %w", err)
	}

	if err := r.declareTopology(ch); err != nil {
		conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.connected = true
	r.mu.Unlock()

	go r.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	return nil
}

// declareTopology declares the main and dead-letter exchanges, queues and
// bindings. Declarations are idempotent; a restart against an existing
// topology is a no-op.
func (r *RabbitMQ) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(r.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", r.cfg.Exchange, err)
	}

	if err := ch.ExchangeDeclare(r.cfg.DLQExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", r.cfg.DLQExchange, err)
	}

	_, err := ch.QueueDeclare(r.cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    r.cfg.DLQExchange,
		"x-dead-letter-routing-key": r.cfg.DLQKey,
		"x-max-length":              int32(mainQueueMaxLength),
		"x-overflow":                "reject-publish",
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", r.cfg.Queue, err)
	}

	if err := ch.QueueBind(r.cfg.Queue, r.cfg.RoutingKey, r.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", r.cfg.Queue, err)
	}

	_, err = ch.QueueDeclare(r.cfg.DLQQueue, true, false, false, false, amqp.Table{
		"x-message-ttl": int32(dlqMessageTTL.Milliseconds()),
		"x-max-length":  int32(dlqMaxLength),
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", r.cfg.DLQQueue, err)
	}

	if err := ch.QueueBind(r.cfg.DLQQueue, r.cfg.DLQKey, r.cfg.DLQExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", r.cfg.DLQQueue, err)
	}

	return nil
}

func (r *RabbitMQ) watch(closed chan *amqp.Error) {
	err, ok := <-closed
	if !ok || r.closed.Load() {
		return
	}

	r.logger.Warn("RabbitMQ connection lost", zap.Error(err))

	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()

	r.reconnect()
}

// reconnect retries with linearly increasing delay: attempt n waits n times
// the base delay.
func (r *RabbitMQ) reconnect() {
	if !r.connecting.CompareAndSwap(false, true) {
		return
	}
	defer r.connecting.Store(false)

	for attempt := 1; attempt <= r.cfg.MaxReconnects; attempt++ {
		if r.closed.Load() {
			return
		}

		delay := time.Duration(attempt) * r.cfg.ReconnectDelay
		r.logger.Info("Reconnecting to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", r.cfg.MaxReconnects),
			zap.Duration("delay", delay))

		time.Sleep(delay)

		if err := r.connect(); err != nil {
			r.logger.Error("Reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		r.logger.Info("RabbitMQ connection restored", zap.Int("attempt", attempt))
		return
	}

	r.logger.Error("Gave up reconnecting to RabbitMQ",
		zap.Int("attempts", r.cfg.MaxReconnects))
}

func (r *RabbitMQ) channel() (*amqp.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.connected || r.ch == nil {
		return nil, ErrNotConnected
	}

	return r.ch, nil
}

// Close tears down the channel and then the connection. Safe to call once at
// shutdown; the watcher will not reconnect afterwards.
func (r *RabbitMQ) Close() error {
	r.closed.Store(true)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connected = false

	if r.ch != nil {
		_ = r.ch.Close()
	}

	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn.Close()
	}

	return nil
}
