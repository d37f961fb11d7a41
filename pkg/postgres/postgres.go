package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type Config struct {
	URL             string        `mapstructure:"url"`
	ConnectionLimit int           `mapstructure:"connection_limit"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

func NewConnection(ctx context.Context, cfg Config, logger *zap.Logger) (db *gorm.DB, err error) {
	dsn := buildDSN(cfg)

	gormLogger := gormLogger.New(&zapWriter{logger: logger},
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		})

	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get underlying DB", zap.Error(err))
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.ConnectionLimit)
	sqlDB.SetMaxIdleConns(cfg.ConnectionLimit)
	sqlDB.SetConnMaxIdleTime(cfg.PoolTimeout)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		logger.Error("Database ping failed", zap.Error(err))
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL database",
		zap.Int("connectionLimit", cfg.ConnectionLimit))

	return db.WithContext(ctx), nil
}

func buildDSN(cfg Config) string {
	if strings.Contains(cfg.URL, "connect_timeout=") {
		return cfg.URL
	}

	sep := "?"
	if strings.Contains(cfg.URL, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%sconnect_timeout=%d", cfg.URL, sep, int(cfg.ConnectTimeout.Seconds()))
}

type zapWriter struct {
	logger *zap.Logger
}

func (z *zapWriter) Printf(format string, args ...interface{}) {
	z.logger.Info(fmt.Sprintf(format, args...))
}
