package repository

import (
	"context"
	"errors"

	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var ErrBillingEventDuplicate = errors.New("BILLING_EVENT_DUPLICATE")

const pgUniqueViolation = "23505"

type BillingEventRepository interface {
	// CreateMany inserts every row in a single statement. A uniqueness
	// violation fails the whole batch.
	CreateMany(ctx context.Context, events []model.BillingEvent) error
}

type billingEvent struct {
	db *gorm.DB
}

func NewBillingEventRepository(db *gorm.DB) BillingEventRepository {
	return &billingEvent{db: db}
}

func (b *billingEvent) CreateMany(ctx context.Context, events []model.BillingEvent) error {
	if len(events) == 0 {
		return nil
	}

	err := b.db.WithContext(ctx).Create(&events).Error
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrBillingEventDuplicate
	}

	return err
}
