package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Behyna/dcb-renewal-service/internal/clock"
	"github.com/Behyna/dcb-renewal-service/internal/model"
	"gorm.io/gorm"
)

var ErrSubscriptionNotFound = errors.New("SUBSCRIPTION_NOT_FOUND")
var ErrEmptyBulkUpdate = errors.New("EMPTY_BULK_UPDATE")

const DefaultPageSize = 10000

type SubscriptionRepository interface {
	// FindRenewable returns up to limit auto-renewing subscriptions whose
	// next billing moment falls inside today's UTC window, ordered by id
	// ascending. A non-zero cursor restricts the page to id > cursor.
	FindRenewable(ctx context.Context, limit int, cursor int64) ([]model.Subscription, error)

	// BulkUpdate applies status, payment timestamps and next_billing_at for
	// every entry in a single statement. All or nothing.
	BulkUpdate(ctx context.Context, updates []model.SubscriptionBulkUpdate) error

	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Subscription, error)
}

type subscription struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewSubscriptionRepository(db *gorm.DB, clk clock.Clock) SubscriptionRepository {
	return &subscription{db: db, clock: clk}
}

func (s *subscription) FindRenewable(ctx context.Context, limit int, cursor int64) ([]model.Subscription, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	dayStart, dayEnd := todayWindowUTC(s.clock.Now())

	query := s.db.WithContext(ctx).
		Preload("PaymentChannel").
		Preload("ChargingConfiguration").
		Preload("Product").
		Preload("Merchant").
		Preload("ProductPlan").
		Preload("PlanPricing").
		Where("auto_renew = ?", true).
		Where("status IN ?", []model.SubscriptionStatus{
			model.SubscriptionStatusActive,
			model.SubscriptionStatusSuspendedPaymentFailed,
		}).
		Where("next_billing_at BETWEEN ? AND ?", dayStart, dayEnd)

	if cursor > 0 {
		query = query.Where("id > ?", cursor)
	}

	var subscriptions []model.Subscription
	if err := query.Order("id ASC").Limit(limit).Find(&subscriptions).Error; err != nil {
		return nil, err
	}

	return subscriptions, nil
}

func (s *subscription) BulkUpdate(ctx context.Context, updates []model.SubscriptionBulkUpdate) error {
	if len(updates) == 0 {
		return ErrEmptyBulkUpdate
	}

	// A CASE expression resolves on its first matching WHEN, so a duplicate
	// id in one batch must collapse to its last entry to keep the later
	// outcome as the winner.
	updates = lastPerSubscription(updates)

	now := s.clock.Now().UTC()

	var sql strings.Builder
	args := make([]interface{}, 0, len(updates)*8+1+len(updates))

	sql.WriteString("UPDATE subscriptions SET status = CASE subscription_id")
	for _, u := range updates {
		sql.WriteString(" WHEN ? THEN ?")
		args = append(args, u.SubscriptionID, string(statusFor(u.Success)))
	}

	sql.WriteString(" END, last_payment_succeed_at = CASE subscription_id")
	for _, u := range updates {
		sql.WriteString(" WHEN ? THEN ?")
		args = append(args, u.SubscriptionID, succeedAt(u.Success, now))
	}

	sql.WriteString(" END, last_payment_failed_at = CASE subscription_id")
	for _, u := range updates {
		sql.WriteString(" WHEN ? THEN ?")
		args = append(args, u.SubscriptionID, failedAt(u.Success, now))
	}

	sql.WriteString(" END, next_billing_at = CASE subscription_id")
	for _, u := range updates {
		sql.WriteString(" WHEN ? THEN ?")
		args = append(args, u.SubscriptionID, u.NextBillingAt.UTC())
	}

	sql.WriteString(" END, updated_at = ? WHERE subscription_id IN (")
	args = append(args, now)
	for i, u := range updates {
		if i > 0 {
			sql.WriteString(",")
		}
		sql.WriteString("?")
		args = append(args, u.SubscriptionID)
	}
	sql.WriteString(")")

	return s.db.WithContext(ctx).Exec(sql.String(), args...).Error
}

func (s *subscription) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	var sub model.Subscription

	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		First(&sub).Error
	if err == nil {
		return &sub, nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}

	return nil, err
}

func lastPerSubscription(updates []model.SubscriptionBulkUpdate) []model.SubscriptionBulkUpdate {
	deduped := make([]model.SubscriptionBulkUpdate, 0, len(updates))
	position := make(map[string]int, len(updates))

	for _, u := range updates {
		if i, ok := position[u.SubscriptionID]; ok {
			deduped[i] = u
			continue
		}
		position[u.SubscriptionID] = len(deduped)
		deduped = append(deduped, u)
	}

	return deduped
}

func statusFor(success bool) model.SubscriptionStatus {
	if success {
		return model.SubscriptionStatusActive
	}
	return model.SubscriptionStatusSuspendedPaymentFailed
}

func succeedAt(success bool, now time.Time) *time.Time {
	if success {
		return &now
	}
	return nil
}

func failedAt(success bool, now time.Time) *time.Time {
	if success {
		return nil
	}
	return &now
}

// todayWindowUTC returns the dispatch window [00:00:00, 23:59:59.999] of the
// current UTC day.
func todayWindowUTC(now time.Time) (time.Time, time.Time) {
	utc := now.UTC()
	start := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Millisecond)
	return start, end
}
