package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type NotificationEventType string

const (
	NotificationEventRenewSuccess NotificationEventType = "renew.success"
	NotificationEventRenewFail    NotificationEventType = "renew.fail"
)

const NotificationSource = "dcb-renewal-service"

// NotificationPayload is the downstream event emitted after a charge outcome
// has been persisted.
type NotificationPayload struct {
	ID                    string                `json:"id"`
	Source                string                `json:"source"`
	SubscriptionID        string                `json:"subscription_id"`
	MerchantTransactionID string                `json:"merchant_transaction_id"`
	Keyword               string                `json:"keyword"`
	MSISDN                string                `json:"msisdn"`
	PaymentProvider       string                `json:"payment_provider"`
	EventType             NotificationEventType `json:"event_type"`
	Amount                decimal.Decimal       `json:"amount"`
	Currency              string                `json:"currency"`
	BillingCycleDays      int                   `json:"billing_cycle_days"`
	Metadata              map[string]string     `json:"metadata,omitempty"`
	Timestamp             time.Time             `json:"timestamp"`
}

// FallbackMessage is a notification that could not be handed to the broker,
// parked in the fallback KV until the retrier redelivers it or gives up.
type FallbackMessage struct {
	NotificationPayload
	FailedAt   time.Time `json:"failed_at"`
	RetryCount int       `json:"retry_count"`
}
