package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BillingEventType string

const (
	BillingEventTypeRenewal BillingEventType = "RENEWAL"
)

type BillingEventStatus string

const (
	BillingEventStatusSuccess BillingEventStatus = "SUCCESS"
	BillingEventStatusFailed  BillingEventStatus = "FAILED"
)

// BillingEvent is the append-only record of a terminal charge outcome.
type BillingEvent struct {
	ID                 int64              `gorm:"primaryKey;autoIncrement;column:id;<-:create" json:"id"`
	SubscriptionID     string             `gorm:"column:subscription_id;index" json:"subscription_id"`
	MerchantID         int64              `gorm:"column:merchant_id" json:"merchant_id"`
	ProductID          int64              `gorm:"column:product_id" json:"product_id"`
	PlanID             int64              `gorm:"column:plan_id" json:"plan_id"`
	PaymentChannelID   int64              `gorm:"column:payment_channel_id" json:"payment_channel_id"`
	MSISDN             string             `gorm:"column:msisdn" json:"msisdn"`
	PaymentReferenceID string             `gorm:"column:payment_reference_id;uniqueIndex" json:"payment_reference_id"`
	EventType          BillingEventType   `gorm:"column:event_type" json:"event_type"`
	Status             BillingEventStatus `gorm:"column:status" json:"status"`
	Amount             decimal.Decimal    `gorm:"column:amount;type:decimal(12,2)" json:"amount"`
	Currency           string             `gorm:"column:currency" json:"currency"`
	RequestPayload     string             `gorm:"column:request_payload;type:text" json:"request_payload"`
	ResponsePayload    string             `gorm:"column:response_payload;type:text" json:"response_payload"`
	ResponseMessage    string             `gorm:"column:response_message" json:"response_message"`
	DurationMs         int64              `gorm:"column:duration_ms" json:"duration_ms"`
	ResponseCode       int                `gorm:"column:response_code" json:"response_code"`
	CreatedAt          time.Time          `gorm:"column:created_at" json:"created_at"`
}
