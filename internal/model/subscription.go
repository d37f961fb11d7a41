package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive                 SubscriptionStatus = "ACTIVE"
	SubscriptionStatusSuspendedPaymentFailed SubscriptionStatus = "SUSPENDED_PAYMENT_FAILED"
	SubscriptionStatusCancelled              SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired                SubscriptionStatus = "EXPIRED"
)

// Payment channel codes as stored on payment_channels.code.
const (
	ChannelGP       = "GP"
	ChannelRobi     = "ROBI"
	ChannelRobiMife = "ROBI_MIFE"
)

type Subscription struct {
	ID                      int64              `gorm:"primaryKey;autoIncrement;column:id;<-:create" json:"id"`
	SubscriptionID          string             `gorm:"column:subscription_id;uniqueIndex" json:"subscription_id"`
	MSISDN                  string             `gorm:"column:msisdn" json:"msisdn"`
	Status                  SubscriptionStatus `gorm:"column:status;index" json:"status"`
	AutoRenew               bool               `gorm:"column:auto_renew" json:"auto_renew"`
	NextBillingAt           time.Time          `gorm:"column:next_billing_at;index" json:"next_billing_at"`
	LastPaymentSucceedAt    *time.Time         `gorm:"column:last_payment_succeed_at" json:"last_payment_succeed_at"`
	LastPaymentFailedAt     *time.Time         `gorm:"column:last_payment_failed_at" json:"last_payment_failed_at"`
	ConsentID               string             `gorm:"column:consent_id" json:"consent_id"`
	MerchantTransactionID   string             `gorm:"column:merchant_transaction_id" json:"merchant_transaction_id"`
	PaymentChannelReference string             `gorm:"column:payment_channel_reference" json:"payment_channel_reference"`

	PaymentChannelID int64          `gorm:"column:payment_channel_id" json:"payment_channel_id"`
	PaymentChannel   PaymentChannel `gorm:"foreignKey:PaymentChannelID" json:"payment_channel"`

	ChargingConfigurationID int64                 `gorm:"column:charging_configuration_id" json:"charging_configuration_id"`
	ChargingConfiguration   ChargingConfiguration `gorm:"foreignKey:ChargingConfigurationID" json:"charging_configurations"`

	ProductID int64   `gorm:"column:product_id" json:"product_id"`
	Product   Product `gorm:"foreignKey:ProductID" json:"product"`

	MerchantID int64    `gorm:"column:merchant_id" json:"merchant_id"`
	Merchant   Merchant `gorm:"foreignKey:MerchantID" json:"merchant"`

	ProductPlanID int64       `gorm:"column:product_plan_id" json:"product_plan_id"`
	ProductPlan   ProductPlan `gorm:"foreignKey:ProductPlanID" json:"product_plan"`

	PlanPricingID int64       `gorm:"column:plan_pricing_id" json:"plan_pricing_id"`
	PlanPricing   PlanPricing `gorm:"foreignKey:PlanPricingID" json:"plan_pricing"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

type PaymentChannel struct {
	ID   int64  `gorm:"primaryKey;autoIncrement;column:id;<-:create" json:"id"`
	Code string `gorm:"column:code;uniqueIndex" json:"code"`
	Name string `gorm:"column:name" json:"name"`
}

type Product struct {
	ID         int64  `gorm:"primaryKey;autoIncrement;column:id;<-:create" json:"id"`
	ExternalID string `gorm:"column:external_id" json:"external_id"`
	Name       string `gorm:"column:name" json:"name"`
}

type Merchant struct {
	ID   int64  `gorm:"primaryKey;autoIncrement;column:id;<-:create" json:"id"`
	Name string `gorm:"column:name" json:"name"`
}

type ProductPlan struct {
	ID               int64  `gorm:"primaryKey;autoIncrement;column:id;<-:create" json:"id"`
	Name             string `gorm:"column:name" json:"name"`
	BillingCycleDays int    `gorm:"column:billing_cycle_days" json:"billing_cycle_days"`
}

type PlanPricing struct {
	ID         int64           `gorm:"primaryKey;autoIncrement;column:id;<-:create" json:"id"`
	BaseAmount decimal.Decimal `gorm:"column:base_amount;type:decimal(12,2)" json:"base_amount"`
	Currency   string          `gorm:"column:currency" json:"currency"`
}

// SubscriptionBulkUpdate is one entry of the atomic post-charge update applied
// by the result consumer. Keyed by SubscriptionID.
type SubscriptionBulkUpdate struct {
	SubscriptionID string
	Success        bool
	NextBillingAt  time.Time
}
