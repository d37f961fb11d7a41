package carrier

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the uniform charging surface over the operator-specific wire
// protocols. Charge never returns a Go error: gateway declines, non-2xx
// statuses and transport failures are all carried inside the Result.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) Result
}

type ChargeRequest struct {
	MSISDN           string
	Amount           decimal.Decimal
	Currency         string
	ReferenceCode    string
	Description      string
	BillingCycleDays int
	ProductID        string
	TransactionID    string
	Robi             *RobiParams
}

// RobiParams carries the per-subscription credentials the ROBI wire call
// requires. They originate from the subscription's charging configuration.
type RobiParams struct {
	APIKey               string
	Username             string
	OnBehalfOf           string
	PurchaseCategoryCode string
	Channel              string
	SubscriptionID       string
	UnSubURL             string
	ContactInfo          string
}

type Result struct {
	Success         bool
	HTTPStatus      int
	Data            map[string]any
	Error           *Error
	RequestPayload  string
	ResponsePayload string
	DurationMs      int64
}

type Error struct {
	Code    string
	Message string
}
