package model

import "time"

// ChargeOutcome is the record a renewal worker appends to the result ledger
// after a charge attempt. The result consumer pops and destroys it.
type ChargeOutcome struct {
	SubscriptionID     string        `json:"subscription_id"`
	Snapshot           Subscription  `json:"snapshot"`
	Timestamp          time.Time     `json:"timestamp"`
	Success            bool          `json:"success"`
	PaymentReferenceID string        `json:"payment_reference_id"`
	HTTPStatus         int           `json:"http_status"`
	RequestPayload     string        `json:"request_payload"`
	ResponsePayload    string        `json:"response_payload"`
	ResponseDurationMs int64         `json:"response_duration_ms"`
	Error              *OutcomeError `json:"error,omitempty"`
	Message            string        `json:"message"`
}

type OutcomeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
