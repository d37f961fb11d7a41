package service

import "errors"

const (
	ErrCodeDatabase        = "DATABASE_ERROR"
	ErrCodeLedger          = "LEDGER_ERROR"
	ErrCodeQueue           = "QUEUE_ERROR"
	ErrCodeBroker          = "BROKER_ERROR"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeUnknownOperator = "UNKNOWN_OPERATOR"
)

var (
	ErrUnknownOperator  = errors.New("UNKNOWN_OPERATOR")
	ErrMissingConfig    = errors.New("MISSING_CHARGING_CONFIG")
	ErrMalformedOutcome = errors.New("MALFORMED_OUTCOME")
	ErrDatabase         = errors.New("DATABASE_ERROR")
)

type Error struct {
	Code  string
	Cause error
}

func NewServiceError(code string, cause error) error {
	return Error{Code: code, Cause: cause}
}

func (e Error) Error() string {
	return e.Cause.Error()
}

func (e Error) Unwrap() error {
	return e.Cause
}
