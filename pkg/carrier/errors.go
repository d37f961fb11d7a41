package carrier

import (
	"context"
	"errors"
)

const (
	ErrorCodeTimeout         = "TIMEOUT"          // context timeout on the wire call
	ErrorCodeNetworkError    = "NETWORK_ERROR"    // connection failure, no response
	ErrorCodeInvalidResponse = "INVALID_RESPONSE" // response body is not valid JSON
	ErrorCodeMissingParams   = "MISSING_PARAMS"   // operator params absent from the request
)

func classifyTransportError(err error) *Error {
	code := ErrorCodeNetworkError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = ErrorCodeTimeout
	}

	return &Error{Code: code, Message: err.Error()}
}
