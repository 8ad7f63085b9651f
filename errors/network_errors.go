package errors

import (
	"github.com/mezonai/chainsync/jsonx"
)

// NetworkErrorCode represents standardized error codes for protocol responses
type NetworkErrorCode string

const (
	// General errors
	ErrCodeInternal NetworkErrorCode = "internal_error"

	// Validation errors
	ErrCodeInvalidRequest NetworkErrorCode = "invalid_request"
	ErrCodeTooManyItems   NetworkErrorCode = "too_many_items"

	// Access errors
	ErrCodeBlacklisted NetworkErrorCode = "blacklisted"
)

// NetworkError represents a standardized network error
type NetworkError struct {
	Code    NetworkErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	err, _ := jsonx.Marshal(NetworkError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(err)
}

// Error message constants
const (
	ErrMsgInvalidRequest = "Request format is invalid"
	ErrMsgTooManyItems   = "Request asks for more than %d items"
	ErrMsgInternal       = "Server error, please try again"
	ErrMsgBlacklisted    = "Peer is blacklisted"
)

// NewError creates a new NetworkError and returns it as error interface
func NewError(code NetworkErrorCode, message string) error {
	return &NetworkError{
		Code:    code,
		Message: message,
	}
}
