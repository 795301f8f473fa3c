package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeLockTimeout         = "ERR_LOCK_TIMEOUT"
)

// Reconciliation error codes
const (
	// ErrCodeInvalidState is used when a change request or invoice is past
	// the state the operation needs
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeUnresolvable is used when a change request names a registrant
	// that cannot be resolved; the request stays pending
	ErrCodeUnresolvable = "ERR_UNRESOLVABLE"
)

// Upstream billing service error codes
const (
	ErrCodeUpstreamUnavailable   = "ERR_UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamConfiguration = "ERR_UPSTREAM_CONFIGURATION"
	ErrCodeUpstreamRejected      = "ERR_UPSTREAM_REJECTED"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeLockTimeout:         http.StatusConflict,

	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeUnresolvable: http.StatusUnprocessableEntity,

	ErrCodeUpstreamUnavailable:   http.StatusServiceUnavailable,
	ErrCodeUpstreamConfiguration: http.StatusBadGateway,
	ErrCodeUpstreamRejected:      http.StatusBadGateway,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodeMapping maps domain error codes to API error codes
var domainCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"UNRESOLVABLE":         ErrCodeUnresolvable,
	"LOCK_TIMEOUT":         ErrCodeLockTimeout,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes that are already in the API format, or unknown, are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
