package errors

import (
	"fmt"
)

// Category is the caller-facing class of a failure.
type Category string

const (
	// CategoryValidation indicates malformed input rejected before any I/O
	CategoryValidation Category = "ValidationError"

	// CategoryDevice indicates a failure reported by or about the hardware device
	CategoryDevice Category = "DeviceError"

	// CategoryBroadcast indicates the node rejected a transaction outright
	CategoryBroadcast Category = "BroadcastError"

	// CategorySubmissionTimeout indicates no acknowledgment arrived in time
	CategorySubmissionTimeout Category = "SubmissionTimeout"

	// CategoryExpired indicates the blockhash validity window elapsed
	CategoryExpired Category = "Expired"

	// CategoryFailed indicates an on-chain execution error
	CategoryFailed Category = "Failed"

	// CategoryEstimation indicates a fee estimate could not be produced
	CategoryEstimation Category = "EstimationUnavailable"

	// CategoryRPC indicates a transient RPC or network failure
	CategoryRPC Category = "RPC"

	// CategoryConfig indicates configuration errors
	CategoryConfig Category = "Config"

	// CategoryDatabase indicates database operation errors
	CategoryDatabase Category = "Database"

	// CategoryInternal indicates internal errors
	CategoryInternal Category = "Internal"
)

// Well-known codes.
const (
	CodeInvalidParameter   = "Method_InvalidParameter"
	CodeAddressNotMatch    = "Method_AddressNotMatch"
	CodeCallInProgress     = "Device_CallInProgress"
	CodeActionCancelled    = "Failure_ActionCancelled"
	CodeDeviceFailure      = "Failure_DataError"
	CodeSignedTooLate      = "signed_too_late"
	CodeRejected           = "rejected"
	CodeTimeout            = "timeout"
	CodeBlockhashExpired   = "blockhash_expired"
	CodeTransactionFailed  = "transaction_failed"
	CodeEstimationFailed   = "estimation_failed"
	CodeUnknownRequest     = "worker_unknown_request"
	CodeUnexpectedResponse = "Device_UnexpectedResponse"
	CodeInternal           = "internal"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// TypedError is the error object returned across every public boundary.
type TypedError struct {
	Category Category               `json:"category"`
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Severity Severity               `json:"-"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"-"`
}

// New creates a TypedError
func New(category Category, code, message string, cause error) *TypedError {
	return &TypedError{
		Category: category,
		Code:     code,
		Message:  message,
		Severity: determineSeverity(category),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *TypedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *TypedError) Unwrap() error {
	return e.Cause
}

// Is matches another TypedError with the same category and code.
func (e *TypedError) Is(target error) bool {
	t, ok := target.(*TypedError)
	if !ok {
		return false
	}
	return e.Category == t.Category && (t.Code == "" || e.Code == t.Code)
}

// WithContext adds context to the error
func (e *TypedError) WithContext(key string, value interface{}) *TypedError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable returns true if the error is retryable
func (e *TypedError) IsRetryable() bool {
	switch e.Category {
	case CategoryRPC, CategorySubmissionTimeout:
		return true
	case CategoryDatabase:
		return e.Severity != SeverityCritical
	default:
		return false
	}
}

func determineSeverity(category Category) Severity {
	switch category {
	case CategoryInternal:
		return SeverityCritical
	case CategoryDatabase, CategoryFailed:
		return SeverityHigh
	case CategoryBroadcast, CategoryExpired, CategoryDevice, CategoryRPC, CategorySubmissionTimeout:
		return SeverityMedium
	case CategoryValidation, CategoryConfig, CategoryEstimation:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *TypedError {
	return New(CategoryValidation, CodeInvalidParameter, message, nil)
}

// NewDeviceError creates a device error
func NewDeviceError(code, message string, cause error) *TypedError {
	return New(CategoryDevice, code, message, cause)
}

// NewAddressNotMatchError is raised when the silent and expected addresses differ.
func NewAddressNotMatchError(expected, actual string) *TypedError {
	return New(CategoryDevice, CodeAddressNotMatch, "Addresses do not match", nil).
		WithContext("expected", expected).
		WithContext("actual", actual)
}

// NewBroadcastError creates a broadcast error
func NewBroadcastError(code, message string, cause error) *TypedError {
	return New(CategoryBroadcast, code, message, cause)
}

// NewSubmissionTimeout creates a submission timeout error
func NewSubmissionTimeout(message string, cause error) *TypedError {
	return New(CategorySubmissionTimeout, CodeTimeout, message, cause)
}

// NewExpiredError creates a blockhash expiry error
func NewExpiredError(signature string, lastValidBlockHeight uint64) *TypedError {
	return New(CategoryExpired, CodeBlockhashExpired,
		fmt.Sprintf("transaction %s expired: block height exceeded %d", signature, lastValidBlockHeight), nil).
		WithContext("signature", signature)
}

// NewFailedError creates an on-chain failure error
func NewFailedError(signature, reason string) *TypedError {
	return New(CategoryFailed, CodeTransactionFailed, reason, nil).
		WithContext("signature", signature)
}

// NewEstimationError creates an estimation error
func NewEstimationError(message string, cause error) *TypedError {
	return New(CategoryEstimation, CodeEstimationFailed, message, cause)
}

// NewRPCError creates an RPC error
func NewRPCError(message string, cause error) *TypedError {
	return New(CategoryRPC, "rpc", message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *TypedError {
	return New(CategoryConfig, "config", message, nil)
}

// NewDatabaseError creates a database error
func NewDatabaseError(message string, cause error) *TypedError {
	return New(CategoryDatabase, "database", message, cause)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *TypedError {
	return New(CategoryInternal, CodeInternal, message, cause)
}
