// Package errors provides the structured error taxonomy used across the
// orchestration core. Every non-validation failure that reaches a saga step
// is classified into one of the kinds below so the orchestrator can decide
// retry, compensation, or synchronous rejection without inspecting strings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code.
type ErrorCode string

const (
	// Validation errors (VAL) — malformed input, surfaced synchronously, no saga created.
	ErrCodeValidation ErrorCode = "VAL_1001"

	// Authorization errors (VAL band, tenant scoping) — no saga created.
	ErrCodeAuthorization ErrorCode = "VAL_2001"

	// Limit errors (LIMIT) — saga terminates REJECTED.
	ErrCodeLimitExceeded ErrorCode = "LIMIT_3001"

	// Funds errors (FUNDS) — saga compensates then REJECTED.
	ErrCodeInsufficientFunds ErrorCode = "FUNDS_4001"

	// Transient/service errors (SVC) — retried.
	ErrCodeTransient          ErrorCode = "SVC_5001"
	ErrCodeServiceUnavailable ErrorCode = "SVC_5002"

	// Fraud errors (FRAUD) — saga terminates REJECTED, no compensation
	// (fraud evaluation is the first step; nothing has been reserved yet).
	ErrCodeFraudRejected ErrorCode = "FRAUD_3501"

	// Clearing errors (CLEARING) — saga compensates then FAILED.
	ErrCodeClearingRejected ErrorCode = "CLEARING_6001"

	// Saga errors (SAGA) — compensation stuck, deadline exceeded, step
	// retry budget exhausted.
	ErrCodeCompensationFailed ErrorCode = "SAGA_7001"
	ErrCodeDeadlineExceeded   ErrorCode = "SAGA_7002"
	ErrCodeMaxRetriesExceeded ErrorCode = "SAGA_7003"

	// Internal (SVC band) — unexpected, treated as transient up to the retry budget.
	ErrCodeInternal ErrorCode = "SVC_5999"
)

// ServiceError represents a structured error with code, message, and HTTP
// status. HTTP status is retained as a stable external-facing classification
// even though this core has no HTTP transport of its own — callers that do
// expose one (e.g. an admin API) map terminal saga outcomes through it.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Validation and authorization — surfaced synchronously, no saga created.

func Validation(field, reason string) *ServiceError {
	return New(ErrCodeValidation, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func Authorization(tenantID, reason string) *ServiceError {
	return New(ErrCodeAuthorization, "not authorized", http.StatusForbidden).
		WithDetails("tenant_id", tenantID).
		WithDetails("reason", reason)
}

// LimitExceeded — saga terminates REJECTED. dimension is one of
// "daily", "monthly", "per_type", "count".
func LimitExceeded(dimension string) *ServiceError {
	return New(ErrCodeLimitExceeded, "limit exceeded", http.StatusUnprocessableEntity).
		WithDetails("dimension", dimension)
}

// InsufficientFunds — saga compensates then REJECTED.
func InsufficientFunds(accountRef string) *ServiceError {
	return New(ErrCodeInsufficientFunds, "insufficient funds", http.StatusUnprocessableEntity).
		WithDetails("account_ref", accountRef)
}

// Transient — retried up to the configured retry budget.
func Transient(cause string, err error) *ServiceError {
	return Wrap(ErrCodeTransient, "transient failure", http.StatusServiceUnavailable, err).
		WithDetails("cause", cause)
}

// ServiceUnavailable — retried with breaker-aware backoff.
func ServiceUnavailable(service string, err error) *ServiceError {
	return Wrap(ErrCodeServiceUnavailable, "service unavailable", http.StatusServiceUnavailable, err).
		WithDetails("service", service)
}

// FraudRejected — saga terminates REJECTED directly, same as LimitExceeded.
func FraudRejected(paymentID string) *ServiceError {
	return New(ErrCodeFraudRejected, "fraud score rejected the payment", http.StatusUnprocessableEntity).
		WithDetails("payment_id", paymentID)
}

// ClearingRejected — saga compensates then FAILED.
func ClearingRejected(code string) *ServiceError {
	return New(ErrCodeClearingRejected, "clearing rejected", http.StatusUnprocessableEntity).
		WithDetails("code", code)
}

// CompensationFailed — blocks the saga in COMPENSATING; a queued message
// drives eventual success and an operator should be alerted.
func CompensationFailed(step string, err error) *ServiceError {
	return Wrap(ErrCodeCompensationFailed, "compensation failed", http.StatusInternalServerError, err).
		WithDetails("step", step)
}

// DeadlineExceeded — saga compensates then TIMED_OUT.
func DeadlineExceeded(sagaID string) *ServiceError {
	return New(ErrCodeDeadlineExceeded, "saga deadline exceeded", http.StatusGatewayTimeout).
		WithDetails("saga_id", sagaID)
}

// Internal — unexpected; treated as Transient up to the retry budget, then
// forces the saga into COMPENSATING.
func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// MaxRetriesExceeded — a step exceeded its configured per-step retry
// budget without ever classifying as non-retryable; saga compensates then
// FAILED.
func MaxRetriesExceeded(step string, attempts int) *ServiceError {
	return New(ErrCodeMaxRetriesExceeded, "step retry budget exhausted", http.StatusInternalServerError).
		WithDetails("step", step).
		WithDetails("attempts", attempts)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the saga driver should retry the step that
// produced this error rather than classify it as terminal for that attempt.
func IsRetryable(err error) bool {
	serviceErr := GetServiceError(err)
	if serviceErr == nil {
		return false
	}
	switch serviceErr.Code {
	case ErrCodeTransient, ErrCodeServiceUnavailable, ErrCodeInternal:
		return true
	default:
		return false
	}
}

// RequiresCompensation reports whether the saga driver should unwind the
// compensation stack in response to this error.
func RequiresCompensation(err error) bool {
	serviceErr := GetServiceError(err)
	if serviceErr == nil {
		return false
	}
	switch serviceErr.Code {
	case ErrCodeInsufficientFunds, ErrCodeClearingRejected, ErrCodeDeadlineExceeded, ErrCodeMaxRetriesExceeded:
		return true
	default:
		return false
	}
}
