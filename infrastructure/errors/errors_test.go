package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeValidation, "test message", http.StatusBadRequest),
			want: "[VAL_1001] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_5999] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeValidation, "test", http.StatusBadRequest)
	err.WithDetails("field", "amount").WithDetails("reason", "must be positive")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "amount" {
		t.Errorf("Details[field] = %v, want amount", err.Details["field"])
	}
	if err.Details["reason"] != "must be positive" {
		t.Errorf("Details[reason] = %v, want must be positive", err.Details["reason"])
	}
}

func TestValidation(t *testing.T) {
	err := Validation("amount", "must be positive")

	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeValidation)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
	if err.Details["field"] != "amount" {
		t.Errorf("Details[field] = %v, want amount", err.Details["field"])
	}
}

func TestAuthorization(t *testing.T) {
	err := Authorization("tenant-1", "business unit mismatch")

	if err.Code != ErrCodeAuthorization {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeAuthorization)
	}
	if err.HTTPStatus != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusForbidden)
	}
	if err.Details["tenant_id"] != "tenant-1" {
		t.Errorf("Details[tenant_id] = %v, want tenant-1", err.Details["tenant_id"])
	}
}

func TestLimitExceeded(t *testing.T) {
	err := LimitExceeded("daily")

	if err.Code != ErrCodeLimitExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeLimitExceeded)
	}
	if err.Details["dimension"] != "daily" {
		t.Errorf("Details[dimension] = %v, want daily", err.Details["dimension"])
	}
	if RequiresCompensation(err) {
		t.Error("LimitExceeded should not require compensation; no hold has been placed yet")
	}
}

func TestInsufficientFunds(t *testing.T) {
	err := InsufficientFunds("acct-123")

	if err.Code != ErrCodeInsufficientFunds {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInsufficientFunds)
	}
	if err.Details["account_ref"] != "acct-123" {
		t.Errorf("Details[account_ref] = %v, want acct-123", err.Details["account_ref"])
	}
	if !RequiresCompensation(err) {
		t.Error("InsufficientFunds should require compensation")
	}
}

func TestTransient(t *testing.T) {
	underlying := errors.New("connection reset")
	err := Transient("network", underlying)

	if err.Code != ErrCodeTransient {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTransient)
	}
	if !IsRetryable(err) {
		t.Error("Transient should be retryable")
	}
}

func TestServiceUnavailable(t *testing.T) {
	underlying := errors.New("breaker open")
	err := ServiceUnavailable("clearing-channel-a", underlying)

	if err.Code != ErrCodeServiceUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeServiceUnavailable)
	}
	if err.Details["service"] != "clearing-channel-a" {
		t.Errorf("Details[service] = %v, want clearing-channel-a", err.Details["service"])
	}
	if !IsRetryable(err) {
		t.Error("ServiceUnavailable should be retryable")
	}
}

func TestClearingRejected(t *testing.T) {
	err := ClearingRejected("NSF")

	if err.Code != ErrCodeClearingRejected {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeClearingRejected)
	}
	if err.Details["code"] != "NSF" {
		t.Errorf("Details[code] = %v, want NSF", err.Details["code"])
	}
	if !RequiresCompensation(err) {
		t.Error("ClearingRejected should require compensation")
	}
}

func TestCompensationFailed(t *testing.T) {
	underlying := errors.New("release_hold unreachable")
	err := CompensationFailed("release_hold", underlying)

	if err.Code != ErrCodeCompensationFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeCompensationFailed)
	}
	if err.Details["step"] != "release_hold" {
		t.Errorf("Details[step] = %v, want release_hold", err.Details["step"])
	}
}

func TestDeadlineExceeded(t *testing.T) {
	err := DeadlineExceeded("saga-1")

	if err.Code != ErrCodeDeadlineExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeDeadlineExceeded)
	}
	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGatewayTimeout)
	}
	if !RequiresCompensation(err) {
		t.Error("DeadlineExceeded should require compensation")
	}
}

func TestMaxRetriesExceeded(t *testing.T) {
	err := MaxRetriesExceeded("fraud_evaluate", 6)

	if err.Code != ErrCodeMaxRetriesExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMaxRetriesExceeded)
	}
	if err.Details["step"] != "fraud_evaluate" {
		t.Errorf("Details[step] = %v, want fraud_evaluate", err.Details["step"])
	}
	if err.Details["attempts"] != 6 {
		t.Errorf("Details[attempts] = %v, want 6", err.Details["attempts"])
	}
	if !RequiresCompensation(err) {
		t.Error("MaxRetriesExceeded should require compensation")
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("database connection failed")
	err := Internal("internal error", underlying)

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}
	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}
	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
	if !IsRetryable(err) {
		t.Error("Internal should be retryable up to the retry budget")
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "service error",
			err:  New(ErrCodeInternal, "test", http.StatusInternalServerError),
			want: true,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeInternal, "test", http.StatusInternalServerError)
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{name: "service error", err: serviceErr, want: serviceErr},
		{name: "standard error", err: standardErr, want: nil},
		{name: "nil error", err: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "service error",
			err:  New(ErrCodeAuthorization, "test", http.StatusForbidden),
			want: http.StatusForbidden,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: http.StatusInternalServerError,
		},
		{
			name: "nil error",
			err:  nil,
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable_NonServiceError(t *testing.T) {
	if IsRetryable(errors.New("plain error")) {
		t.Error("IsRetryable should be false for a non-ServiceError")
	}
}

func TestRequiresCompensation_NonServiceError(t *testing.T) {
	if RequiresCompensation(errors.New("plain error")) {
		t.Error("RequiresCompensation should be false for a non-ServiceError")
	}
}
