package database

import (
	"errors"
	"strings"
	"testing"
)

func TestNotFoundError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *NotFoundError
		want string
	}{
		{
			name: "with id",
			err:  &NotFoundError{Entity: "payment", ID: "pay-123"},
			want: `payment with id "pay-123" not found`,
		},
		{
			name: "without id",
			err:  &NotFoundError{Entity: "routing_rule"},
			want: "routing_rule not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotFoundError_Unwrap(t *testing.T) {
	err := &NotFoundError{Entity: "saga_instance", ID: "saga-1"}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected NotFoundError to unwrap to ErrNotFound")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("limit_counter", "ctr-1")
	if !IsNotFound(err) {
		t.Error("expected IsNotFound to be true")
	}

	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatal("expected error to be a *NotFoundError")
	}
	if nfe.Entity != "limit_counter" || nfe.ID != "ctr-1" {
		t.Errorf("unexpected NotFoundError fields: %+v", nfe)
	}
}

func TestIsAlreadyExists(t *testing.T) {
	wrapped := errors.Join(ErrAlreadyExists, errors.New("unique constraint violated"))
	if !IsAlreadyExists(wrapped) {
		t.Error("expected IsAlreadyExists to be true for a wrapped ErrAlreadyExists")
	}
	if IsAlreadyExists(errors.New("unrelated")) {
		t.Error("expected IsAlreadyExists to be false for an unrelated error")
	}
}

func TestIsConflict(t *testing.T) {
	if !IsConflict(ErrConflict) {
		t.Error("expected IsConflict to be true for ErrConflict")
	}
	if IsConflict(ErrNotFound) {
		t.Error("expected IsConflict to be false for ErrNotFound")
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID("payment_id", "pay-1"); err != nil {
		t.Errorf("expected nil error for valid id, got %v", err)
	}

	if err := ValidateID("payment_id", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank id, got %v", err)
	}

	long := strings.Repeat("a", 129)
	if err := ValidateID("payment_id", long); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for over-long id, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "trims whitespace", in: "  hello  ", want: "hello"},
		{name: "strips control chars", in: "hel\x00lo", want: "hello"},
		{name: "keeps tabs and newlines", in: "line1\tline2\n", want: "line1\tline2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeString(tt.in); got != tt.want {
				t.Errorf("SanitizeString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
