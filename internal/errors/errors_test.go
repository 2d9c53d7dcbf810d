package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "session not found: 01ABC",
	}

	expected := "NOT_FOUND: session not found: 01ABC"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("severity must be between 1 and 5")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "severity must be between 1 and 5" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("session", "01ABC")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Message != "session not found: 01ABC" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Details["identifier"] != "01ABC" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "01ABC")
	}
	if err.Details["kind"] != "session" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "session")
	}
}

func TestNewConflict(t *testing.T) {
	err := NewConflict("an active session already exists")

	if err.Code != ErrConflict {
		t.Errorf("Code = %q, want %q", err.Code, ErrConflict)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
}

func TestNewSessionNotActive(t *testing.T) {
	err := NewSessionNotActive("01ABC", "completed")

	if err.Code != ErrConflict {
		t.Errorf("Code = %q, want %q", err.Code, ErrConflict)
	}
	if err.Details["status"] != "completed" {
		t.Errorf("Details[status] = %v, want completed", err.Details["status"])
	}
}

func TestNewRecoveryExpired(t *testing.T) {
	err := NewRecoveryExpired("01ABC", 30, 24)

	if err.Code != ErrRecoveryExpired {
		t.Errorf("Code = %q, want %q", err.Code, ErrRecoveryExpired)
	}
	if err.Status != 410 {
		t.Errorf("Status = %d, want 410", err.Status)
	}
	if err.Details["window_hours"] != 24 {
		t.Errorf("Details[window_hours] = %v, want 24", err.Details["window_hours"])
	}
}

func TestNewInternal(t *testing.T) {
	cause := fmt.Errorf("disk I/O error")
	err := NewInternal(cause)

	if err.Code != ErrInternal {
		t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
	}
	if err.Message != "disk I/O error" {
		t.Errorf("Message = %q, want %q", err.Message, "disk I/O error")
	}
	if !stderrors.Is(err, cause) {
		t.Error("NewInternal should unwrap to its cause")
	}
}

func TestNewInternal_NilError(t *testing.T) {
	err := NewInternal(nil)

	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestNewCancelled(t *testing.T) {
	err := NewCancelled("export")

	if err.Code != ErrCancelled {
		t.Errorf("Code = %q, want %q", err.Code, ErrCancelled)
	}
	if err.Status != 499 {
		t.Errorf("Status = %d, want 499", err.Status)
	}
	if err.Message != "export cancelled" {
		t.Errorf("Message = %q, want %q", err.Message, "export cancelled")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("session", "x"), ErrNotFound, true},
		{"different code", NewNotFound("session", "x"), ErrConflict, false},
		{"wrapped", fmt.Errorf("recover: %w", NewRecoveryExpired("x", 25, 24)), ErrRecoveryExpired, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}
