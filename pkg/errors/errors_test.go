package errors

import (
	"errors"
	"testing"
)

func TestNewError(t *testing.T) {
	err := NewError(10001, "test error")

	if err.Code != 10001 {
		t.Errorf("Expected code 10001, got %d", err.Code)
	}
	if err.Message != "test error" {
		t.Errorf("Expected message 'test error', got '%s'", err.Message)
	}
	if err.Err != nil {
		t.Error("Expected Err to be nil")
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      NewError(10001, "test error"),
			expected: "[10001] test error",
		},
		{
			name:     "with wrapped error",
			err:      NewError(10001, "test error").Wrap(errors.New("original error")),
			expected: "[10001] test error: original error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestAppError_WrapAndUnwrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	appErr := ErrStorage.Wrap(originalErr)

	if appErr.Code != CodeStorage {
		t.Errorf("Expected code %d, got %d", CodeStorage, appErr.Code)
	}
	if errors.Unwrap(appErr) != originalErr {
		t.Error("Expected unwrapped error to be the original error")
	}
	if !errors.Is(appErr, originalErr) {
		t.Error("Expected errors.Is to see through the wrap")
	}
}

func TestAppError_WithMessage(t *testing.T) {
	err := ErrInvalidParams.WithMessage("invalid cursor")

	if err.Code != CodeInvalidParams {
		t.Errorf("Expected code %d, got %d", CodeInvalidParams, err.Code)
	}
	if err.Message != "invalid cursor" {
		t.Errorf("Expected message 'invalid cursor', got '%s'", err.Message)
	}
	if ErrInvalidParams.Message == "invalid cursor" {
		t.Error("WithMessage must not mutate the predefined error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   *AppError
		expected bool
	}{
		{"same error", ErrGroupNotFound, ErrGroupNotFound, true},
		{"wrapped same error", ErrGroupNotFound.Wrap(errors.New("wrapped")), ErrGroupNotFound, true},
		{"different error", ErrForbidden, ErrGroupNotFound, false},
		{"non-app error", errors.New("standard error"), ErrGroupNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.target); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestIsUnauthenticated(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"invalid token", ErrInvalidToken, true},
		{"stale session", ErrStaleSession, true},
		{"anonymous", ErrUnauthenticated, true},
		{"forbidden", ErrForbidden, false},
		{"not found", ErrGroupNotFound, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnauthenticated(tt.err); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestGetCodeAndMessage(t *testing.T) {
	if got := GetCode(ErrEmailTaken.Wrap(errors.New("dup"))); got != CodeEmailTaken {
		t.Errorf("Expected %d, got %d", CodeEmailTaken, got)
	}
	if got := GetCode(errors.New("standard error")); got != CodeServerError {
		t.Errorf("Expected %d, got %d", CodeServerError, got)
	}
	if got := GetMessage(ErrUserNotFound); got != "用户不存在" {
		t.Errorf("Expected '用户不存在', got '%s'", got)
	}
	if got := GetMessage(errors.New("standard error")); got != "服务器内部错误" {
		t.Errorf("Expected '服务器内部错误', got '%s'", got)
	}
}
