package domain

import (
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"}
	if got, want := err.Error(), "invalid_request: bad request"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{"invalid request", &APIError{Type: ErrorTypeInvalidRequest}, http.StatusBadRequest},
		{"authentication", &APIError{Type: ErrorTypeAuthentication}, http.StatusUnauthorized},
		{"permission", &APIError{Type: ErrorTypePermission}, http.StatusForbidden},
		{"not found", &APIError{Type: ErrorTypeNotFound}, http.StatusNotFound},
		{"conflict", &APIError{Type: ErrorTypeConflict}, http.StatusConflict},
		{"unsupported media", &APIError{Type: ErrorTypeUnsupportedMedia}, http.StatusUnsupportedMediaType},
		{"too large", &APIError{Type: ErrorTypeTooLarge}, http.StatusRequestEntityTooLarge},
		{"server", &APIError{Type: ErrorTypeServer}, http.StatusInternalServerError},
		{"explicit override", &APIError{Type: ErrorTypeServer, StatusCode: http.StatusBadGateway}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAsAPIError(t *testing.T) {
	wrapped := fmt.Errorf("upload: %w", ErrConflict("busy"))
	apiErr, ok := AsAPIError(wrapped)
	if !ok {
		t.Fatal("AsAPIError() ok = false, want true")
	}
	if apiErr.Type != ErrorTypeConflict {
		t.Errorf("Type = %v, want %v", apiErr.Type, ErrorTypeConflict)
	}

	if _, ok := AsAPIError(fmt.Errorf("plain")); ok {
		t.Error("AsAPIError() ok = true for plain error")
	}
}
