package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestClassifiedErrors_Is(t *testing.T) {
	tests := []struct {
		err   error
		class error
	}{
		{Validation("min %d > max %d", 5, 1), ErrValidation},
		{NotFound("form %s", "x"), ErrNotFound},
		{Conflict("slot taken"), ErrConflict},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.class) {
			t.Errorf("expected %q to match %v", tt.err, tt.class)
		}
		wrapped := fmt.Errorf("create rule: %w", tt.err)
		if !errors.Is(wrapped, tt.class) {
			t.Errorf("expected wrapped %q to match %v", wrapped, tt.class)
		}
	}
}

func TestValidation_Message(t *testing.T) {
	err := Validation("min %d > max %d", 5, 1)
	if err.Error() != "min 5 > max 1" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestToHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"not found", fmt.Errorf("get: %w", NotFound("missing")), http.StatusNotFound},
		{"conflict", Conflict("taken"), http.StatusConflict},
		{"sentinel", ErrNotFound, http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"echo passthrough", echo.NewHTTPError(http.StatusForbidden, "no"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := ToHTTP(tt.err)
			if he.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, he.Code)
			}
		})
	}
}

func TestToHTTP_HidesInternalErrors(t *testing.T) {
	he := ToHTTP(errors.New("pq: password authentication failed"))
	if he.Message != "internal server error" {
		t.Errorf("expected generic message, got %v", he.Message)
	}
}

func TestToHTTP_Nil(t *testing.T) {
	if ToHTTP(nil) != nil {
		t.Error("expected nil for nil error")
	}
}
