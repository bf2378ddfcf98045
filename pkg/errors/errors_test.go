package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"paper not found", ErrPaperNotFound, http.StatusNotFound},
		{"unknown sort mode", ErrUnknownSortMode, http.StatusBadRequest},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"empty corpus", ErrEmptyCorpus, http.StatusConflict},
		{"index not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"internal", ErrInternal, http.StatusInternalServerError},
		{"plain error", errors.New("something broke"), http.StatusInternalServerError},
		{"nil", nil, http.StatusInternalServerError},
		{"wrapped sentinel", fmt.Errorf("search failed: %w", ErrIndexNotReady), http.StatusServiceUnavailable},
		{"doubly wrapped", fmt.Errorf("handler: %w", fmt.Errorf("executor: %w", ErrUnknownSortMode)), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTPStatusCodeAppErrorWins(t *testing.T) {
	// An explicit AppError status takes precedence over the sentinel mapping.
	appErr := New(ErrPaperNotFound, http.StatusGone, "paper withdrawn")
	if got := HTTPStatusCode(appErr); got != http.StatusGone {
		t.Errorf("HTTPStatusCode = %d, want %d", got, http.StatusGone)
	}

	wrapped := fmt.Errorf("lookup: %w", appErr)
	if got := HTTPStatusCode(wrapped); got != http.StatusGone {
		t.Errorf("HTTPStatusCode(wrapped) = %d, want %d", got, http.StatusGone)
	}
}

func TestAppErrorError(t *testing.T) {
	err := New(ErrInvalidInput, http.StatusBadRequest, "limit must be positive")
	want := "invalid input: limit must be positive"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := New(ErrRateLimited, http.StatusTooManyRequests, "slow down")
	if !errors.Is(err, ErrRateLimited) {
		t.Error("errors.Is should see through AppError to the sentinel")
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As failed to extract *AppError")
	}
	if appErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want %d", appErr.StatusCode, http.StatusTooManyRequests)
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "year %d out of range", 1894)
	if err.Message != "year 1894 out of range" {
		t.Errorf("Message = %q", err.Message)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("Newf result should wrap the sentinel")
	}
}
