package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyCorpus means an index build was attempted over zero documents.
	// The attempt fails; a previously built index stays servable.
	ErrEmptyCorpus = errors.New("corpus contains no documents")

	// ErrIndexNotReady means no index has been built yet in this process.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrUnknownSortMode means the request named a sort mode the search
	// pipeline does not recognize.
	ErrUnknownSortMode = errors.New("unknown sort mode")

	ErrPaperNotFound = errors.New("paper not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrUnavailable   = errors.New("service unavailable")
	ErrInternal      = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrPaperNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownSortMode), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrEmptyCorpus):
		return http.StatusConflict
	case errors.Is(err, ErrIndexNotReady), errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
