package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrRejected            = errors.New("content rejected by moderation")
	ErrInsufficientBalance = errors.New("not enough reputation points")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrPersistence         = errors.New("persistence failure")
)

// RejectionError возвращается, когда модерация пометила контент.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejected, e.Reason)
}

// Unwrap позволяет сравнивать через errors.Is(err, ErrRejected).
func (e *RejectionError) Unwrap() error { return ErrRejected }

// InvalidInput оборачивает ErrInvalidInput сообщением для клиента.
func InvalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
