// Package errors defines the engine's error taxonomy. Four families matter:
// validation (rejected before side effects), provider (remote model calls),
// persistence (store reads/writes), and authorization (cross-business
// access, always fatal to the request).
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	// Validation errors (400xx)
	ErrInvalidID       ErrorCode = "40001"
	ErrContentTooLarge ErrorCode = "40002"
	ErrEmptyContent    ErrorCode = "40003"
	ErrInvalidStatus   ErrorCode = "40004"

	// Authorization errors (403xx)
	ErrCrossBusiness ErrorCode = "40301"

	// Resource errors (404xx)
	ErrConversationNotFound ErrorCode = "40401"
	ErrSourceNotFound       ErrorCode = "40402"

	// Provider errors (502xx)
	ErrEmbeddingFailed  ErrorCode = "50201"
	ErrCompletionFailed ErrorCode = "50202"

	// Persistence errors (500xx)
	ErrStoreFailed ErrorCode = "50001"
)

// APIError is the wire shape for errors surfaced to the HTTP layer.
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

var (
	ErrInvalidIDError = &APIError{
		Code:       ErrInvalidID,
		Message:    "Invalid identifier: must be a valid UUID",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrContentTooLargeError = &APIError{
		Code:       ErrContentTooLarge,
		Message:    "Content exceeds maximum size",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrEmptyContentError = &APIError{
		Code:       ErrEmptyContent,
		Message:    "Content must not be empty",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrCrossBusinessError = &APIError{
		Code:       ErrCrossBusiness,
		Message:    "Resource belongs to another business",
		HTTPStatus: http.StatusForbidden,
	}

	ErrConversationNotFoundError = &APIError{
		Code:       ErrConversationNotFound,
		Message:    "Conversation not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrSourceNotFoundError = &APIError{
		Code:       ErrSourceNotFound,
		Message:    "Knowledge source not found",
		HTTPStatus: http.StatusNotFound,
	}
)

// Sentinels for errors.Is checks inside the engine. The provider and
// persistence families wrap the underlying cause.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrProvider      = errors.New("provider error")
	ErrPersistence   = errors.New("persistence error")

	// ErrEmbeddingDimension marks a dimensionality mismatch from the
	// embedding provider. Fatal for the unit of work, never padded.
	ErrEmbeddingDimension = errors.New("embedding dimension mismatch")
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Provider(cause error) error {
	return fmt.Errorf("%w: %w", ErrProvider, cause)
}

func Persistence(cause error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, cause)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

// HTTPStatus maps an engine error onto a response status.
func HTTPStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus
	}
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
