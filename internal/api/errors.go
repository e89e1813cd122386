package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/mediagate/internal/auth"
	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/provider"
	"github.com/phrazzld/mediagate/internal/service"
	"github.com/phrazzld/mediagate/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes. This prevents leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// A notification that does not correlate with the stored job
	case errors.Is(err, service.ErrHandleMismatch):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrUnsupportedInput),
		errors.Is(err, provider.ErrAdapterNotFound):
		return http.StatusBadRequest

	// Quota exhaustion surfaced directly (submission paths resolve this
	// into the task record instead, but the mapping stays defined)
	case errors.Is(err, domain.ErrInsufficientQuota):
		return http.StatusPaymentRequired

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the
// error. Internal details never pass through here.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"

	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, service.ErrHandleMismatch):
		return "Notification does not match the task's active job"

	case errors.Is(err, provider.ErrAdapterNotFound),
		errors.Is(err, domain.ErrUnsupportedInput):
		return "Unsupported task kind or input"

	case errors.Is(err, domain.ErrInsufficientQuota):
		return "Insufficient quota"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.Is(err, service.ErrWebhookProcessingFailed):
		return "Failed to process provider notification"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError converts go-playground validator output into a
// user-friendly message without echoing submitted values.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "Field validation") {
		// Example: "Key: 'SubmitTaskRequest.Reference' Error:Field validation for 'Reference' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "url":
		return "invalid URL"
	default:
		return "validation failed"
	}
}
