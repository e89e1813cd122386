package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrUnsupportedInput is returned when the submitted input cannot be
	// handled by any provider (e.g. an unrecognized file type). Admission
	// fails before any provider call is made.
	ErrUnsupportedInput = errors.New("unsupported input")

	// ErrInsufficientQuota is returned when the owner's remote balance
	// does not cover the estimated cost of the task.
	ErrInsufficientQuota = errors.New("insufficient quota")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)

// Error detail strings recorded on tasks that end in the error state.
// Admission and webhook failures are reported through the task record,
// not as transport errors to the submitting caller.
const (
	ErrorDetailInsufficientQuota       = "insufficient_quota"
	ErrorDetailUnsupportedInput        = "unsupported_input"
	ErrorDetailDispatchFailed          = "provider_dispatch_failed"
	ErrorDetailWebhookProcessingFailed = "webhook_processing_failed"
)
