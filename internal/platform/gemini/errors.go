package gemini

import "errors"

var (
	// ErrInvalidConfig indicates the adapter configuration is unusable.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrEmptyUnit indicates a fan-out unit with no content was submitted.
	ErrEmptyUnit = errors.New("unit content is empty")

	// ErrInvalidImage indicates a page unit that could not be decoded
	// into an image.
	ErrInvalidImage = errors.New("page unit is not a valid image")

	// ErrContentBlocked indicates the model refused the content on safety
	// grounds. Permanent; never retried.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrInvalidResponse indicates the model returned an unusable
	// response. Permanent; never retried.
	ErrInvalidResponse = errors.New("invalid response from gemini")

	// ErrTransientFailure indicates a retriable API failure that
	// persisted through all retry attempts.
	ErrTransientFailure = errors.New("transient gemini API failure")
)
