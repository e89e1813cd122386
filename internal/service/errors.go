package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/mediagate/internal/store"
)

// Common sentinel errors for the task and webhook services.
var (
	// ErrTaskNotFound indicates that the task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrHandleMismatch indicates that an inbound notification carried a
	// job handle that does not match the task's stored provider handle.
	// The task is never mutated in this case.
	ErrHandleMismatch = errors.New("notification job handle does not match task")

	// ErrWebhookProcessingFailed indicates that a notification matched
	// its task but could not be processed; the task has been moved to the
	// error state with a generic detail for manual inspection.
	ErrWebhookProcessingFailed = errors.New("webhook processing failed")
)

// TaskServiceError wraps errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "complete_success")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// It returns known sentinel errors directly without wrapping.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTaskNotFound) {
		return ErrTaskNotFound
	}

	// Store-level not-found maps to the service-level sentinel.
	if errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}

	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
