package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// TaskKind identifies which media-processing pipeline a task belongs to
type TaskKind string

// Possible task kinds
const (
	TaskKindOCR        TaskKind = "ocr"
	TaskKindTranscribe TaskKind = "transcribe"
	TaskKindTranslate  TaskKind = "translate"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID         = errors.New("task ID cannot be empty")
	ErrEmptyTaskOwnerID    = errors.New("task owner ID cannot be empty")
	ErrEmptyInputReference = errors.New("task input reference cannot be empty")
	ErrInvalidTaskStatus   = errors.New("invalid task status")
	ErrInvalidTaskKind     = errors.New("invalid task kind")
)

// Task represents one user-submitted unit of OCR, transcription or
// translation work tracked through its lifecycle. The completion fields
// (Result, UsageAmount, UsageReference, ErrorDetail) are written exactly
// once, by the task service's completion routines, when the task leaves
// the processing state.
type Task struct {
	ID      uuid.UUID  `json:"id"`
	OwnerID uuid.UUID  `json:"owner_id"`
	Kind    TaskKind   `json:"kind"`
	Status  TaskStatus `json:"status"`

	// InputReference is an opaque locator for the source content,
	// typically a URL. Immutable after creation.
	InputReference string `json:"input_reference"`

	// ProviderJobHandle is the correlation token issued by an asynchronous
	// provider. Once set it is the sole key used to accept completion
	// notifications for this task; it is only cleared by a force restart.
	ProviderJobHandle string `json:"provider_job_handle,omitempty"`

	Result         string  `json:"result,omitempty"`
	UsageAmount    float64 `json:"usage_amount,omitempty"`
	UsageReference string  `json:"usage_reference,omitempty"`
	ErrorDetail    string  `json:"error_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask creates a new Task with the given owner, kind and input reference.
// It generates a new UUID for the task ID, sets the status to pending, and
// sets the creation/update timestamps.
// Returns an error if validation fails.
func NewTask(ownerID uuid.UUID, kind TaskKind, inputReference string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Kind:           kind,
		Status:         TaskStatusPending,
		InputReference: inputReference,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.OwnerID == uuid.Nil {
		return ErrEmptyTaskOwnerID
	}

	if t.InputReference == "" {
		return ErrEmptyInputReference
	}

	if !IsValidTaskKind(t.Kind) {
		return ErrInvalidTaskKind
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// IsTerminal reports whether the task has reached a final state.
// Once terminal, completion routines treat further transitions as no-ops.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusError
}

// UpdateStatus updates the task's status and the UpdatedAt timestamp.
// Returns an error if the new status is invalid.
func (t *Task) UpdateStatus(status TaskStatus) error {
	if !isValidTaskStatus(status) {
		return ErrInvalidTaskStatus
	}

	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// IsValidTaskKind checks if the given kind is a recognized TaskKind.
func IsValidTaskKind(kind TaskKind) bool {
	switch kind {
	case TaskKindOCR, TaskKindTranscribe, TaskKindTranslate:
		return true
	default:
		return false
	}
}

// ParseTaskKind converts a string (typically a URL path segment) into a
// TaskKind. Returns ErrInvalidTaskKind for unrecognized values.
func ParseTaskKind(s string) (TaskKind, error) {
	kind := TaskKind(s)
	if !IsValidTaskKind(kind) {
		return "", ErrInvalidTaskKind
	}
	return kind, nil
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusError:
		return true
	default:
		return false
	}
}
