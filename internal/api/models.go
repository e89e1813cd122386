package api

import (
	"time"

	"github.com/phrazzld/mediagate/internal/domain"
)

// SubmitTaskRequest defines the payload for task submission endpoints.
type SubmitTaskRequest struct {
	// Reference locates the source content: a storage URL for audio, a
	// document identifier for OCR and translation.
	Reference string `json:"reference" validate:"required,min=1"`

	// Units are the pre-split sub-job payloads for synchronous kinds:
	// base64 page images for OCR, text chunks for translation.
	Units []string `json:"units,omitempty"`

	// DurationSeconds is the client-reported media duration for
	// transcription cost estimation.
	DurationSeconds float64 `json:"duration_seconds,omitempty" validate:"gte=0"`
}

// TaskResponse is the client-facing rendering of a task.
type TaskResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Result      string    `json:"result,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	UsageAmount float64   `json:"usage_amount,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskListResponse wraps a page of tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// WebhookRequest is the notification payload providers post back.
type WebhookRequest struct {
	// ID is the provider's job identifier, matched against the stored
	// correlation handle.
	ID string `json:"id" validate:"required,min=1"`

	// Status is the provider's view of the job at notification time.
	Status string `json:"status,omitempty"`

	// ErrorMessage carries the provider's failure diagnostic, if any.
	ErrorMessage string `json:"error_message,omitempty"`
}

// taskToResponse converts a task to its client-facing form.
func taskToResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID.String(),
		Kind:        string(task.Kind),
		Status:      string(task.Status),
		Result:      task.Result,
		ErrorDetail: task.ErrorDetail,
		UsageAmount: task.UsageAmount,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}
