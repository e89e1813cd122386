package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/provider"
	"github.com/phrazzld/mediagate/internal/store"
)

// Notification is an inbound completion notification from an
// asynchronous provider. Only the job handle and status are trusted; the
// authoritative result is always fetched back from the provider.
type Notification struct {
	JobHandle   string
	Status      provider.JobStatus
	ErrorDetail string
}

// WebhookService validates that an inbound completion notification
// matches the task that is actually awaiting it and routes it into the
// task state machine.
type WebhookService interface {
	// HandleNotification processes one provider notification for a task.
	// Returns ErrTaskNotFound or ErrHandleMismatch without mutating the
	// task when the notification cannot be correlated; any failure after
	// correlation moves the task to the error state rather than leaving
	// it stuck in processing.
	HandleNotification(ctx context.Context, kind domain.TaskKind, taskID uuid.UUID, n Notification) (*domain.Task, error)
}

// webhookServiceImpl implements the WebhookService interface.
type webhookServiceImpl struct {
	taskStore store.TaskStore
	providers *provider.Registry
	tasks     TaskService
	logger    *slog.Logger
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	taskStore store.TaskStore,
	providers *provider.Registry,
	tasks TaskService,
	logger *slog.Logger,
) (WebhookService, error) {
	if taskStore == nil {
		return nil, ErrNilStore
	}
	if providers == nil {
		return nil, ErrNilRegistry
	}
	if tasks == nil {
		return nil, errors.New("task service cannot be nil")
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &webhookServiceImpl{
		taskStore: taskStore,
		providers: providers,
		tasks:     tasks,
		logger:    logger.With("component", "webhook_service"),
	}, nil
}

// HandleNotification correlates and applies one provider notification.
func (s *webhookServiceImpl) HandleNotification(ctx context.Context, kind domain.TaskKind, taskID uuid.UUID, n Notification) (*domain.Task, error) {
	logger := s.logger.With("task_id", taskID, "kind", kind, "job_handle", n.JobHandle)

	task, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, NewTaskServiceError("handle_notification", "failed to load task", err)
	}

	// The webhook URL embeds the task kind; a notification routed through
	// the wrong pipeline must not touch the task.
	if task.Kind != kind {
		return nil, ErrTaskNotFound
	}

	// The stored handle is the sole key that accepts notifications for
	// this task. A mismatch, including an empty stored handle after a
	// force restart, rejects without mutation.
	if task.ProviderJobHandle == "" || task.ProviderJobHandle != n.JobHandle {
		logger.Warn("rejecting notification with mismatched job handle",
			"stored_handle", task.ProviderJobHandle)
		return nil, ErrHandleMismatch
	}

	if task.IsTerminal() {
		// Duplicate delivery after completion; the terminal no-op rule
		// applies without any provider round trip.
		return task, nil
	}

	adapter, err := s.providers.Resolve(task.Kind)
	if err != nil {
		return s.failNotification(ctx, task, n, err, logger)
	}

	if n.Status == provider.JobStatusError {
		detail := n.ErrorDetail
		if detail == "" {
			// Providers often omit details from push notifications;
			// fetch the full job record for the diagnostic.
			if result, fetchErr := adapter.FetchResult(ctx, task.ProviderJobHandle); fetchErr == nil && result.ErrorDetail != "" {
				detail = result.ErrorDetail
			}
		}
		if detail == "" {
			detail = "provider reported error"
		}

		completed, err := s.tasks.CompleteError(ctx, task.ID, detail)
		if err != nil {
			return s.failNotification(ctx, task, n, err, logger)
		}
		return completed, nil
	}

	// Never trust a result embedded in the push payload: fetch the
	// authoritative record with the stored handle.
	result, err := adapter.FetchResult(ctx, task.ProviderJobHandle)
	if err != nil {
		return s.failNotification(ctx, task, n, err, logger)
	}

	switch result.Status {
	case provider.JobStatusCompleted:
		completed, err := s.tasks.CompleteSuccess(ctx, task.ID, result.Result, result.BillableUnits)
		if err != nil {
			return s.failNotification(ctx, task, n, err, logger)
		}
		return completed, nil

	case provider.JobStatusError:
		detail := result.ErrorDetail
		if detail == "" {
			detail = "provider reported error"
		}
		completed, err := s.tasks.CompleteError(ctx, task.ID, detail)
		if err != nil {
			return s.failNotification(ctx, task, n, err, logger)
		}
		return completed, nil

	default:
		// The provider says the job is still running, yet it notified
		// us. Treat as a processing failure so the task is not left
		// stuck without any recorded attempt.
		return s.failNotification(ctx, task, n,
			fmt.Errorf("provider job status %q is not terminal", result.Status), logger)
	}
}

// failNotification converts a processing failure during notification
// handling into a terminal error on the task, so a malformed webhook
// never leaves the task stuck in processing with no recorded attempt.
func (s *webhookServiceImpl) failNotification(ctx context.Context, task *domain.Task, n Notification, cause error, logger *slog.Logger) (*domain.Task, error) {
	logger.Error("webhook processing failed",
		"error", cause,
		"notification_status", n.Status,
		"notification_detail", n.ErrorDetail)

	if _, err := s.tasks.CompleteError(ctx, task.ID, domain.ErrorDetailWebhookProcessingFailed); err != nil {
		logger.Error("failed to record webhook processing failure", "error", err)
	}

	return nil, fmt.Errorf("%w: %v", ErrWebhookProcessingFailed, cause)
}
