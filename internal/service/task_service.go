package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagate/internal/await"
	"github.com/phrazzld/mediagate/internal/config"
	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/fanout"
	"github.com/phrazzld/mediagate/internal/provider"
	"github.com/phrazzld/mediagate/internal/store"
)

// Common dependency validation errors.
var (
	ErrNilStore     = errors.New("task store cannot be nil")
	ErrNilQuotaGate = errors.New("quota gate cannot be nil")
	ErrNilRegistry  = errors.New("provider registry cannot be nil")
	ErrNilSignals   = errors.New("signal registry cannot be nil")
	ErrNilLogger    = errors.New("logger cannot be nil")
)

// lockStripes is the size of the striped per-task lock table. Completion
// commits for one task always hash to the same stripe, so at most one
// terminal transition wins under concurrent duplicate notifications.
const lockStripes = 64

// QuotaGate is the admission-check and usage-report contract the
// orchestrator honors. It lives on the consumer side to avoid a direct
// dependency on the ledger client's types.
type QuotaGate interface {
	// CheckQuota queries the owner's balance; the error is
	// domain.ErrInsufficientQuota when it does not cover requiredUnits.
	CheckQuota(ctx context.Context, ownerID uuid.UUID, requiredUnits float64) (float64, error)

	// MeterUsage records consumption after success is certain. Called at
	// most once per task; it is not easily reversible.
	MeterUsage(ctx context.Context, ownerID uuid.UUID, units float64, metadata map[string]any) (string, error)

	// CancelUsage is best-effort compensation when a later step fails
	// after usage was recorded.
	CancelUsage(ctx context.Context, usageReference string) error
}

// ProcessOptions controls how StartProcessing dispatches a task.
type ProcessOptions struct {
	// ForceRestart re-dispatches a task that is already processing,
	// discarding any stale provider job handle while keeping the task's
	// identity and audit fields.
	ForceRestart bool

	// Sync blocks the caller until the task completes or the configured
	// wait timeout elapses. On timeout the task is returned still
	// processing; completion can arrive later via webhook or poll.
	Sync bool
}

// SubmitInput is the material for a new task submission.
type SubmitInput struct {
	// Reference is the opaque locator for the source content.
	Reference string

	// Units are optional pre-split sub-job payloads for synchronous
	// multi-unit providers: page references for OCR, text chunks for
	// translation. When empty, the reference itself is the single unit.
	Units []string

	// DurationSeconds is the client-reported media duration, used for
	// transcription cost estimation before the provider reports the
	// authoritative figure.
	DurationSeconds float64
}

// TaskService is the lifecycle state machine shared by all task kinds.
// Only its completion routines write a task's status, result, usage and
// error fields.
type TaskService interface {
	// Submit creates a task in the pending state and immediately starts
	// processing it. Admission failures (quota, unsupported input) are
	// resolved into the task's own error state, not returned as errors.
	Submit(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, input SubmitInput, opts ProcessOptions) (*domain.Task, error)

	// StartProcessing runs admission and dispatch for a task. Safe to
	// call again with ForceRestart to re-dispatch a stuck task.
	StartProcessing(ctx context.Context, task *domain.Task, input SubmitInput, opts ProcessOptions) (*domain.Task, error)

	// CompleteSuccess commits a successful terminal transition: result
	// normalization, usage metering, signal release. No-op when the task
	// is already terminal.
	CompleteSuccess(ctx context.Context, taskID uuid.UUID, rawResult string, unitsConsumed float64) (*domain.Task, error)

	// CompleteError commits a failed terminal transition and releases any
	// synchronous waiter. No-op when the task is already terminal.
	CompleteError(ctx context.Context, taskID uuid.UUID, reason string) (*domain.Task, error)

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)

	// ListTasks retrieves an owner's recent tasks of one kind.
	ListTasks(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, limit int) ([]*domain.Task, error)
}

// taskServiceImpl implements the TaskService interface.
type taskServiceImpl struct {
	taskStore store.TaskStore
	quota     QuotaGate
	providers *provider.Registry
	signals   *await.Registry
	cfg       config.TaskConfig
	baseURL   string
	logger    *slog.Logger
	locks     [lockStripes]sync.Mutex
}

// NewTaskService creates a new TaskService with the given dependencies.
func NewTaskService(
	taskStore store.TaskStore,
	quota QuotaGate,
	providers *provider.Registry,
	signals *await.Registry,
	cfg config.TaskConfig,
	publicBaseURL string,
	logger *slog.Logger,
) (TaskService, error) {
	if taskStore == nil {
		return nil, ErrNilStore
	}
	if quota == nil {
		return nil, ErrNilQuotaGate
	}
	if providers == nil {
		return nil, ErrNilRegistry
	}
	if signals == nil {
		return nil, ErrNilSignals
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	if cfg.FanOutConcurrency <= 0 {
		cfg.FanOutConcurrency = fanout.DefaultConcurrency
	}
	if cfg.SyncWaitTimeout <= 0 {
		cfg.SyncWaitTimeout = 2 * time.Minute
	}

	return &taskServiceImpl{
		taskStore: taskStore,
		quota:     quota,
		providers: providers,
		signals:   signals,
		cfg:       cfg,
		baseURL:   strings.TrimRight(publicBaseURL, "/"),
		logger:    logger.With("component", "task_service"),
	}, nil
}

// lockFor returns the stripe lock guarding completion commits for a task.
func (s *taskServiceImpl) lockFor(taskID uuid.UUID) *sync.Mutex {
	return &s.locks[taskID[0]%lockStripes]
}

// Submit creates a new pending task and immediately runs admission and
// dispatch. The returned error covers persistence problems only; anything
// expressible as task status lands on the task record instead.
func (s *taskServiceImpl) Submit(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, input SubmitInput, opts ProcessOptions) (*domain.Task, error) {
	task, err := domain.NewTask(ownerID, kind, input.Reference)
	if err != nil {
		return nil, NewTaskServiceError("submit", "invalid task", err)
	}

	if err := s.taskStore.Create(ctx, task); err != nil {
		return nil, NewTaskServiceError("submit", "failed to save task", err)
	}

	s.logger.Info("task submitted",
		"task_id", task.ID,
		"owner_id", ownerID,
		"kind", kind,
		"sync", opts.Sync)

	return s.StartProcessing(ctx, task, input, opts)
}

// StartProcessing moves the task into processing, runs the quota
// admission check and dispatches to the provider adapter. A task that is
// already terminal, or already processing without ForceRestart, is
// returned unchanged.
func (s *taskServiceImpl) StartProcessing(ctx context.Context, task *domain.Task, input SubmitInput, opts ProcessOptions) (*domain.Task, error) {
	logger := s.logger.With("task_id", task.ID, "kind", task.Kind)

	if task.IsTerminal() && !opts.ForceRestart {
		return task, nil
	}
	if task.Status == domain.TaskStatusProcessing && !opts.ForceRestart {
		return task, nil
	}

	adapter, err := s.providers.Resolve(task.Kind)
	if err != nil {
		logger.Error("no adapter for task kind", "error", err)
		return s.CompleteError(ctx, task.ID, domain.ErrorDetailUnsupportedInput)
	}

	if opts.ForceRestart {
		// A restart invalidates the old correlation token: a late
		// notification for the abandoned provider job must not complete
		// the restarted task. The billing fields reset with it, so a
		// failure of the new run cannot cancel usage the prior run
		// legitimately delivered and metered.
		task.ProviderJobHandle = ""
		task.Result = ""
		task.ErrorDetail = ""
		task.UsageAmount = 0
		task.UsageReference = ""
		logger.Info("force restarting task")
	}

	if err := task.UpdateStatus(domain.TaskStatusProcessing); err != nil {
		return nil, NewTaskServiceError("start_processing", "invalid status transition", err)
	}
	if err := s.taskStore.Update(ctx, task); err != nil {
		return nil, NewTaskServiceError("start_processing", "failed to update task", err)
	}

	providerInput := provider.Input{
		Reference:       task.InputReference,
		Units:           input.Units,
		DurationSeconds: input.DurationSeconds,
	}

	estimate, err := adapter.EstimateUnits(ctx, providerInput)
	if err != nil {
		logger.Warn("unit estimation rejected input", "error", err)
		return s.CompleteError(ctx, task.ID, domain.ErrorDetailUnsupportedInput)
	}

	if _, err := s.quota.CheckQuota(ctx, task.OwnerID, estimate); err != nil {
		if errors.Is(err, domain.ErrInsufficientQuota) {
			logger.Info("task rejected for insufficient quota",
				"estimated_units", estimate)
			return s.CompleteError(ctx, task.ID, domain.ErrorDetailInsufficientQuota)
		}
		// The ledger itself failed. The gate call never mutates the
		// task, so resolve this like any other dispatch failure and let
		// the caller retry with a force restart.
		logger.Error("quota check failed", "error", err)
		return s.CompleteError(ctx, task.ID, domain.ErrorDetailDispatchFailed)
	}

	if adapter.Asynchronous() {
		return s.dispatchAsync(ctx, task, adapter, providerInput, opts, logger)
	}
	return s.dispatchSync(ctx, task, adapter, providerInput, logger)
}

// dispatchSync fans the task's units out to the provider under the
// configured concurrency ceiling and completes the task immediately.
func (s *taskServiceImpl) dispatchSync(ctx context.Context, task *domain.Task, adapter provider.Adapter, input provider.Input, logger *slog.Logger) (*domain.Task, error) {
	units := input.Units
	if len(units) == 0 {
		units = []string{input.Reference}
	}

	logger.Info("dispatching synchronous fan-out",
		"unit_count", len(units),
		"concurrency_limit", s.cfg.FanOutConcurrency)

	results := fanout.RunBounded(ctx, units, s.cfg.FanOutConcurrency,
		func(ctx context.Context, index int, unit string) (string, error) {
			return adapter.SubmitSync(ctx, unit)
		})

	texts := fanout.Values(results)
	if len(texts) == 0 {
		err := fanout.FirstError(results)
		logger.Error("all fan-out units failed", "error", err)
		return s.CompleteError(ctx, task.ID, domain.ErrorDetailDispatchFailed)
	}

	if err := fanout.FirstError(results); err != nil {
		logger.Warn("some fan-out units failed",
			"failed_count", len(results)-len(texts),
			"first_error", err)
	}

	// Billing covers the units that actually produced output.
	return s.CompleteSuccess(ctx, task.ID, strings.Join(texts, "\n\n"), float64(len(texts)))
}

// dispatchAsync registers the work with the provider, stores the returned
// job handle and, in sync mode, waits for the completion signal.
func (s *taskServiceImpl) dispatchAsync(ctx context.Context, task *domain.Task, adapter provider.Adapter, input provider.Input, opts ProcessOptions, logger *slog.Logger) (*domain.Task, error) {
	webhookURL := fmt.Sprintf("%s/api/%s/%s/webhook", s.baseURL, task.Kind, task.ID)

	var waiter *await.Waiter
	if opts.Sync {
		// Register before dispatch so a webhook racing the submit call
		// cannot fire the signal before anyone listens.
		var err error
		waiter, err = s.signals.Register(task.ID)
		if err != nil {
			return nil, NewTaskServiceError("start_processing", "task already awaited", err)
		}
	}

	handle, err := adapter.SubmitAsync(ctx, input, webhookURL, task.ID.String())
	if err != nil {
		if waiter != nil {
			waiter.Cancel()
		}
		logger.Error("async dispatch failed", "error", err)
		return s.CompleteError(ctx, task.ID, domain.ErrorDetailDispatchFailed)
	}

	task.ProviderJobHandle = handle
	if err := task.UpdateStatus(domain.TaskStatusProcessing); err != nil {
		return nil, NewTaskServiceError("start_processing", "invalid status transition", err)
	}
	if err := s.taskStore.Update(ctx, task); err != nil {
		if waiter != nil {
			waiter.Cancel()
		}
		return nil, NewTaskServiceError("start_processing", "failed to store job handle", err)
	}

	logger.Info("task dispatched to async provider", "job_handle", handle)

	if waiter == nil {
		return task, nil
	}

	outcome := waiter.Wait(ctx, s.cfg.SyncWaitTimeout)
	if outcome == await.TimedOut {
		// Not an error: the completion can still arrive via webhook and
		// the caller may fall back to polling.
		logger.Info("synchronous wait timed out, task remains processing")
		return task, nil
	}

	finished, err := s.taskStore.GetByID(ctx, task.ID)
	if err != nil {
		return nil, NewTaskServiceError("start_processing", "failed to reload completed task", err)
	}
	return finished, nil
}

// CompleteSuccess commits the successful terminal transition for a task.
// Duplicate deliveries are no-ops: the first commit wins and later calls
// return the stored task unchanged.
func (s *taskServiceImpl) CompleteSuccess(ctx context.Context, taskID uuid.UUID, rawResult string, unitsConsumed float64) (*domain.Task, error) {
	lock := s.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewTaskServiceError("complete_success", "failed to load task", err)
	}

	if task.IsTerminal() {
		return task, nil
	}

	usageReference := ""
	usageRef, err := s.quota.MeterUsage(ctx, task.OwnerID, unitsConsumed, map[string]any{
		"task_id":   task.ID.String(),
		"task_kind": string(task.Kind),
	})
	if err != nil {
		// The work is done; a metering failure must not fail the task.
		// It is surfaced as a billing-reconciliation problem instead.
		s.logger.Error("usage metering failed, task completes without usage reference",
			"task_id", task.ID,
			"owner_id", task.OwnerID,
			"units", unitsConsumed,
			"error", err)
	} else {
		usageReference = usageRef
	}

	task.Result = domain.NormalizeText(rawResult)
	task.UsageAmount = unitsConsumed
	task.UsageReference = usageReference
	if err := task.UpdateStatus(domain.TaskStatusCompleted); err != nil {
		return nil, NewTaskServiceError("complete_success", "invalid status transition", err)
	}

	if err := s.taskStore.UpdateIfProcessing(ctx, task); err != nil {
		if errors.Is(err, store.ErrUpdateFailed) {
			// A concurrent notification committed first. Compensate the
			// usage we just metered and defer to the stored outcome.
			if usageReference != "" {
				if cancelErr := s.quota.CancelUsage(ctx, usageReference); cancelErr != nil {
					s.logger.Error("failed to cancel usage after losing completion race",
						"task_id", task.ID,
						"usage_reference", usageReference,
						"error", cancelErr)
				}
			}
			return s.taskStore.GetByID(ctx, taskID)
		}
		return nil, NewTaskServiceError("complete_success", "failed to commit completion", err)
	}

	s.logger.Info("task completed",
		"task_id", task.ID,
		"usage_amount", unitsConsumed,
		"usage_reference", usageReference)

	s.signals.Release(task.ID)
	return task, nil
}

// CompleteError commits the failed terminal transition for a task.
// Duplicate deliveries are no-ops. If usage was already metered for the
// task, cancellation is attempted best-effort.
func (s *taskServiceImpl) CompleteError(ctx context.Context, taskID uuid.UUID, reason string) (*domain.Task, error) {
	lock := s.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewTaskServiceError("complete_error", "failed to load task", err)
	}

	if task.IsTerminal() {
		return task, nil
	}

	if task.UsageReference != "" {
		if cancelErr := s.quota.CancelUsage(ctx, task.UsageReference); cancelErr != nil {
			s.logger.Error("failed to cancel metered usage for failed task",
				"task_id", task.ID,
				"usage_reference", task.UsageReference,
				"error", cancelErr)
		}
	}

	task.ErrorDetail = reason
	if err := task.UpdateStatus(domain.TaskStatusError); err != nil {
		return nil, NewTaskServiceError("complete_error", "invalid status transition", err)
	}

	if err := s.taskStore.UpdateIfProcessing(ctx, task); err != nil {
		if errors.Is(err, store.ErrUpdateFailed) {
			return s.taskStore.GetByID(ctx, taskID)
		}
		return nil, NewTaskServiceError("complete_error", "failed to commit error", err)
	}

	s.logger.Warn("task failed",
		"task_id", task.ID,
		"error_detail", reason)

	s.signals.Release(task.ID)
	return task, nil
}

// GetTask retrieves a task by its ID.
func (s *taskServiceImpl) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewTaskServiceError("get_task", "failed to load task", err)
	}
	return task, nil
}

// ListTasks retrieves an owner's recent tasks of one kind.
func (s *taskServiceImpl) ListTasks(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, limit int) ([]*domain.Task, error) {
	tasks, err := s.taskStore.ListByOwner(ctx, ownerID, kind, limit)
	if err != nil {
		return nil, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}
