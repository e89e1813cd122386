package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/mediagate/internal/api/shared"
	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/platform/logger"
	"github.com/phrazzld/mediagate/internal/provider"
	"github.com/phrazzld/mediagate/internal/service"
)

// defaultListLimit caps how many tasks a list request returns.
const defaultListLimit = 50

// TaskHandler handles task submission, retrieval and provider webhooks
// for every task kind.
type TaskHandler struct {
	taskService    service.TaskService
	webhookService service.WebhookService
	logger         *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(
	taskService service.TaskService,
	webhookService service.WebhookService,
	log *slog.Logger,
) *TaskHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		taskService:    taskService,
		webhookService: webhookService,
		logger:         log.With(slog.String("component", "task_handler")),
	}
}

// SubmitTask handles POST /api/{kind} requests.
// With ?blocking=true the call waits for asynchronous completion up to
// the configured timeout, returning the task still processing on expiry.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	ownerID, ok := shared.GetOwnerID(r.Context())
	if !ok {
		log.Warn("owner ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	kind, ok := h.parseKind(w, r)
	if !ok {
		return
	}

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	opts := service.ProcessOptions{
		Sync: r.URL.Query().Get("blocking") == "true",
	}
	input := service.SubmitInput{
		Reference:       req.Reference,
		Units:           req.Units,
		DurationSeconds: req.DurationSeconds,
	}

	task, err := h.taskService.Submit(r.Context(), ownerID, kind, input, opts)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("task submitted via API",
		slog.String("task_id", task.ID.String()),
		slog.String("kind", string(kind)),
		slog.String("status", string(task.Status)))

	status := http.StatusAccepted
	if task.IsTerminal() {
		status = http.StatusOK
	}
	shared.RespondWithJSON(w, r, status, taskToResponse(task))
}

// GetTask handles GET /api/{kind}/{taskID} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadOwnedTask(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// GetTaskResult handles GET /api/{kind}/{taskID}/result requests.
// Completed tasks stream their result as plain text; tasks still in
// flight answer 202, failed tasks 409 with the error detail.
func (h *TaskHandler) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadOwnedTask(w, r)
	if !ok {
		return
	}

	switch task.Status {
	case domain.TaskStatusCompleted:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", task.ID.String()+".txt"))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(task.Result)); err != nil {
			logger.FromContext(r.Context()).Error("failed to stream task result",
				"task_id", task.ID,
				"error", err)
		}

	case domain.TaskStatusError:
		shared.RespondWithError(w, r, http.StatusConflict, "Task failed: "+task.ErrorDetail)

	default:
		shared.RespondWithError(w, r, http.StatusAccepted, "Task is still processing")
	}
}

// ListTasks handles GET /api/{kind} requests.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	ownerID, ok := shared.GetOwnerID(r.Context())
	if !ok {
		log.Warn("owner ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	kind, ok := h.parseKind(w, r)
	if !ok {
		return
	}

	tasks, err := h.taskService.ListTasks(r.Context(), ownerID, kind, defaultListLimit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	response := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, task := range tasks {
		response.Tasks = append(response.Tasks, taskToResponse(task))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// RestartTask handles POST /api/{kind}/{taskID}/restart requests.
// It force-redispatches a task stuck in processing, discarding the stale
// provider job handle so late notifications for the old job cannot land.
func (h *TaskHandler) RestartTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	task, ok := h.loadOwnedTask(w, r)
	if !ok {
		return
	}

	// The body is optional: restarts of async tasks need no new payload,
	// sync kinds may resupply their units.
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	opts := service.ProcessOptions{
		ForceRestart: true,
		Sync:         r.URL.Query().Get("blocking") == "true",
	}
	input := service.SubmitInput{
		Reference:       task.InputReference,
		Units:           req.Units,
		DurationSeconds: req.DurationSeconds,
	}

	restarted, err := h.taskService.StartProcessing(r.Context(), task, input, opts)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("task restarted via API",
		slog.String("task_id", restarted.ID.String()),
		slog.String("status", string(restarted.Status)))

	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(restarted))
}

// HandleWebhook handles POST /api/{kind}/{taskID}/webhook requests from
// providers. The route is unauthenticated; correlation is enforced by
// matching the pushed job identifier against the stored handle. A
// ?status=error query short-circuits straight to the error transition
// for providers that signal failure in the callback URL.
func (h *TaskHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	kind, ok := h.parseKind(w, r)
	if !ok {
		return
	}
	taskID, ok := h.parseTaskID(w, r)
	if !ok {
		return
	}

	var req WebhookRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	notification := service.Notification{
		JobHandle:   req.ID,
		Status:      provider.JobStatus(req.Status),
		ErrorDetail: req.ErrorMessage,
	}
	if r.URL.Query().Get("status") == "error" {
		notification.Status = provider.JobStatusError
	}

	task, err := h.webhookService.HandleNotification(r.Context(), kind, taskID, notification)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("webhook notification processed",
		slog.String("task_id", taskID.String()),
		slog.String("job_handle", req.ID),
		slog.String("final_status", string(task.Status)))

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// parseKind extracts and validates the task kind path parameter,
// responding with 400 on failure.
func (h *TaskHandler) parseKind(w http.ResponseWriter, r *http.Request) (domain.TaskKind, bool) {
	kind, err := domain.ParseTaskKind(chi.URLParam(r, "kind"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unsupported task kind")
		return "", false
	}
	return kind, true
}

// parseTaskID extracts and validates the task ID path parameter,
// responding with 400 on failure.
func (h *TaskHandler) parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return taskID, true
}

// loadOwnedTask resolves the request's kind, task ID and owner, loads
// the task and enforces ownership. Tasks of other owners or other kinds
// answer 404 so existence is not leaked.
func (h *TaskHandler) loadOwnedTask(w http.ResponseWriter, r *http.Request) (*domain.Task, bool) {
	log := logger.FromContext(r.Context())

	ownerID, ok := shared.GetOwnerID(r.Context())
	if !ok {
		log.Warn("owner ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}

	kind, ok := h.parseKind(w, r)
	if !ok {
		return nil, false
	}
	taskID, ok := h.parseTaskID(w, r)
	if !ok {
		return nil, false
	}

	task, err := h.taskService.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		} else {
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		}
		return nil, false
	}

	if task.OwnerID != ownerID || task.Kind != kind {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return nil, false
	}

	return task, true
}
