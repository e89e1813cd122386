package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/mediagate/internal/api"
	"github.com/phrazzld/mediagate/internal/api/shared"
	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/platform/logger"
	"github.com/phrazzld/mediagate/internal/service"
)

// fakeTaskService records calls and plays back configured tasks.
type fakeTaskService struct {
	submitTask  *domain.Task
	submitErr   error
	submitInput service.SubmitInput
	submitOpts  service.ProcessOptions

	getTask *domain.Task
	getErr  error

	listTasks []*domain.Task
	listErr   error

	restartTask *domain.Task
	restartErr  error
	restartOpts service.ProcessOptions
}

func (f *fakeTaskService) Submit(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, input service.SubmitInput, opts service.ProcessOptions) (*domain.Task, error) {
	f.submitInput = input
	f.submitOpts = opts
	return f.submitTask, f.submitErr
}

func (f *fakeTaskService) StartProcessing(ctx context.Context, task *domain.Task, input service.SubmitInput, opts service.ProcessOptions) (*domain.Task, error) {
	f.restartOpts = opts
	return f.restartTask, f.restartErr
}

func (f *fakeTaskService) CompleteSuccess(ctx context.Context, taskID uuid.UUID, rawResult string, unitsConsumed float64) (*domain.Task, error) {
	return nil, nil
}

func (f *fakeTaskService) CompleteError(ctx context.Context, taskID uuid.UUID, reason string) (*domain.Task, error) {
	return nil, nil
}

func (f *fakeTaskService) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	return f.getTask, f.getErr
}

func (f *fakeTaskService) ListTasks(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, limit int) ([]*domain.Task, error) {
	return f.listTasks, f.listErr
}

// fakeWebhookService records the notification it was handed.
type fakeWebhookService struct {
	task         *domain.Task
	err          error
	notification service.Notification
	kind         domain.TaskKind
	taskID       uuid.UUID
}

func (f *fakeWebhookService) HandleNotification(ctx context.Context, kind domain.TaskKind, taskID uuid.UUID, n service.Notification) (*domain.Task, error) {
	f.kind = kind
	f.taskID = taskID
	f.notification = n
	return f.task, f.err
}

// newTestRouter wires the handler into the task routes used in
// production, with an owner injected instead of full JWT middleware.
func newTestRouter(handler *api.TaskHandler, ownerID uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), shared.OwnerIDContextKey, ownerID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api/{kind}", func(r chi.Router) {
		r.Post("/", handler.SubmitTask)
		r.Get("/", handler.ListTasks)
		r.Get("/{taskID}", handler.GetTask)
		r.Get("/{taskID}/result", handler.GetTaskResult)
		r.Post("/{taskID}/restart", handler.RestartTask)
		r.Post("/{taskID}/webhook", handler.HandleWebhook)
	})
	return r
}

func newTask(ownerID uuid.UUID, kind domain.TaskKind, status domain.TaskStatus) *domain.Task {
	now := time.Now().UTC()
	return &domain.Task{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Kind:           kind,
		Status:         status,
		InputReference: "ref",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestSubmitTask(t *testing.T) {
	ownerID := uuid.New()
	task := newTask(ownerID, domain.TaskKindTranscribe, domain.TaskStatusProcessing)
	svc := &fakeTaskService{submitTask: task}
	handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, ownerID)

	body, _ := json.Marshal(api.SubmitTaskRequest{
		Reference:       "https://cdn.example.com/audio.mp3",
		DurationSeconds: 120,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe?blocking=true", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, svc.submitOpts.Sync)
	assert.Equal(t, "https://cdn.example.com/audio.mp3", svc.submitInput.Reference)

	var resp api.TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, task.ID.String(), resp.ID)
	assert.Equal(t, "processing", resp.Status)
}

func TestSubmitTask_CompletedTaskReturns200(t *testing.T) {
	ownerID := uuid.New()
	task := newTask(ownerID, domain.TaskKindOCR, domain.TaskStatusCompleted)
	task.Result = "extracted text"
	svc := &fakeTaskService{submitTask: task}
	handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, ownerID)

	body, _ := json.Marshal(api.SubmitTaskRequest{
		Reference: "doc.pdf",
		Units:     []string{"cGFnZTE="},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/ocr", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitTask_UnsupportedKind(t *testing.T) {
	handler := api.NewTaskHandler(&fakeTaskService{}, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, uuid.New())

	body, _ := json.Marshal(api.SubmitTaskRequest{Reference: "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/summarize", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTask_MissingReference(t *testing.T) {
	handler := api.NewTaskHandler(&fakeTaskService{}, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/api/ocr", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTask_OwnershipEnforced(t *testing.T) {
	ownerID := uuid.New()
	stranger := uuid.New()
	task := newTask(stranger, domain.TaskKindOCR, domain.TaskStatusCompleted)
	svc := &fakeTaskService{getTask: task}
	handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, ownerID)

	req := httptest.NewRequest(http.MethodGet, "/api/ocr/"+task.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Another owner's task is indistinguishable from a missing one.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTask_KindMismatchIsNotFound(t *testing.T) {
	ownerID := uuid.New()
	task := newTask(ownerID, domain.TaskKindTranscribe, domain.TaskStatusProcessing)
	svc := &fakeTaskService{getTask: task}
	handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, ownerID)

	req := httptest.NewRequest(http.MethodGet, "/api/ocr/"+task.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTask_NotFound(t *testing.T) {
	svc := &fakeTaskService{getErr: service.ErrTaskNotFound}
	handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/api/ocr/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTaskResult(t *testing.T) {
	ownerID := uuid.New()

	t.Run("completed task streams plain text", func(t *testing.T) {
		task := newTask(ownerID, domain.TaskKindOCR, domain.TaskStatusCompleted)
		task.Result = "page one\n\npage two"
		svc := &fakeTaskService{getTask: task}
		handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
		router := newTestRouter(handler, ownerID)

		req := httptest.NewRequest(http.MethodGet, "/api/ocr/"+task.ID.String()+"/result", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		assert.Equal(t, "page one\n\npage two", rec.Body.String())
	})

	t.Run("processing task answers 202", func(t *testing.T) {
		task := newTask(ownerID, domain.TaskKindOCR, domain.TaskStatusProcessing)
		svc := &fakeTaskService{getTask: task}
		handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
		router := newTestRouter(handler, ownerID)

		req := httptest.NewRequest(http.MethodGet, "/api/ocr/"+task.ID.String()+"/result", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("failed task answers 409", func(t *testing.T) {
		task := newTask(ownerID, domain.TaskKindOCR, domain.TaskStatusError)
		task.ErrorDetail = "insufficient_quota"
		svc := &fakeTaskService{getTask: task}
		handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
		router := newTestRouter(handler, ownerID)

		req := httptest.NewRequest(http.MethodGet, "/api/ocr/"+task.ID.String()+"/result", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "insufficient_quota")
	})
}

func TestListTasks(t *testing.T) {
	ownerID := uuid.New()
	svc := &fakeTaskService{listTasks: []*domain.Task{
		newTask(ownerID, domain.TaskKindOCR, domain.TaskStatusCompleted),
		newTask(ownerID, domain.TaskKindOCR, domain.TaskStatusError),
	}}
	handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, ownerID)

	req := httptest.NewRequest(http.MethodGet, "/api/ocr", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp api.TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tasks, 2)
}

func TestRestartTask(t *testing.T) {
	ownerID := uuid.New()
	task := newTask(ownerID, domain.TaskKindTranscribe, domain.TaskStatusProcessing)
	restarted := newTask(ownerID, domain.TaskKindTranscribe, domain.TaskStatusProcessing)
	svc := &fakeTaskService{getTask: task, restartTask: restarted}
	handler := api.NewTaskHandler(svc, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, ownerID)

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe/"+task.ID.String()+"/restart", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, svc.restartOpts.ForceRestart)
}

func TestHandleWebhook(t *testing.T) {
	ownerID := uuid.New()
	task := newTask(ownerID, domain.TaskKindTranscribe, domain.TaskStatusCompleted)
	webhooks := &fakeWebhookService{task: task}
	handler := api.NewTaskHandler(&fakeTaskService{}, webhooks, logger.Discard())
	router := newTestRouter(handler, uuid.Nil)

	body, _ := json.Marshal(api.WebhookRequest{ID: "job-9", Status: "completed"})
	req := httptest.NewRequest(http.MethodPost,
		"/api/transcribe/"+task.ID.String()+"/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-9", webhooks.notification.JobHandle)
	assert.Equal(t, domain.TaskKindTranscribe, webhooks.kind)
	assert.Equal(t, task.ID, webhooks.taskID)
}

func TestHandleWebhook_ErrorStatusQueryShortCircuits(t *testing.T) {
	task := newTask(uuid.New(), domain.TaskKindTranscribe, domain.TaskStatusError)
	webhooks := &fakeWebhookService{task: task}
	handler := api.NewTaskHandler(&fakeTaskService{}, webhooks, logger.Discard())
	router := newTestRouter(handler, uuid.Nil)

	body, _ := json.Marshal(api.WebhookRequest{ID: "job-9", ErrorMessage: "decode failure"})
	req := httptest.NewRequest(http.MethodPost,
		"/api/transcribe/"+task.ID.String()+"/webhook?status=error", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", string(webhooks.notification.Status))
	assert.Equal(t, "decode failure", webhooks.notification.ErrorDetail)
}

func TestHandleWebhook_HandleMismatch(t *testing.T) {
	webhooks := &fakeWebhookService{err: service.ErrHandleMismatch}
	handler := api.NewTaskHandler(&fakeTaskService{}, webhooks, logger.Discard())
	router := newTestRouter(handler, uuid.Nil)

	body, _ := json.Marshal(api.WebhookRequest{ID: "stale-job"})
	req := httptest.NewRequest(http.MethodPost,
		"/api/transcribe/"+uuid.NewString()+"/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleWebhook_UnknownTask(t *testing.T) {
	webhooks := &fakeWebhookService{err: service.ErrTaskNotFound}
	handler := api.NewTaskHandler(&fakeTaskService{}, webhooks, logger.Discard())
	router := newTestRouter(handler, uuid.Nil)

	body, _ := json.Marshal(api.WebhookRequest{ID: "job-9"})
	req := httptest.NewRequest(http.MethodPost,
		"/api/transcribe/"+uuid.NewString()+"/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleWebhook_MissingJobID(t *testing.T) {
	handler := api.NewTaskHandler(&fakeTaskService{}, &fakeWebhookService{}, logger.Discard())
	router := newTestRouter(handler, uuid.Nil)

	req := httptest.NewRequest(http.MethodPost,
		"/api/transcribe/"+uuid.NewString()+"/webhook", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
