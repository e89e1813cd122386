package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/provider"
	"github.com/phrazzld/mediagate/internal/store"
)

// fakeTaskStore is an in-memory TaskStore with the same optimistic-update
// semantics as the Postgres implementation.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (f *fakeTaskStore) Create(ctx context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, exists := f.tasks[id]
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskStore) GetByProviderJobHandle(ctx context.Context, handle string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, task := range f.tasks {
		if task.ProviderJobHandle == handle {
			copied := *task
			return &copied, nil
		}
	}
	return nil, store.ErrTaskNotFound
}

func (f *fakeTaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, limit int) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Task
	for _, task := range f.tasks {
		if task.OwnerID == ownerID && task.Kind == kind {
			copied := *task
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeTaskStore) Update(ctx context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tasks[task.ID]; !exists {
		return store.ErrTaskNotFound
	}
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) UpdateIfProcessing(ctx context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, exists := f.tasks[task.ID]
	if !exists {
		return store.ErrTaskNotFound
	}
	if current.IsTerminal() {
		return store.ErrUpdateFailed
	}
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) ListProcessingOlderThan(ctx context.Context, olderThan time.Duration) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []*domain.Task
	for _, task := range f.tasks {
		if task.Status == domain.TaskStatusProcessing && task.UpdatedAt.Before(cutoff) {
			copied := *task
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return f }

// snapshot returns a copy of the stored task for before/after comparisons.
func (f *fakeTaskStore) snapshot(id uuid.UUID) domain.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.tasks[id]
}

// fakeQuotaGate is a configurable QuotaGate recording every call.
type fakeQuotaGate struct {
	mu        sync.Mutex
	available float64
	meterErr  error
	checkErr  error

	meterCalls  []float64
	cancelCalls []string
	usageSeq    int
}

func (f *fakeQuotaGate) CheckQuota(ctx context.Context, ownerID uuid.UUID, requiredUnits float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return 0, f.checkErr
	}
	if f.available < requiredUnits {
		return f.available, fmt.Errorf("%w: have %g units, need %g",
			domain.ErrInsufficientQuota, f.available, requiredUnits)
	}
	return f.available, nil
}

func (f *fakeQuotaGate) MeterUsage(ctx context.Context, ownerID uuid.UUID, units float64, metadata map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meterErr != nil {
		return "", f.meterErr
	}
	f.meterCalls = append(f.meterCalls, units)
	f.usageSeq++
	return fmt.Sprintf("usage-%d", f.usageSeq), nil
}

func (f *fakeQuotaGate) CancelUsage(ctx context.Context, usageReference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, usageReference)
	return nil
}

func (f *fakeQuotaGate) meterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.meterCalls)
}

// fakeAdapter is a configurable provider.Adapter.
type fakeAdapter struct {
	mu sync.Mutex

	kind     domain.TaskKind
	async    bool
	estimate float64

	syncResults map[string]string
	syncErr     error

	jobHandle   string
	submitErr   error
	fetchResult *provider.Result
	fetchErr    error

	submitSyncCalls  []string
	submitAsyncCalls []string
	fetchCalls       []string
	lastWebhookURL   string
}

func (f *fakeAdapter) Kind() domain.TaskKind { return f.kind }
func (f *fakeAdapter) Asynchronous() bool    { return f.async }

func (f *fakeAdapter) EstimateUnits(ctx context.Context, input provider.Input) (float64, error) {
	if f.estimate > 0 {
		return f.estimate, nil
	}
	if len(input.Units) > 0 {
		return float64(len(input.Units)), nil
	}
	return 1, nil
}

func (f *fakeAdapter) SubmitSync(ctx context.Context, unit string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitSyncCalls = append(f.submitSyncCalls, unit)
	if f.syncErr != nil {
		return "", f.syncErr
	}
	if result, ok := f.syncResults[unit]; ok {
		return result, nil
	}
	return "text:" + unit, nil
}

func (f *fakeAdapter) SubmitAsync(ctx context.Context, input provider.Input, webhookURL, correlationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitAsyncCalls = append(f.submitAsyncCalls, input.Reference)
	f.lastWebhookURL = webhookURL
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.jobHandle, nil
}

func (f *fakeAdapter) FetchResult(ctx context.Context, jobHandle string) (*provider.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, jobHandle)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.fetchResult, nil
}

func (f *fakeAdapter) syncCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitSyncCalls)
}

func (f *fakeAdapter) asyncCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitAsyncCalls)
}
