package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagate/internal/domain"
)

// TaskStore defines the interface for task persistence.
// The task record is the unit of mutual exclusion for completion commits;
// implementations must support optimistic updates via UpdateIfProcessing so
// that exactly one terminal transition wins under concurrent webhooks.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns ErrDuplicate if a task with the same ID already exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetByProviderJobHandle retrieves a task by its provider correlation
	// token. Returns ErrTaskNotFound if no task carries the handle.
	GetByProviderJobHandle(ctx context.Context, handle string) (*domain.Task, error)

	// ListByOwner retrieves the tasks of one owner for a task kind,
	// most recently created first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, limit int) ([]*domain.Task, error)

	// Update saves changes to an existing task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// UpdateIfProcessing saves changes to an existing task only if the
	// stored row is still in a non-terminal state. Returns
	// ErrUpdateFailed when the row was already terminal (a concurrent
	// completion won), and ErrTaskNotFound if the task does not exist.
	UpdateIfProcessing(ctx context.Context, task *domain.Task) error

	// ListProcessingOlderThan retrieves tasks that have been in the
	// processing state for longer than the given duration. Used by the
	// stuck-task monitor; it never mutates tasks.
	ListProcessingOlderThan(ctx context.Context, olderThan time.Duration) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
