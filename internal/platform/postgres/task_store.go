package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/platform/logger"
	"github.com/phrazzld/mediagate/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// taskColumns is the canonical column list shared by every SELECT.
const taskColumns = `id, owner_id, kind, status, input_reference, provider_job_handle,
	result, usage_amount, usage_reference, error_detail, created_at, updated_at`

// Create persists a new task to the database.
// Returns store.ErrDuplicate if a task with the same ID already exists.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, owner_id, kind, status, input_reference, provider_job_handle,
			result, usage_amount, usage_reference, error_detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.OwnerID,
		task.Kind,
		task.Status,
		task.InputReference,
		task.ProviderJobHandle,
		task.Result,
		task.UsageAmount,
		task.UsageReference,
		task.ErrorDetail,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", task.ID,
			"kind", task.Kind,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a task by its unique ID.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

// GetByProviderJobHandle retrieves the task correlated with a provider job.
// Returns store.ErrTaskNotFound when no task carries the handle.
func (s *PostgresTaskStore) GetByProviderJobHandle(ctx context.Context, handle string) (*domain.Task, error) {
	if handle == "" {
		return nil, store.ErrTaskNotFound
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE provider_job_handle = $1`

	row := s.db.QueryRowContext(ctx, query, handle)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

// ListByOwner retrieves an owner's tasks of one kind, most recent first.
func (s *PostgresTaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, limit int) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1 AND kind = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, ownerID, kind, limit)
	if err != nil {
		log.Error("failed to list tasks",
			"owner_id", ownerID,
			"kind", kind,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// Update persists every mutable field of the task unconditionally.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tasks
		SET status = $1, provider_job_handle = $2, result = $3, usage_amount = $4,
			usage_reference = $5, error_detail = $6, updated_at = $7
		WHERE id = $8
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Status,
		task.ProviderJobHandle,
		task.Result,
		task.UsageAmount,
		task.UsageReference,
		task.ErrorDetail,
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		log.Error("failed to update task",
			"task_id", task.ID,
			"status", task.Status,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return store.ErrTaskNotFound
	}
	return nil
}

// UpdateIfProcessing persists the task only while the stored row is not yet
// terminal. The status guard in the WHERE clause makes the terminal
// transition a compare-and-swap: under concurrent duplicate notifications
// exactly one commit wins.
// Returns store.ErrUpdateFailed when the stored row is already terminal,
// store.ErrTaskNotFound when it does not exist.
func (s *PostgresTaskStore) UpdateIfProcessing(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tasks
		SET status = $1, provider_job_handle = $2, result = $3, usage_amount = $4,
			usage_reference = $5, error_detail = $6, updated_at = $7
		WHERE id = $8 AND status IN ($9, $10)
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Status,
		task.ProviderJobHandle,
		task.Result,
		task.UsageAmount,
		task.UsageReference,
		task.ErrorDetail,
		task.UpdatedAt,
		task.ID,
		domain.TaskStatusPending,
		domain.TaskStatusProcessing,
	)
	if err != nil {
		log.Error("failed to commit task transition",
			"task_id", task.ID,
			"status", task.Status,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Zero rows means either the task is gone or a concurrent commit
	// already made it terminal. Disambiguate with a read.
	if _, err := s.GetByID(ctx, task.ID); err != nil {
		return err
	}
	return store.ErrUpdateFailed
}

// ListProcessingOlderThan retrieves tasks that have sat in the processing
// state longer than the given age, oldest first.
func (s *PostgresTaskStore) ListProcessingOlderThan(ctx context.Context, olderThan time.Duration) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC`

	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := s.db.QueryContext(ctx, query, domain.TaskStatusProcessing, cutoff)
	if err != nil {
		log.Error("failed to query processing tasks",
			"older_than", olderThan,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// WithTx returns a store bound to the given transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// scanner abstracts *sql.Row and *sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTask reads one task row in taskColumns order.
func scanTask(row scanner) (*domain.Task, error) {
	var task domain.Task
	var jobHandle, result, usageReference, errorDetail sql.NullString

	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Kind,
		&task.Status,
		&task.InputReference,
		&jobHandle,
		&result,
		&task.UsageAmount,
		&usageReference,
		&errorDetail,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ProviderJobHandle = jobHandle.String
	task.Result = result.String
	task.UsageReference = usageReference.String
	task.ErrorDetail = errorDetail.String
	return &task, nil
}

// collectTasks drains a result set into task values.
func collectTasks(rows *sql.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}
