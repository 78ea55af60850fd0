package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

const taskColumns = `id, type, payload, status, result, error_message, attempts, created_at, updated_at`

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ task.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements task.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	if tx == nil {
		return s
	}
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// SaveTask persists a task to the database in pending state.
func (s *PostgresTaskStore) SaveTask(ctx context.Context, t task.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	payload := t.Payload()
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO tasks (id, type, payload, status, error_message, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', 0, $5, $5)
	`
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		t.ID(),
		t.Type(),
		string(payload),
		task.TaskStatusPending,
		now,
	)
	if err != nil {
		log.Error("failed to save task",
			slog.String("task_id", t.ID().String()),
			slog.String("task_type", t.Type()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}

	return nil
}

// UpdateTaskStatus updates the status and error message of a task.
func (s *PostgresTaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status task.TaskStatus,
	errorMsg string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, status, errorMsg, time.Now().UTC(), taskID)
	if err != nil {
		log.Error("failed to update task status",
			slog.String("task_id", taskID.String()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to update task status: %w", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// CompleteTask marks a task completed and stores its result.
func (s *PostgresTaskStore) CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var resultParam any
	if len(result) > 0 {
		resultParam = string(result)
	}

	query := `
		UPDATE tasks
		SET status = $1, result = $2, error_message = '', updated_at = $3
		WHERE id = $4
	`
	res, err := s.db.ExecContext(ctx, query, task.TaskStatusCompleted, resultParam, time.Now().UTC(), taskID)
	if err != nil {
		log.Error("failed to complete task",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to complete task: %w", MapError(err))
	}

	return CheckRowsAffected(res, store.ErrTaskNotFound)
}

// IncrementAttempts bumps the attempt counter of a task.
func (s *PostgresTaskStore) IncrementAttempts(ctx context.Context, taskID uuid.UUID) error {
	query := `UPDATE tasks SET attempts = attempts + 1, updated_at = $1 WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("failed to increment task attempts: %w", MapError(err))
	}
	return CheckRowsAffected(res, store.ErrTaskNotFound)
}

// GetTask loads a single task row.
func (s *PostgresTaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*task.Record, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	rec, err := scanTask(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		mapped := mapNotFound(err, store.ErrTaskNotFound)
		if !store.IsNotFoundError(mapped) {
			log.Error("failed to get task",
				slog.String("task_id", taskID.String()),
				slog.String("error", err.Error()))
		}
		return nil, mapped
	}
	return rec, nil
}

// GetPendingTasks retrieves all tasks with "pending" status
func (s *PostgresTaskStore) GetPendingTasks(ctx context.Context) ([]*task.Record, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusPending, 0)
}

// GetProcessingTasks retrieves tasks with "processing" status
func (s *PostgresTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*task.Record, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusProcessing, olderThan)
}

// getTasksByStatus gets tasks by status with an optional age filter
func (s *PostgresTaskStore) getTasksByStatus(
	ctx context.Context,
	status task.TaskStatus,
	olderThan time.Duration,
) ([]*task.Record, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1`
	args := []any{status}
	if olderThan > 0 {
		query += ` AND updated_at < $2`
		args = append(args, time.Now().UTC().Add(-olderThan))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks by status",
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query tasks by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*task.Record
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row",
				slog.String("status", string(status)),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return records, nil
}

func scanTask(row rowScanner) (*task.Record, error) {
	var (
		rec     task.Record
		payload []byte
		result  []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Type,
		&payload,
		&rec.Status,
		&result,
		&rec.ErrorMessage,
		&rec.Attempts,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		rec.Result = json.RawMessage(result)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
