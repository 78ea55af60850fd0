package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

// TaskStatus is the polling view of a background task. Queued tasks are
// reported as processing.
type TaskStatus struct {
	TaskID uuid.UUID       `json:"task_id"`
	Type   string          `json:"-"`
	Status task.TaskStatus `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// TaskService reports the state of background tasks.
type TaskService interface {
	// GetTaskStatus returns the status of a task or store.ErrTaskNotFound.
	GetTaskStatus(ctx context.Context, taskID uuid.UUID) (*TaskStatus, error)
}

type taskServiceImpl struct {
	tasks  task.TaskStore
	logger *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(tasks task.TaskStore, logger *slog.Logger) (TaskService, error) {
	if tasks == nil {
		return nil, nilDependency("task", "taskStore")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &taskServiceImpl{
		tasks:  tasks,
		logger: logger.With("component", "task_service"),
	}, nil
}

// GetTaskStatus implements TaskService.GetTaskStatus.
func (s *taskServiceImpl) GetTaskStatus(ctx context.Context, taskID uuid.UUID) (*TaskStatus, error) {
	rec, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.logger.Error("failed to load task", "error", err, "task_id", taskID)
		}
		return nil, NewServiceError("task", "get_task_status", "failed to get task", err)
	}

	status := &TaskStatus{TaskID: rec.ID, Type: rec.Type}
	switch rec.Status {
	case task.TaskStatusCompleted:
		status.Status = task.TaskStatusCompleted
		status.Result = rec.Result
	case task.TaskStatusFailed:
		status.Status = task.TaskStatusFailed
		status.Error = rec.ErrorMessage
		if status.Error == "" {
			status.Error = "task failed"
		}
	default:
		status.Status = task.TaskStatusProcessing
	}
	return status, nil
}
