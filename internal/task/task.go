package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	TaskTypeProcessFoodImage  = "process_food_image"
	TaskTypeEstimateNutrients = "estimate_nutrients"
	TaskTypeProcessReceipt    = "process_receipt"
)

// Queue names
const (
	QueueFoodImage = "food_image"
	QueueNutrients = "nutrients"
	QueueReceipts  = "receipts"
)

// queueRoutes maps task types to the queue that runs them.
var queueRoutes = map[string]string{
	TaskTypeProcessFoodImage:  QueueFoodImage,
	TaskTypeEstimateNutrients: QueueNutrients,
	TaskTypeProcessReceipt:    QueueReceipts,
}

// QueueFor returns the queue a task type is routed to, or "" if the type is
// not routed.
func QueueFor(taskType string) string {
	return queueRoutes[taskType]
}

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Status returns the current task status
	Status() TaskStatus

	// Execute runs the task logic
	Execute(ctx context.Context) error

	// Result returns the JSON result of the last successful execution, or nil.
	Result() json.RawMessage
}

// FailureHandler is implemented by tasks that need to react once the runner
// has given up on them.
type FailureHandler interface {
	OnFailure(ctx context.Context, err error)
}

// Record is a persisted task row.
type Record struct {
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       TaskStatus      `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TaskStore defines the interface for persisting tasks
type TaskStore interface {
	// SaveTask persists a task in pending state
	SaveTask(ctx context.Context, task Task) error

	// UpdateTaskStatus updates the status and error message of a task
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	// CompleteTask marks a task completed and stores its result
	CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error

	// IncrementAttempts records the start of another execution attempt
	IncrementAttempts(ctx context.Context, taskID uuid.UUID) error

	// GetTask returns a task row.
	// Returns store.ErrTaskNotFound if the task does not exist.
	GetTask(ctx context.Context, taskID uuid.UUID) (*Record, error)

	// GetPendingTasks retrieves all tasks with "pending" status, oldest first
	GetPendingTasks(ctx context.Context) ([]*Record, error)

	// GetProcessingTasks retrieves tasks with "processing" status
	// If olderThan is non-zero, only returns tasks that have been in this state
	// longer than the specified duration
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*Record, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}

// baseTask carries the bookkeeping shared by every task type.
type baseTask struct {
	id       uuid.UUID
	taskType string
	payload  []byte
	status   TaskStatus
	result   json.RawMessage
}

func newBaseTask(id uuid.UUID, taskType string, payload any) (baseTask, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return baseTask{}, err
	}
	return baseTask{
		id:       id,
		taskType: taskType,
		payload:  data,
		status:   TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *baseTask) ID() uuid.UUID { return t.id }

// Type returns the task type identifier
func (t *baseTask) Type() string { return t.taskType }

// Payload returns the task data as a byte slice
func (t *baseTask) Payload() []byte { return t.payload }

// Status returns the current task status
func (t *baseTask) Status() TaskStatus { return t.status }

// Result returns the JSON result of the last successful execution
func (t *baseTask) Result() json.RawMessage { return t.result }

func (t *baseTask) setResult(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return Permanent(err)
	}
	t.result = data
	return nil
}
