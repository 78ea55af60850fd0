package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/store"
)

// MockTaskStore is an in-memory TaskStore for tests.
type MockTaskStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record

	SaveErr error
}

func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{records: make(map[uuid.UUID]*Record)}
}

// Put inserts a row directly, as if left behind by a previous process.
func (s *MockTaskStore) Put(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
}

func (s *MockTaskStore) SaveTask(ctx context.Context, task Task) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.records[task.ID()] = &Record{
		ID:        task.ID(),
		Type:      task.Type(),
		Payload:   task.Payload(),
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *MockTaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	rec.Status = status
	rec.ErrorMessage = errorMsg
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MockTaskStore) CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	rec.Status = TaskStatusCompleted
	rec.Result = result
	rec.ErrorMessage = ""
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MockTaskStore) IncrementAttempts(ctx context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	rec.Attempts++
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MockTaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MockTaskStore) GetPendingTasks(ctx context.Context) ([]*Record, error) {
	return s.byStatus(TaskStatusPending, 0), nil
}

func (s *MockTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*Record, error) {
	return s.byStatus(TaskStatusProcessing, olderThan), nil
}

func (s *MockTaskStore) byStatus(status TaskStatus, olderThan time.Duration) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	cutoff := time.Now().UTC().Add(-olderThan)
	for _, rec := range s.records {
		if rec.Status != status {
			continue
		}
		if olderThan > 0 && !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

func (s *MockTaskStore) WithTx(tx *sql.Tx) TaskStore {
	return s
}

var _ TaskStore = (*MockTaskStore)(nil)

// MockTask is a configurable Task for runner tests.
type MockTask struct {
	baseTask
	ExecuteFn   func(ctx context.Context) error
	OnFailureFn func(ctx context.Context, err error)

	mu    sync.Mutex
	calls int
}

const mockTaskType = TaskTypeEstimateNutrients

func NewMockTask(fn func(ctx context.Context) error) *MockTask {
	base, _ := newBaseTask(uuid.New(), mockTaskType, map[string]string{"message": "test"})
	return &MockTask{baseTask: base, ExecuteFn: fn}
}

func (t *MockTask) Execute(ctx context.Context) error {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if err := t.ExecuteFn(ctx); err != nil {
		return err
	}
	return t.setResult(map[string]string{"status": "success"})
}

func (t *MockTask) OnFailure(ctx context.Context, err error) {
	if t.OnFailureFn != nil {
		t.OnFailureFn(ctx, err)
	}
}

func (t *MockTask) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
