package task

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Factory builds an executable task from its id and persisted payload.
type Factory func(id uuid.UUID, payload []byte) (Task, error)

// Registry maps task types to the factories that rebuild them. Every task
// created at submit time and every row recovered at startup goes through it,
// so both paths produce the same executable task.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register sets the factory for taskType, replacing any previous one.
func (r *Registry) Register(taskType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = f
}

// Types returns the registered task types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}

// Build creates the task for taskType.
func (r *Registry) Build(id uuid.UUID, taskType string, payload []byte) (Task, error) {
	r.mu.RLock()
	f, ok := r.factories[taskType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	t, err := f(id, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s task: %w", taskType, err)
	}
	return t, nil
}

// Rebuild creates the task for a persisted row.
func (r *Registry) Rebuild(rec *Record) (Task, error) {
	return r.Build(rec.ID, rec.Type, rec.Payload)
}
