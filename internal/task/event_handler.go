package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dingsen2/micronutrient-radar/internal/events"
)

// TaskFactoryEventHandler implements the events.EventHandler interface.
// It builds a task from each TaskRequestEvent through the Registry and hands
// it to the runner. The event id becomes the task id, so the service that
// emitted the event already knows the id to return to its caller.
type TaskFactoryEventHandler struct {
	registry *Registry
	runner   Submitter
	logger   *slog.Logger
}

// NewTaskFactoryEventHandler creates a new event handler that builds tasks
// from the registry and submits them to the provided runner.
func NewTaskFactoryEventHandler(
	registry *Registry,
	runner Submitter,
	logger *slog.Logger,
) *TaskFactoryEventHandler {
	return &TaskFactoryEventHandler{
		registry: registry,
		runner:   runner,
		logger:   logger.With("component", "task_factory_event_handler"),
	}
}

// HandleEvent builds and submits the task requested by event.
func (h *TaskFactoryEventHandler) HandleEvent(
	ctx context.Context,
	event *events.TaskRequestEvent,
) error {
	log := h.logger.With("event_id", event.ID, "event_type", event.Type)

	task, err := h.registry.Build(event.ID, event.Type, event.Payload)
	if err != nil {
		log.Error("failed to create task", "error", err)
		return fmt.Errorf("failed to create task: %w", err)
	}

	log.Debug("submitting task to runner", "task_id", task.ID())
	if err := h.runner.Submit(ctx, task); err != nil {
		log.Error("failed to submit task", "error", err, "task_id", task.ID())
		return fmt.Errorf("failed to submit task: %w", err)
	}

	log.Info("task created and submitted successfully", "task_id", task.ID())
	return nil
}

// Ensure TaskFactoryEventHandler implements events.EventHandler
var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)
