package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/service"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

// NutrientHandler serves nutrient estimation and task polling.
type NutrientHandler struct {
	nutrients service.NutrientEstimationService
	tasks     service.TaskService
	logger    *slog.Logger
}

// NewNutrientHandler creates a NutrientHandler.
func NewNutrientHandler(
	nutrients service.NutrientEstimationService,
	tasks service.TaskService,
	logger *slog.Logger,
) *NutrientHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NutrientHandler{
		nutrients: nutrients,
		tasks:     tasks,
		logger:    logger.With("component", "nutrient_handler"),
	}
}

// Estimate handles POST /nutrients/estimate. Estimation runs in the
// background.
func (h *NutrientHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	var req EstimateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	items := make([]domain.FoodItem, 0, len(req.FoodItems))
	for _, in := range req.FoodItems {
		item, err := domain.NewFoodItem(uuid.Nil, in.Description, in.Quantity, in.Unit, in.Confidence)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		if in.IsEstimated != nil {
			item.IsEstimated = *in.IsEstimated
		}
		item.FDCID = in.FDCID
		items = append(items, *item)
	}

	taskID, err := h.nutrients.RequestEstimate(r.Context(), userID, items)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start nutrient estimation")
		return
	}

	log.Info("nutrient estimate requested", "task_id", taskID, "items", len(items))
	shared.RespondWithJSON(w, r, http.StatusOK, EstimateResponse{
		TaskID:  taskID,
		Status:  task.TaskStatusProcessing,
		Message: "Nutrient estimation started",
	})
}

// TaskStatus handles GET /nutrients/task/{task_id} and GET /tasks/{task_id}.
func (h *NutrientHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	_, taskID, ok := handleUserIDAndPathUUID(w, r, "task_id", log)
	if !ok {
		return
	}

	status, err := h.tasks.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve task status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, status)
}
