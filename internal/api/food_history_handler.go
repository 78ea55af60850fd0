package api

import (
	"log/slog"
	"net/http"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/service"
)

// FoodHistoryHandler serves the meal log.
type FoodHistoryHandler struct {
	history service.FoodHistoryService
	logger  *slog.Logger
}

// NewFoodHistoryHandler creates a FoodHistoryHandler.
func NewFoodHistoryHandler(history service.FoodHistoryService, logger *slog.Logger) *FoodHistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FoodHistoryHandler{
		history: history,
		logger:  logger.With("component", "food_history_handler"),
	}
}

// Create handles POST /food-history.
func (h *FoodHistoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	var req FoodHistoryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	entry, err := h.history.Create(r.Context(), userID, service.FoodHistoryInput{
		MealDatetime:   req.MealDatetime,
		MealType:       req.MealType,
		FoodImageID:    req.FoodImageID,
		TotalNutrients: req.TotalNutrients,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to log meal")
		return
	}

	log.Info("meal logged", "history_id", entry.ID, "meal_type", entry.MealType)
	shared.RespondWithJSON(w, r, http.StatusCreated, entry)
}

// List handles GET /food-history. With start_date and end_date it returns
// the meals in that range, otherwise a skip/limit page. Newest meal first.
func (h *FoodHistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	var (
		entries []*domain.UserFoodHistory
		err     error
	)
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start_date"), q.Get("end_date")
	switch {
	case rawStart != "" && rawEnd != "":
		start, perr := parseDate("start_date", rawStart, false)
		if perr != nil {
			HandleAPIError(w, r, perr, "")
			return
		}
		end, perr := parseDate("end_date", rawEnd, true)
		if perr != nil {
			HandleAPIError(w, r, perr, "")
			return
		}
		entries, err = h.history.ListRange(r.Context(), userID, start, end)
	case rawStart != "" || rawEnd != "":
		HandleAPIError(w, r, domain.NewValidationError("start_date",
			"and end_date must be given together", nil), "")
		return
	default:
		skip, limit, perr := pagination(r)
		if perr != nil {
			HandleAPIError(w, r, perr, "")
			return
		}
		entries, err = h.history.List(r.Context(), userID, skip, limit)
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list food history")
		return
	}
	if entries == nil {
		entries = []*domain.UserFoodHistory{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, entries)
}

// Get handles GET /food-history/{id}.
func (h *FoodHistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, historyID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	entry, err := h.history.Get(r.Context(), userID, historyID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve food history")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, entry)
}
