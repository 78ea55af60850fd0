package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/service"
)

// FoodImageHandler serves the meal photo endpoints.
type FoodImageHandler struct {
	images        service.FoodImageService
	maxUploadSize int64
	logger        *slog.Logger
}

// NewFoodImageHandler creates a FoodImageHandler. A non-positive
// maxUploadSize means service.DefaultMaxUploadSize.
func NewFoodImageHandler(images service.FoodImageService, maxUploadSize int64, logger *slog.Logger) *FoodImageHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = service.DefaultMaxUploadSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FoodImageHandler{
		images:        images,
		maxUploadSize: maxUploadSize,
		logger:        logger.With("component", "food_image_handler"),
	}
}

// Upload handles POST /food-images/upload. The image is processed in the
// background; the response carries the task id to poll.
func (h *FoodImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	data, _, err := readUpload(w, r, h.maxUploadSize)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read upload")
		return
	}

	var capturedAt time.Time
	if raw := r.FormValue("captured_at"); raw != "" {
		capturedAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			HandleAPIError(w, r, domain.NewValidationError("captured_at",
				"must be an RFC 3339 timestamp", domain.ErrInvalidFormat), "")
			return
		}
	}

	image, taskID, err := h.images.Upload(r.Context(), userID, data, capturedAt)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to upload image")
		return
	}

	log.Info("food image accepted", "image_id", image.ID, "task_id", taskID)
	shared.RespondWithJSON(w, r, http.StatusAccepted, FoodImageUploadResponse{
		FoodImage: image,
		TaskID:    taskID,
	})
}

// List handles GET /food-images.
func (h *FoodImageHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	skip, limit, err := pagination(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	images, err := h.images.ListImages(r.Context(), userID, skip, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list images")
		return
	}
	if images == nil {
		images = []*domain.FoodImage{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, images)
}

// Get handles GET /food-images/{id}.
func (h *FoodImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, imageID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	image, err := h.images.GetImage(r.Context(), userID, imageID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve image")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, image)
}
