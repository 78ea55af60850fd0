package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/events"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/platform/imageproc"
	"github.com/dingsen2/micronutrient-radar/internal/platform/storage"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

// Listing bounds shared by the paged endpoints.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 100
)

// DefaultMaxUploadSize is used when no upload limit is configured.
const DefaultMaxUploadSize = 10 << 20

// FoodImageService manages meal photos and their recognition.
type FoodImageService interface {
	// ValidateImage checks size and sniffed content type and returns the
	// content type and file extension.
	ValidateImage(data []byte) (contentType, ext string, err error)

	// SaveImage stores data under <user_id>/<uuid><ext> and returns its location.
	SaveImage(ctx context.Context, userID uuid.UUID, data []byte, contentType, ext string) (string, error)

	// Upload validates and stores a photo, creates its record and enqueues
	// a process_food_image task. Returns the image and the task id.
	Upload(
		ctx context.Context,
		userID uuid.UUID,
		data []byte,
		capturedAt time.Time,
	) (*domain.FoodImage, uuid.UUID, error)

	// RecognizeFoodItems runs the vision model on a stored image and
	// persists the items it found.
	RecognizeFoodItems(ctx context.Context, imageID uuid.UUID) (*domain.FoodImage, error)

	// MarkFailed flags an image whose processing gave up.
	MarkFailed(ctx context.Context, imageID uuid.UUID) error

	// ListImages returns the user's images, newest first.
	ListImages(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*domain.FoodImage, error)

	// GetImage returns an image with its items. Images of other users are
	// reported as store.ErrFoodImageNotFound.
	GetImage(ctx context.Context, userID, imageID uuid.UUID) (*domain.FoodImage, error)
}

type foodImageServiceImpl struct {
	images        store.FoodImageStore
	tx            store.Transactor
	objects       storage.ObjectStore
	recognizer    generation.FoodRecognizer
	emitter       events.EventEmitter
	maxUploadSize int64
	logger        *slog.Logger
}

var _ task.FoodImageRecognizer = (*foodImageServiceImpl)(nil)

// FoodImageDeps groups the collaborators of the food image service.
type FoodImageDeps struct {
	Images        store.FoodImageStore
	Transactor    store.Transactor
	Objects       storage.ObjectStore
	Recognizer    generation.FoodRecognizer
	Emitter       events.EventEmitter
	MaxUploadSize int64
}

// NewFoodImageService creates a FoodImageService.
func NewFoodImageService(deps FoodImageDeps, logger *slog.Logger) (FoodImageService, error) {
	switch {
	case deps.Images == nil:
		return nil, nilDependency("food_image", "foodImageStore")
	case deps.Transactor == nil:
		return nil, nilDependency("food_image", "transactor")
	case deps.Objects == nil:
		return nil, nilDependency("food_image", "objectStore")
	case deps.Recognizer == nil:
		return nil, nilDependency("food_image", "recognizer")
	case deps.Emitter == nil:
		return nil, nilDependency("food_image", "eventEmitter")
	}
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = DefaultMaxUploadSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &foodImageServiceImpl{
		images:        deps.Images,
		tx:            deps.Transactor,
		objects:       deps.Objects,
		recognizer:    deps.Recognizer,
		emitter:       deps.Emitter,
		maxUploadSize: deps.MaxUploadSize,
		logger:        logger.With("component", "food_image_service"),
	}, nil
}

// ValidateImage implements FoodImageService.ValidateImage.
func (s *foodImageServiceImpl) ValidateImage(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", domain.NewValidationError("file", "is empty", domain.ErrInvalidFormat)
	}
	if int64(len(data)) > s.maxUploadSize {
		return "", "", domain.NewValidationError("file",
			fmt.Sprintf("exceeds maximum size of %d bytes", s.maxUploadSize), domain.ErrFileTooLarge)
	}
	contentType, ext, err := imageproc.Detect(data)
	if err != nil {
		return "", "", domain.NewValidationError("file",
			"must be a JPEG, PNG or HEIC image", domain.ErrUnsupportedMediaType)
	}
	return contentType, ext, nil
}

// SaveImage implements FoodImageService.SaveImage.
func (s *foodImageServiceImpl) SaveImage(
	ctx context.Context,
	userID uuid.UUID,
	data []byte,
	contentType, ext string,
) (string, error) {
	key := path.Join(userID.String(), uuid.NewString()+ext)
	location, err := s.objects.Put(ctx, key, data, contentType)
	if err != nil {
		s.logger.Error("failed to store image", "error", err, "user_id", userID, "key", key)
		return "", NewServiceError("food_image", "save_image", "failed to store image", err)
	}
	return location, nil
}

// Upload implements FoodImageService.Upload.
func (s *foodImageServiceImpl) Upload(
	ctx context.Context,
	userID uuid.UUID,
	data []byte,
	capturedAt time.Time,
) (*domain.FoodImage, uuid.UUID, error) {
	contentType, ext, err := s.ValidateImage(data)
	if err != nil {
		return nil, uuid.Nil, err
	}

	location, err := s.SaveImage(ctx, userID, data, contentType, ext)
	if err != nil {
		return nil, uuid.Nil, err
	}

	image, err := domain.NewFoodImage(userID, location, capturedAt)
	if err == nil {
		err = s.images.Create(ctx, image)
	}
	if err != nil {
		s.logger.Error("failed to create food image record", "error", err, "user_id", userID)
		if delErr := s.objects.Delete(ctx, location); delErr != nil {
			s.logger.Warn("failed to remove orphaned image", "error", delErr, "location", location)
		}
		return nil, uuid.Nil, NewServiceError("food_image", "upload", "failed to save food image", err)
	}

	event, err := events.NewTaskRequestEvent(task.TaskTypeProcessFoodImage, task.ProcessFoodImagePayload{ImageID: image.ID})
	if err != nil {
		s.discard(ctx, image)
		return nil, uuid.Nil, NewServiceError("food_image", "upload", "failed to create event", err)
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit food image event",
			"error", err,
			"image_id", image.ID,
			"event_id", event.ID)
		s.discard(ctx, image)
		return nil, uuid.Nil, NewServiceError("food_image", "upload", "failed to enqueue processing", err)
	}

	s.logger.Info("food image uploaded",
		"image_id", image.ID,
		"user_id", userID,
		"task_id", event.ID,
		"content_type", contentType,
		"size", len(data))
	return image, event.ID, nil
}

// discard removes an upload that was never queued for processing, so a
// rejected upload does not show up in the image list.
func (s *foodImageServiceImpl) discard(ctx context.Context, image *domain.FoodImage) {
	ctx = context.WithoutCancel(ctx)
	if err := s.images.Delete(ctx, image.ID); err != nil {
		s.logger.Warn("failed to remove unqueued food image", "error", err, "image_id", image.ID)
	}
	if err := s.objects.Delete(ctx, image.ImageURL); err != nil {
		s.logger.Warn("failed to remove orphaned image", "error", err, "location", image.ImageURL)
	}
}

// RecognizeFoodItems implements FoodImageService.RecognizeFoodItems.
func (s *foodImageServiceImpl) RecognizeFoodItems(ctx context.Context, imageID uuid.UUID) (*domain.FoodImage, error) {
	log := s.logger.With("image_id", imageID)

	image, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, NewServiceError("food_image", "recognize", "failed to load food image", err)
	}

	data, err := s.objects.Get(ctx, image.ImageURL)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, NewServiceError("food_image", "recognize", "stored image is missing",
				fmt.Errorf("%w: %w", store.ErrNotFound, err))
		}
		return nil, NewServiceError("food_image", "recognize", "failed to read stored image", err)
	}

	contentType, _, err := imageproc.Detect(data)
	if err != nil {
		return nil, NewServiceError("food_image", "recognize", "stored image has an unsupported type",
			domain.NewValidationError("file", err.Error(), domain.ErrUnsupportedMediaType))
	}
	resized, err := imageproc.Downscale(data, contentType, imageproc.MaxVisionSide)
	if err != nil {
		log.Warn("downscale failed, sending original", "error", err)
		resized = data
	}

	recognized, err := s.recognizer.RecognizeFoodItems(ctx, resized, contentType)
	if err != nil {
		return nil, NewServiceError("food_image", "recognize", "vision model call failed", err)
	}

	items := make([]domain.FoodItem, 0, len(recognized))
	for _, r := range recognized {
		item, err := domain.NewFoodItem(image.ID, r.Description, r.Quantity, r.Unit, domain.Clamp01(r.Confidence))
		if err != nil {
			log.Debug("dropping recognized item", "error", err, "description", r.Description)
			continue
		}
		items = append(items, *item)
	}
	image.ApplyRecognition(items)

	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txImages := s.images.WithTx(tx)
		if err := txImages.ReplaceItems(ctx, image.ID, image.FoodItems); err != nil {
			return err
		}
		return txImages.Update(ctx, image)
	})
	if err != nil {
		log.Error("failed to persist recognition", "error", err)
		return nil, NewServiceError("food_image", "recognize", "failed to save recognized items", err)
	}

	log.Info("food items recognized",
		"items", len(image.FoodItems),
		"status", image.Status,
		"confidence", image.RecognitionConfidence)
	return image, nil
}

// MarkFailed implements FoodImageService.MarkFailed.
func (s *foodImageServiceImpl) MarkFailed(ctx context.Context, imageID uuid.UUID) error {
	image, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return NewServiceError("food_image", "mark_failed", "failed to load food image", err)
	}
	image.MarkFailed()
	if err := s.images.Update(ctx, image); err != nil {
		return NewServiceError("food_image", "mark_failed", "failed to update food image", err)
	}
	s.logger.Info("food image marked failed", "image_id", imageID)
	return nil
}

// ListImages implements FoodImageService.ListImages.
func (s *foodImageServiceImpl) ListImages(
	ctx context.Context,
	userID uuid.UUID,
	skip, limit int,
) ([]*domain.FoodImage, error) {
	skip, limit = pageBounds(skip, limit)
	images, err := s.images.ListByUser(ctx, userID, skip, limit)
	if err != nil {
		s.logger.Error("failed to list food images", "error", err, "user_id", userID)
		return nil, NewServiceError("food_image", "list_images", "failed to list food images", err)
	}
	return images, nil
}

// GetImage implements FoodImageService.GetImage.
func (s *foodImageServiceImpl) GetImage(ctx context.Context, userID, imageID uuid.UUID) (*domain.FoodImage, error) {
	image, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, NewServiceError("food_image", "get_image", "failed to get food image", err)
	}
	if image.UserID != userID {
		return nil, NewServiceError("food_image", "get_image", "image belongs to another user", store.ErrFoodImageNotFound)
	}
	return image, nil
}

// pageBounds applies the default and maximum page size.
func pageBounds(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	return skip, limit
}
