package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 160, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type foodImageFixture struct {
	svc        FoodImageService
	images     *MockFoodImageStore
	objects    *memObjects
	recognizer *fakeRecognizer
	emitter    *recordingEmitter
	tx         *fakeTransactor
}

func newFoodImageFixture(t *testing.T, maxUpload int64) *foodImageFixture {
	t.Helper()
	f := &foodImageFixture{
		images:     &MockFoodImageStore{},
		objects:    newMemObjects(),
		recognizer: &fakeRecognizer{},
		emitter:    &recordingEmitter{},
		tx:         &fakeTransactor{},
	}
	svc, err := NewFoodImageService(FoodImageDeps{
		Images:        f.images,
		Transactor:    f.tx,
		Objects:       f.objects,
		Recognizer:    f.recognizer,
		Emitter:       f.emitter,
		MaxUploadSize: maxUpload,
	}, nil)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewFoodImageService_NilDependencies(t *testing.T) {
	_, err := NewFoodImageService(FoodImageDeps{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewFoodImageService(FoodImageDeps{
		Images:     &MockFoodImageStore{},
		Transactor: &fakeTransactor{},
		Objects:    newMemObjects(),
		Recognizer: &fakeRecognizer{},
	}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestValidateImage(t *testing.T) {
	f := newFoodImageFixture(t, 0)
	valid := pngBytes(t, 4, 4)

	tests := []struct {
		name    string
		svc     FoodImageService
		data    []byte
		wantErr error
		wantCT  string
		wantExt string
	}{
		{name: "png", svc: f.svc, data: valid, wantCT: "image/png", wantExt: ".png"},
		{name: "empty", svc: f.svc, data: nil, wantErr: domain.ErrInvalidFormat},
		{name: "text", svc: f.svc, data: []byte("just some notes"), wantErr: domain.ErrUnsupportedMediaType},
		{name: "too large", svc: newFoodImageFixture(t, 16).svc, data: valid, wantErr: domain.ErrFileTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ct, ext, err := tc.svc.ValidateImage(tc.data)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantCT, ct)
			assert.Equal(t, tc.wantExt, ext)
		})
	}
}

func TestUpload(t *testing.T) {
	f := newFoodImageFixture(t, 0)
	userID := uuid.New()
	capturedAt := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)

	f.images.On("Create", mock.Anything, mock.MatchedBy(func(img *domain.FoodImage) bool {
		return img.UserID == userID && img.Status == domain.FoodImageStatusProcessed
	})).Return(nil).Once()

	img, taskID, err := f.svc.Upload(context.Background(), userID, pngBytes(t, 8, 8), capturedAt)
	require.NoError(t, err)
	f.images.AssertExpectations(t)

	assert.Equal(t, capturedAt, img.CapturedAt)
	assert.Zero(t, img.RecognitionConfidence)
	assert.Contains(t, img.ImageURL, userID.String()+"/")
	assert.Contains(t, img.ImageURL, ".png")
	_, err = f.objects.Get(context.Background(), img.ImageURL)
	assert.NoError(t, err)

	require.Len(t, f.emitter.events, 1)
	ev := f.emitter.events[0]
	assert.Equal(t, ev.ID, taskID)
	assert.Equal(t, task.TaskTypeProcessFoodImage, ev.Type)
	var payload task.ProcessFoodImagePayload
	require.NoError(t, ev.UnmarshalPayload(&payload))
	assert.Equal(t, img.ID, payload.ImageID)
}

func TestUpload_RemovesObjectWhenRecordFails(t *testing.T) {
	f := newFoodImageFixture(t, 0)
	f.images.On("Create", mock.Anything, mock.Anything).Return(store.ErrInvalidEntity).Once()

	_, _, err := f.svc.Upload(context.Background(), uuid.New(), pngBytes(t, 2, 2), time.Time{})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	require.Len(t, f.objects.deleted, 1)
	assert.Empty(t, f.objects.objects)
	assert.Empty(t, f.emitter.events)
}

func TestUpload_DiscardsUploadWhenQueueRejects(t *testing.T) {
	f := newFoodImageFixture(t, 0)
	f.emitter.err = task.ErrQueueFull

	var created *domain.FoodImage
	f.images.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.FoodImage)
	}).Return(nil).Once()
	f.images.On("Delete", mock.Anything, mock.Anything).Return(nil).Once()

	_, taskID, err := f.svc.Upload(context.Background(), uuid.New(), pngBytes(t, 2, 2), time.Time{})
	assert.ErrorIs(t, err, task.ErrQueueFull)
	assert.Equal(t, uuid.Nil, taskID)

	require.NotNil(t, created)
	f.images.AssertCalled(t, "Delete", mock.Anything, created.ID)
	assert.Equal(t, []string{created.ImageURL}, f.objects.deleted)
	assert.Empty(t, f.objects.objects)
}

func TestUpload_RejectsBeforeStoring(t *testing.T) {
	f := newFoodImageFixture(t, 0)

	_, _, err := f.svc.Upload(context.Background(), uuid.New(), []byte("%PDF-1.4 not an image"), time.Time{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMediaType)
	assert.Empty(t, f.objects.objects)
	f.images.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func storedImage(t *testing.T, f *foodImageFixture, userID uuid.UUID) *domain.FoodImage {
	t.Helper()
	location, err := f.objects.Put(context.Background(), userID.String()+"/meal.png", pngBytes(t, 6, 4), "image/png")
	require.NoError(t, err)
	img, err := domain.NewFoodImage(userID, location, time.Time{})
	require.NoError(t, err)
	return img
}

func TestRecognizeFoodItems(t *testing.T) {
	f := newFoodImageFixture(t, 0)
	img := storedImage(t, f, uuid.New())
	f.recognizer.items = []generation.RecognizedItem{
		{Description: "grilled salmon", Quantity: 150, Unit: "g", Confidence: 0.8},
		{Description: "  ", Quantity: 1, Unit: "piece", Confidence: 0.9},
		{Description: "rice", Quantity: 1, Unit: "", Confidence: 0.6},
	}

	f.images.On("GetByID", mock.Anything, img.ID).Return(img, nil).Once()
	f.images.On("ReplaceItems", mock.Anything, img.ID, mock.MatchedBy(func(items []domain.FoodItem) bool {
		return len(items) == 2
	})).Return(nil).Once()
	f.images.On("Update", mock.Anything, img).Return(nil).Once()

	got, err := f.svc.RecognizeFoodItems(context.Background(), img.ID)
	require.NoError(t, err)
	f.images.AssertExpectations(t)

	assert.Equal(t, "image/png", f.recognizer.mimeType)
	assert.Equal(t, 1, f.tx.calls)
	assert.Equal(t, domain.FoodImageStatusProcessed, got.Status)
	assert.InDelta(t, 0.7, got.RecognitionConfidence, 1e-9)
	require.Len(t, got.FoodItems, 2)
	assert.Equal(t, "grilled salmon", got.FoodItems[0].Description)
	assert.Equal(t, domain.UnitPiece, got.FoodItems[1].Unit)
	assert.Equal(t, img.ID, got.FoodItems[1].FoodImageID)
}

func TestRecognizeFoodItems_NothingFound(t *testing.T) {
	f := newFoodImageFixture(t, 0)
	img := storedImage(t, f, uuid.New())

	f.images.On("GetByID", mock.Anything, img.ID).Return(img, nil).Once()
	f.images.On("ReplaceItems", mock.Anything, img.ID, mock.Anything).Return(nil).Once()
	f.images.On("Update", mock.Anything, img).Return(nil).Once()

	got, err := f.svc.RecognizeFoodItems(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FoodImageStatusNeedsReview, got.Status)
	assert.Empty(t, got.FoodItems)
}

func TestRecognizeFoodItems_Failures(t *testing.T) {
	t.Run("image record missing", func(t *testing.T) {
		f := newFoodImageFixture(t, 0)
		id := uuid.New()
		f.images.On("GetByID", mock.Anything, id).Return(nil, store.ErrFoodImageNotFound)

		_, err := f.svc.RecognizeFoodItems(context.Background(), id)
		assert.ErrorIs(t, err, store.ErrFoodImageNotFound)
		assert.Zero(t, f.recognizer.calls)
	})

	t.Run("stored object missing", func(t *testing.T) {
		f := newFoodImageFixture(t, 0)
		img, err := domain.NewFoodImage(uuid.New(), "mem://gone.png", time.Time{})
		require.NoError(t, err)
		f.images.On("GetByID", mock.Anything, img.ID).Return(img, nil)

		_, err = f.svc.RecognizeFoodItems(context.Background(), img.ID)
		assert.True(t, store.IsNotFoundError(err))
	})

	t.Run("model error", func(t *testing.T) {
		f := newFoodImageFixture(t, 0)
		img := storedImage(t, f, uuid.New())
		f.recognizer.err = generation.ErrTransientFailure
		f.images.On("GetByID", mock.Anything, img.ID).Return(img, nil)

		_, err := f.svc.RecognizeFoodItems(context.Background(), img.ID)
		assert.ErrorIs(t, err, generation.ErrTransientFailure)
		f.images.AssertNotCalled(t, "ReplaceItems", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("persist error", func(t *testing.T) {
		f := newFoodImageFixture(t, 0)
		img := storedImage(t, f, uuid.New())
		f.images.On("GetByID", mock.Anything, img.ID).Return(img, nil)
		f.images.On("ReplaceItems", mock.Anything, img.ID, mock.Anything).Return(errors.New("connection reset"))

		_, err := f.svc.RecognizeFoodItems(context.Background(), img.ID)
		assert.Error(t, err)
		f.images.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func TestFoodImageMarkFailed(t *testing.T) {
	f := newFoodImageFixture(t, 0)
	img := storedImage(t, f, uuid.New())
	f.images.On("GetByID", mock.Anything, img.ID).Return(img, nil)
	f.images.On("Update", mock.Anything, mock.MatchedBy(func(i *domain.FoodImage) bool {
		return i.Status == domain.FoodImageStatusFailed
	})).Return(nil).Once()

	require.NoError(t, f.svc.MarkFailed(context.Background(), img.ID))
	f.images.AssertExpectations(t)
}

func TestListImages_PageBounds(t *testing.T) {
	f := newFoodImageFixture(t, 0)
	userID := uuid.New()
	f.images.On("ListByUser", mock.Anything, userID, 0, MaxPageLimit).Return([]*domain.FoodImage{}, nil).Twice()
	f.images.On("ListByUser", mock.Anything, userID, 20, 5).Return([]*domain.FoodImage{}, nil).Once()

	_, err := f.svc.ListImages(context.Background(), userID, -3, 0)
	require.NoError(t, err)
	_, err = f.svc.ListImages(context.Background(), userID, 0, 1000)
	require.NoError(t, err)
	_, err = f.svc.ListImages(context.Background(), userID, 20, 5)
	require.NoError(t, err)
	f.images.AssertExpectations(t)
}

func TestGetImage_Ownership(t *testing.T) {
	f := newFoodImageFixture(t, 0)
	owner := uuid.New()
	img := storedImage(t, f, owner)
	f.images.On("GetByID", mock.Anything, img.ID).Return(img, nil)

	got, err := f.svc.GetImage(context.Background(), owner, img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)

	_, err = f.svc.GetImage(context.Background(), uuid.New(), img.ID)
	assert.ErrorIs(t, err, store.ErrFoodImageNotFound)
}
