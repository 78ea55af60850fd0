package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/service"
)

// Function-field fakes of the service interfaces. Unset functions panic so
// an unexpected call fails the test loudly.

type fakeUserService struct {
	CreateUserFn     func(ctx context.Context, email, password string) (*domain.User, error)
	GetUserFn        func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByEmailFn func(ctx context.Context, email string) (*domain.User, error)
	UpdateProfileFn  func(ctx context.Context, id uuid.UUID, demographics, settings map[string]any) (*domain.User, error)
	activity         int
}

var _ service.UserService = (*fakeUserService)(nil)

func (f *fakeUserService) CreateUser(ctx context.Context, email, password string) (*domain.User, error) {
	return f.CreateUserFn(ctx, email, password)
}

func (f *fakeUserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return f.GetUserFn(ctx, id)
}

func (f *fakeUserService) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return f.GetUserByEmailFn(ctx, email)
}

func (f *fakeUserService) GetFirstUser(context.Context) (*domain.User, error) {
	panic("GetFirstUser not expected")
}

func (f *fakeUserService) UpdateProfile(
	ctx context.Context,
	id uuid.UUID,
	demographics, settings map[string]any,
) (*domain.User, error) {
	return f.UpdateProfileFn(ctx, id, demographics, settings)
}

func (f *fakeUserService) RecordActivity(context.Context, *domain.User) error {
	f.activity++
	return nil
}

type fakeFoodImageService struct {
	service.FoodImageService
	UploadFn func(ctx context.Context, userID uuid.UUID, data []byte, capturedAt time.Time) (*domain.FoodImage, uuid.UUID, error)
	ListFn   func(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*domain.FoodImage, error)
	GetFn    func(ctx context.Context, userID, imageID uuid.UUID) (*domain.FoodImage, error)
}

func (f *fakeFoodImageService) Upload(
	ctx context.Context,
	userID uuid.UUID,
	data []byte,
	capturedAt time.Time,
) (*domain.FoodImage, uuid.UUID, error) {
	return f.UploadFn(ctx, userID, data, capturedAt)
}

func (f *fakeFoodImageService) ListImages(
	ctx context.Context,
	userID uuid.UUID,
	skip, limit int,
) ([]*domain.FoodImage, error) {
	return f.ListFn(ctx, userID, skip, limit)
}

func (f *fakeFoodImageService) GetImage(ctx context.Context, userID, imageID uuid.UUID) (*domain.FoodImage, error) {
	return f.GetFn(ctx, userID, imageID)
}

type fakeNutrientService struct {
	service.NutrientEstimationService
	RequestEstimateFn func(ctx context.Context, userID uuid.UUID, items []domain.FoodItem) (uuid.UUID, error)
}

func (f *fakeNutrientService) RequestEstimate(
	ctx context.Context,
	userID uuid.UUID,
	items []domain.FoodItem,
) (uuid.UUID, error) {
	return f.RequestEstimateFn(ctx, userID, items)
}

type fakeTaskService struct {
	GetTaskStatusFn func(ctx context.Context, id uuid.UUID) (*service.TaskStatus, error)
}

func (f *fakeTaskService) GetTaskStatus(ctx context.Context, id uuid.UUID) (*service.TaskStatus, error) {
	return f.GetTaskStatusFn(ctx, id)
}

type fakeFoodHistoryService struct {
	CreateFn    func(ctx context.Context, userID uuid.UUID, in service.FoodHistoryInput) (*domain.UserFoodHistory, error)
	GetFn       func(ctx context.Context, userID, id uuid.UUID) (*domain.UserFoodHistory, error)
	ListFn      func(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*domain.UserFoodHistory, error)
	ListRangeFn func(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.UserFoodHistory, error)
}

func (f *fakeFoodHistoryService) Create(
	ctx context.Context,
	userID uuid.UUID,
	in service.FoodHistoryInput,
) (*domain.UserFoodHistory, error) {
	return f.CreateFn(ctx, userID, in)
}

func (f *fakeFoodHistoryService) Get(ctx context.Context, userID, id uuid.UUID) (*domain.UserFoodHistory, error) {
	return f.GetFn(ctx, userID, id)
}

func (f *fakeFoodHistoryService) List(
	ctx context.Context,
	userID uuid.UUID,
	skip, limit int,
) ([]*domain.UserFoodHistory, error) {
	return f.ListFn(ctx, userID, skip, limit)
}

func (f *fakeFoodHistoryService) ListRange(
	ctx context.Context,
	userID uuid.UUID,
	start, end time.Time,
) ([]*domain.UserFoodHistory, error) {
	return f.ListRangeFn(ctx, userID, start, end)
}

type fakeReceiptService struct {
	service.ReceiptService
	UploadFn func(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*domain.Receipt, uuid.UUID, error)
	GetFn    func(ctx context.Context, userID, id uuid.UUID) (*domain.Receipt, error)
}

func (f *fakeReceiptService) Upload(
	ctx context.Context,
	userID uuid.UUID,
	filename string,
	data []byte,
) (*domain.Receipt, uuid.UUID, error) {
	return f.UploadFn(ctx, userID, filename, data)
}

func (f *fakeReceiptService) GetReceipt(ctx context.Context, userID, id uuid.UUID) (*domain.Receipt, error) {
	return f.GetFn(ctx, userID, id)
}

type fakeLedgerService struct {
	service.LedgerService
	CurrentFn func(ctx context.Context, userID uuid.UUID) (*domain.NutrientLedger, error)
	ListFn    func(ctx context.Context, userID uuid.UUID, weeks int) ([]*domain.NutrientLedger, error)
}

func (f *fakeLedgerService) CurrentWeek(ctx context.Context, userID uuid.UUID) (*domain.NutrientLedger, error) {
	return f.CurrentFn(ctx, userID)
}

func (f *fakeLedgerService) ListWeeks(
	ctx context.Context,
	userID uuid.UUID,
	weeks int,
) ([]*domain.NutrientLedger, error) {
	return f.ListFn(ctx, userID, weeks)
}

// asUser returns middleware that authenticates every request as userID.
// uuid.Nil leaves the request unauthenticated.
func asUser(userID uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != uuid.Nil {
				r = r.WithContext(shared.WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// newTestRouter builds a chi router authenticated as userID; register adds
// the routes under test.
func newTestRouter(userID uuid.UUID, register func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(asUser(userID))
	register(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// doMultipart posts a single file part plus extra form fields.
func doMultipart(
	t *testing.T,
	h http.Handler,
	target, filename string,
	data []byte,
	fields map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile(UploadFormField, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorText(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[shared.ErrorResponse](t, w).Error
}
