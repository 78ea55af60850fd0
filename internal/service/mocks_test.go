package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/events"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/platform/storage"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

// fakeTransactor runs fn without a real transaction; mocks ignore the nil tx.
type fakeTransactor struct {
	calls int
}

func (f *fakeTransactor) RunInTx(ctx context.Context, fn store.TxFn) error {
	f.calls++
	return fn(ctx, nil)
}

// MockUserStore mocks the UserStore interface
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserStore) GetFirst(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserStore) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return m
}

// MockFoodImageStore mocks the FoodImageStore interface
type MockFoodImageStore struct {
	mock.Mock
}

func (m *MockFoodImageStore) Create(ctx context.Context, image *domain.FoodImage) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

func (m *MockFoodImageStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.FoodImage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FoodImage), args.Error(1)
}

func (m *MockFoodImageStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	offset, limit int,
) ([]*domain.FoodImage, error) {
	args := m.Called(ctx, userID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FoodImage), args.Error(1)
}

func (m *MockFoodImageStore) Update(ctx context.Context, image *domain.FoodImage) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

func (m *MockFoodImageStore) ReplaceItems(ctx context.Context, imageID uuid.UUID, items []domain.FoodItem) error {
	args := m.Called(ctx, imageID, items)
	return args.Error(0)
}

func (m *MockFoodImageStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFoodImageStore) WithTx(tx *sql.Tx) store.FoodImageStore {
	return m
}

// MockLedgerStore mocks the LedgerStore interface
type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) EnsureWeek(ctx context.Context, ledger *domain.NutrientLedger) error {
	args := m.Called(ctx, ledger)
	return args.Error(0)
}

func (m *MockLedgerStore) GetForUpdate(
	ctx context.Context,
	userID uuid.UUID,
	weekStart time.Time,
) (*domain.NutrientLedger, error) {
	args := m.Called(ctx, userID, weekStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NutrientLedger), args.Error(1)
}

func (m *MockLedgerStore) Update(ctx context.Context, ledger *domain.NutrientLedger) error {
	args := m.Called(ctx, ledger)
	return args.Error(0)
}

func (m *MockLedgerStore) GetByWeek(
	ctx context.Context,
	userID uuid.UUID,
	weekStart time.Time,
) (*domain.NutrientLedger, error) {
	args := m.Called(ctx, userID, weekStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NutrientLedger), args.Error(1)
}

func (m *MockLedgerStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.NutrientLedger, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.NutrientLedger), args.Error(1)
}

func (m *MockLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return m
}

// MockFoodHistoryStore mocks the FoodHistoryStore interface
type MockFoodHistoryStore struct {
	mock.Mock
}

func (m *MockFoodHistoryStore) Create(ctx context.Context, entry *domain.UserFoodHistory) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockFoodHistoryStore) GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.UserFoodHistory, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserFoodHistory), args.Error(1)
}

func (m *MockFoodHistoryStore) List(
	ctx context.Context,
	userID uuid.UUID,
	offset, limit int,
) ([]*domain.UserFoodHistory, error) {
	args := m.Called(ctx, userID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.UserFoodHistory), args.Error(1)
}

func (m *MockFoodHistoryStore) ListByRange(
	ctx context.Context,
	userID uuid.UUID,
	start, end time.Time,
) ([]*domain.UserFoodHistory, error) {
	args := m.Called(ctx, userID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.UserFoodHistory), args.Error(1)
}

func (m *MockFoodHistoryStore) WithTx(tx *sql.Tx) store.FoodHistoryStore {
	return m
}

// MockReceiptStore mocks the ReceiptStore interface
type MockReceiptStore struct {
	mock.Mock
}

func (m *MockReceiptStore) Create(ctx context.Context, receipt *domain.Receipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *MockReceiptStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Receipt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Receipt), args.Error(1)
}

func (m *MockReceiptStore) Update(ctx context.Context, receipt *domain.Receipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *MockReceiptStore) ReplaceLineItems(ctx context.Context, receiptID uuid.UUID, items []domain.LineItem) error {
	args := m.Called(ctx, receiptID, items)
	return args.Error(0)
}

func (m *MockReceiptStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockReceiptStore) WithTx(tx *sql.Tx) store.ReceiptStore {
	return m
}

// MockTaskStore mocks the read side of task.TaskStore.
type MockTaskStore struct {
	task.TaskStore
	mock.Mock
}

func (m *MockTaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*task.Record, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Record), args.Error(1)
}

// recordingEmitter keeps every emitted event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskRequestEvent
	err    error
}

func (e *recordingEmitter) EmitEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if e.err != nil {
		return e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

// memObjects is an in-memory ObjectStore.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (s *memObjects) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	location := "mem://" + key
	s.objects[location] = append([]byte(nil), data...)
	return location, nil
}

func (s *memObjects) Get(ctx context.Context, location string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[location]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (s *memObjects) Delete(ctx context.Context, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, location)
	s.deleted = append(s.deleted, location)
	return nil
}

// fakeRecognizer returns fixed items.
type fakeRecognizer struct {
	items    []generation.RecognizedItem
	err      error
	mimeType string
	calls    int
}

func (f *fakeRecognizer) RecognizeFoodItems(
	ctx context.Context,
	image []byte,
	mimeType string,
) ([]generation.RecognizedItem, error) {
	f.calls++
	f.mimeType = mimeType
	return f.items, f.err
}

// fakeEstimator answers from a per-food table; unknown foods fail.
type fakeEstimator struct {
	mu       sync.Mutex
	profiles map[string]domain.NutrientMap
	err      error
	calls    map[string]int
}

func newFakeEstimator(profiles map[string]domain.NutrientMap) *fakeEstimator {
	return &fakeEstimator{profiles: profiles, calls: make(map[string]int)}
}

func (f *fakeEstimator) EstimateNutrientProfile(ctx context.Context, foodName string) (*domain.NutrientProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[foodName]++
	if f.err != nil {
		return nil, f.err
	}
	nutrients, ok := f.profiles[foodName]
	if !ok {
		return nil, generation.ErrInvalidResponse
	}
	now := time.Now().UTC()
	return &domain.NutrientProfile{
		FoodName:         foodName,
		Nutrients:        nutrients.Scale(1),
		Source:           domain.ProfileSourceModel,
		LLMPromptVersion: "v1.0",
		EstimatedBy:      "test-model",
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// fakeReader returns a fixed receipt reading.
type fakeReader struct {
	reading  *generation.ReceiptReading
	err      error
	mimeType string
}

func (f *fakeReader) ReadReceipt(ctx context.Context, data []byte, mimeType string) (*generation.ReceiptReading, error) {
	f.mimeType = mimeType
	return f.reading, f.err
}

// fullNutrients returns a complete map with every nutrient set to v.
func fullNutrients(v float64) domain.NutrientMap {
	m := make(domain.NutrientMap, len(domain.Nutrients))
	for _, name := range domain.Nutrients {
		m[name] = v
	}
	return m
}
