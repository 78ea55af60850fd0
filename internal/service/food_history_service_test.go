package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

type foodHistoryFixture struct {
	svc     FoodHistoryService
	history *MockFoodHistoryStore
	ledgers *MockLedgerStore
	images  *MockFoodImageStore
	tx      *fakeTransactor
}

func newFoodHistoryFixture(t *testing.T) *foodHistoryFixture {
	t.Helper()
	f := &foodHistoryFixture{
		history: &MockFoodHistoryStore{},
		ledgers: &MockLedgerStore{},
		images:  &MockFoodImageStore{},
		tx:      &fakeTransactor{},
	}
	svc, err := NewFoodHistoryService(f.history, f.ledgers, f.images, f.tx, nil)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestFoodHistoryCreate_UpdatesLedger(t *testing.T) {
	f := newFoodHistoryFixture(t)
	userID := uuid.New()
	meal := time.Date(2026, 2, 18, 19, 30, 0, 0, time.UTC)
	ledger, err := domain.NewNutrientLedger(userID, meal, domain.DataSourceImage)
	require.NoError(t, err)

	f.history.On("Create", mock.Anything, mock.MatchedBy(func(e *domain.UserFoodHistory) bool {
		return e.UserID == userID && e.MealType == domain.MealTypeDinner
	})).Return(nil).Once()
	f.ledgers.On("EnsureWeek", mock.Anything, mock.Anything).Return(nil).Once()
	f.ledgers.On("GetForUpdate", mock.Anything, userID, sameWeek(meal)).Return(ledger, nil).Once()
	f.ledgers.On("Update", mock.Anything, mock.MatchedBy(func(l *domain.NutrientLedger) bool {
		return l.DataSource == domain.DataSourceManual && l.Nutrients["calcium_mg"] == 300
	})).Return(nil).Once()

	entry, err := f.svc.Create(context.Background(), userID, FoodHistoryInput{
		MealDatetime:   meal,
		MealType:       domain.MealTypeDinner,
		TotalNutrients: domain.NutrientMap{"calcium_mg": 300},
	})
	require.NoError(t, err)
	f.history.AssertExpectations(t)
	f.ledgers.AssertExpectations(t)
	assert.Equal(t, 1, f.tx.calls)
	assert.Equal(t, meal, entry.MealDatetime)
}

func TestFoodHistoryCreate_LinkedImage(t *testing.T) {
	owner := uuid.New()
	img, err := domain.NewFoodImage(owner, "mem://x.png", time.Time{})
	require.NoError(t, err)

	t.Run("other user's image", func(t *testing.T) {
		f := newFoodHistoryFixture(t)
		f.images.On("GetByID", mock.Anything, img.ID).Return(img, nil)

		_, err := f.svc.Create(context.Background(), uuid.New(), FoodHistoryInput{
			MealDatetime: time.Now(),
			MealType:     domain.MealTypeLunch,
			FoodImageID:  &img.ID,
		})
		assert.ErrorIs(t, err, store.ErrFoodImageNotFound)
		assert.Zero(t, f.tx.calls)
	})

	t.Run("missing image", func(t *testing.T) {
		f := newFoodHistoryFixture(t)
		missing := uuid.New()
		f.images.On("GetByID", mock.Anything, missing).Return(nil, store.ErrFoodImageNotFound)

		_, err := f.svc.Create(context.Background(), owner, FoodHistoryInput{
			MealDatetime: time.Now(),
			MealType:     domain.MealTypeLunch,
			FoodImageID:  &missing,
		})
		assert.ErrorIs(t, err, store.ErrFoodImageNotFound)
	})
}

func TestFoodHistoryCreate_Validation(t *testing.T) {
	f := newFoodHistoryFixture(t)

	_, err := f.svc.Create(context.Background(), uuid.New(), FoodHistoryInput{
		MealDatetime: time.Now(),
		MealType:     "brunch",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Create(context.Background(), uuid.New(), FoodHistoryInput{
		MealDatetime:   time.Now(),
		MealType:       domain.MealTypeSnack,
		TotalNutrients: domain.NutrientMap{"caffeine_mg": 80},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownNutrient)
	assert.Zero(t, f.tx.calls)
}

func TestFoodHistoryCreate_LedgerFailureRollsBack(t *testing.T) {
	f := newFoodHistoryFixture(t)
	f.history.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.ledgers.On("EnsureWeek", mock.Anything, mock.Anything).Return(store.ErrInvalidEntity)

	_, err := f.svc.Create(context.Background(), uuid.New(), FoodHistoryInput{
		MealDatetime: time.Now(),
		MealType:     domain.MealTypeBreakfast,
	})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestFoodHistoryGetAndList(t *testing.T) {
	f := newFoodHistoryFixture(t)
	userID := uuid.New()
	id := uuid.New()

	f.history.On("GetByID", mock.Anything, userID, id).Return(nil, store.ErrFoodHistoryNotFound)
	_, err := f.svc.Get(context.Background(), userID, id)
	assert.ErrorIs(t, err, store.ErrFoodHistoryNotFound)

	f.history.On("List", mock.Anything, userID, 0, DefaultPageLimit).Return([]*domain.UserFoodHistory{}, nil).Once()
	_, err = f.svc.List(context.Background(), userID, 0, 0)
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	f.history.On("ListByRange", mock.Anything, userID, start, end).Return([]*domain.UserFoodHistory{}, nil).Once()
	_, err = f.svc.ListRange(context.Background(), userID, start, end)
	require.NoError(t, err)

	_, err = f.svc.ListRange(context.Background(), userID, end, start)
	assert.ErrorIs(t, err, domain.ErrValidation)
	f.history.AssertExpectations(t)
}
