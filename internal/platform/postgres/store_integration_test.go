//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/platform/postgres"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/testdb"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func createUser(t *testing.T, tx *sql.Tx, email string) *domain.User {
	t.Helper()
	user, err := domain.NewUser(email, "password123")
	require.NoError(t, err)
	require.NoError(t, postgres.NewPostgresUserStore(tx, bcrypt.MinCost, quietLogger).Create(context.Background(), user))
	return user
}

func TestUserStoreIntegration(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		users := postgres.NewPostgresUserStore(tx, bcrypt.MinCost, quietLogger)
		user := createUser(t, tx, "Grocer@Example.com")

		got, err := users.GetByEmail(ctx, "grocer@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, 1, got.Version)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(got.HashedPassword), []byte("password123")))

		got.UpdateProfile(map[string]any{"age": float64(34)}, nil)
		require.NoError(t, users.Update(ctx, got))
		reloaded, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, reloaded.Version)
		assert.Equal(t, float64(34), reloaded.Demographics["age"])

		at := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, users.UpdateLastLogin(ctx, user.ID, at))
		reloaded, err = users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.LastLogin)
		assert.WithinDuration(t, at, *reloaded.LastLogin, time.Second)

		_, err = users.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrUserNotFound)

		// The unique violation aborts the transaction, so it runs last.
		dup, err := domain.NewUser("grocer@example.com", "password456")
		require.NoError(t, err)
		assert.ErrorIs(t, users.Create(ctx, dup), store.ErrEmailExists)
	})
}

func TestLedgerStoreIntegration(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		user := createUser(t, tx, "ledger@example.com")
		ledgers := postgres.NewPostgresLedgerStore(tx, quietLogger)

		at := time.Date(2026, 5, 13, 18, 0, 0, 0, time.UTC)
		fresh, err := domain.NewNutrientLedger(user.ID, at, domain.DataSourceImage)
		require.NoError(t, err)
		require.NoError(t, ledgers.EnsureWeek(ctx, fresh))

		second, err := domain.NewNutrientLedger(user.ID, at.Add(24*time.Hour), domain.DataSourceManual)
		require.NoError(t, err)
		require.NoError(t, ledgers.EnsureWeek(ctx, second), "a second ensure for the same week is a no-op")

		ledger, err := ledgers.GetForUpdate(ctx, user.ID, domain.WeekStart(at))
		require.NoError(t, err)
		require.NoError(t, ledger.Accumulate(domain.NutrientMap{domain.NutrientIron: 4.5}, domain.DataSourceImage))
		require.NoError(t, ledgers.Update(ctx, ledger))

		got, err := ledgers.GetByWeek(ctx, user.ID, domain.WeekStart(at))
		require.NoError(t, err)
		assert.InDelta(t, 4.5, got.Nutrients[domain.NutrientIron], 1e-9)
		assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), got.WeekStart.UTC())

		list, err := ledgers.ListByUser(ctx, user.ID, 12)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = ledgers.GetByWeek(ctx, user.ID, domain.WeekStart(at.AddDate(0, 0, 7)))
		assert.ErrorIs(t, err, store.ErrLedgerNotFound)
	})
}

func TestFoodHistoryStoreIntegration(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		user := createUser(t, tx, "history@example.com")
		history := postgres.NewPostgresFoodHistoryStore(tx, quietLogger)

		base := time.Date(2026, 5, 12, 8, 0, 0, 0, time.UTC)
		for i, meal := range []domain.MealType{domain.MealTypeBreakfast, domain.MealTypeLunch, domain.MealTypeDinner} {
			entry, err := domain.NewUserFoodHistory(user.ID, base.Add(time.Duration(i)*5*time.Hour), meal, nil,
				domain.NutrientMap{domain.NutrientIron: float64(i + 1)})
			require.NoError(t, err)
			require.NoError(t, history.Create(ctx, entry))
		}

		all, err := history.List(ctx, user.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, domain.MealTypeDinner, all[0].MealType, "newest meal first")

		ranged, err := history.ListByRange(ctx, user.ID, base, base.Add(6*time.Hour))
		require.NoError(t, err)
		assert.Len(t, ranged, 2)

		_, err = history.GetByID(ctx, uuid.New(), all[0].ID)
		assert.ErrorIs(t, err, store.ErrFoodHistoryNotFound, "entries of other users are not visible")
	})
}
