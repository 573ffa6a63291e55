package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/store"
	"github.com/xraph/bursar/store/sqlite"
	"github.com/xraph/bursar/store/storetest"
	"github.com/xraph/bursar/types"
)

func open(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, sqlite.DSN(filepath.Join(t.TempDir(), "bursar.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return open(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bursar.db")

	s, err := sqlite.Open(ctx, sqlite.DSN(path))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))

	p := &plan.Plan{
		Entity: types.NewEntityAt(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		ID:     id.NewPlanID(), Name: "Campus Plus",
		Status: plan.StatusActive, Currency: "usd", Interval: plan.IntervalMonthly,
	}
	require.NoError(t, s.CreatePlan(ctx, p))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(ctx, sqlite.DSN(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	got, err := s.GetPlanByName(ctx, "campus plus")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))

	_, err = s.GetPlan(ctx, id.NewPlanID())
	assert.ErrorIs(t, err, bursar.ErrPlanNotFound)
}
