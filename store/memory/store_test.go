package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/store"
	"github.com/xraph/bursar/store/memory"
	"github.com/xraph/bursar/store/storetest"
	"github.com/xraph/bursar/tenant"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestSnapshotCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := memory.New().WithClock(func() time.Time { return now })

	snap := entitlement.Resolve("t1", catalog.Default(), mustEdition(t, "premium"), now)
	require.NoError(t, s.SetSnapshot(ctx, snap, time.Minute))

	got, err := s.GetSnapshot(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Modules[catalog.ModuleHR])

	now = now.Add(time.Minute)
	_, err = s.GetSnapshot(ctx, "t1")
	assert.ErrorIs(t, err, bursar.ErrCacheMiss)

	require.NoError(t, s.SetSnapshot(ctx, snap, time.Hour))
	require.NoError(t, s.InvalidateSnapshot(ctx, "t1"))
	_, err = s.GetSnapshot(ctx, "t1")
	assert.ErrorIs(t, err, bursar.ErrCacheMiss)
}

func TestRecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	in := &tenant.Tenant{ID: "t1", Name: "Greenfield", Metadata: map[string]string{"k": "v"}}
	require.NoError(t, s.CreateTenant(ctx, in))
	in.Metadata["k"] = "changed"

	out, err := s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "v", out.Metadata["k"])

	out.Name = "mutated"
	again, err := s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Greenfield", again.Name)
}

func mustEdition(t *testing.T, code string) catalog.Edition {
	t.Helper()
	e, ok := catalog.Default().ByCode(code)
	require.True(t, ok)
	return e
}
