package bursar_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar"
	audithook "github.com/xraph/bursar/audit_hook"
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/tenant"
)

func TestResolveEntitlementsFromEdition(t *testing.T) {
	h := newHarness(t)

	snap, err := h.b.ResolveEntitlements(context.Background(), "t1")
	require.NoError(t, err)

	assert.False(t, snap.RequiresEditionSelection)
	assert.Equal(t, "edn_premium", snap.EditionID)
	assert.Equal(t, catalog.EditionPremium, snap.EditionCode)
	assert.Equal(t, catalog.DefaultVersion, snap.CatalogVersion)
	assert.Len(t, snap.Modules, len(catalog.AllModules))
	assert.Len(t, snap.Features, len(catalog.AllFeatures))
	assert.True(t, snap.Modules[catalog.ModuleFinance])
	assert.True(t, snap.Modules[catalog.ModuleLMS])
	assert.False(t, snap.Modules[catalog.ModuleHostel])
	assert.True(t, snap.Features[catalog.FeatureOnlinePayments])
	assert.False(t, snap.Features[catalog.FeatureSSO])
	require.NotNil(t, snap.Limits.MaxSchools)
	assert.Equal(t, 3, *snap.Limits.MaxSchools)
}

func TestResolveEntitlementsWithoutEdition(t *testing.T) {
	h := newHarness(t)

	snap, err := h.b.ResolveEntitlements(context.Background(), "t2")
	require.NoError(t, err)

	assert.True(t, snap.RequiresEditionSelection)
	assert.Empty(t, snap.EditionID)
	require.Len(t, snap.Modules, len(catalog.AllModules))
	require.Len(t, snap.Features, len(catalog.AllFeatures))
	for k, v := range snap.Modules {
		assert.False(t, v, "module %s", k)
	}
	for k, v := range snap.Features {
		assert.False(t, v, "feature %s", k)
	}
}

func TestResolveEntitlementsMetadataFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A stale primary reference falls through to the embedded code.
	require.NoError(t, h.store.CreateTenant(ctx, &tenant.Tenant{
		ID:        "t3",
		EditionID: "edn_retired",
		Metadata:  map[string]string{tenant.MetadataEditionCode: "Standard"},
	}))

	snap, err := h.b.ResolveEntitlements(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, catalog.EditionStandard, snap.EditionCode)
	assert.True(t, snap.Modules[catalog.ModuleLibrary])
	assert.False(t, snap.Modules[catalog.ModuleHR])

	require.NoError(t, h.store.CreateTenant(ctx, &tenant.Tenant{
		ID:       "t4",
		Metadata: map[string]string{tenant.MetadataEditionCode: "gold"},
	}))
	snap, err = h.b.ResolveEntitlements(ctx, "t4")
	require.NoError(t, err)
	assert.True(t, snap.RequiresEditionSelection)
}

func TestResolveEntitlementsTenantNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.b.ResolveEntitlements(context.Background(), "nope")
	require.ErrorIs(t, err, bursar.ErrTenantNotFound)
	assert.True(t, bursar.IsNotFound(err))
}

func TestResolveEntitlementsCustomCatalog(t *testing.T) {
	c := catalog.MustNew(7,
		catalog.Keys{Modules: []catalog.ModuleKey{"timetable", "exams"}, Features: []catalog.FeatureKey{"sso"}},
		catalog.Edition{ID: "e-basic", Code: "basic", Modules: []catalog.ModuleKey{"timetable"}, IsActive: true},
	)
	h := newHarness(t, bursar.WithCatalog(c))
	ctx := context.Background()

	snap, err := h.b.SelectEdition(ctx, "t2", "basic")
	require.NoError(t, err)
	assert.Equal(t, map[catalog.ModuleKey]bool{"timetable": true, "exams": false}, snap.Modules)
	assert.Equal(t, map[catalog.FeatureKey]bool{"sso": false}, snap.Features)
	assert.Equal(t, 7, snap.CatalogVersion)

	// t1 references a premium edition this catalog does not carry.
	snap, err = h.b.ResolveEntitlements(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, snap.RequiresEditionSelection)
}

func TestSelectEditionInvalidatesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	before, err := h.b.ResolveEntitlements(ctx, "t2")
	require.NoError(t, err)
	require.True(t, before.RequiresEditionSelection)

	_, err = h.b.SelectEdition(ctx, "t2", catalog.EditionStarter)
	require.NoError(t, err)

	after, err := h.b.ResolveEntitlements(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, after.RequiresEditionSelection)
	assert.True(t, after.Modules[catalog.ModuleAcademics])
	assert.False(t, after.Modules[catalog.ModuleFinance])

	require.Len(t, h.rec.byAction(audithook.ActionEditionSelected), 1)

	_, err = h.b.SelectEdition(ctx, "t2", "gold")
	require.ErrorIs(t, err, bursar.ErrUnknownEdition)
	assert.True(t, bursar.IsValidation(err))
}

func TestEntitled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.b.SetGrant(ctx, "t1", catalog.ModuleHostel, true)
	require.NoError(t, err)
	_, err = h.b.SetGrant(ctx, "t1", catalog.ModuleFinance, false)
	require.NoError(t, err)

	tests := []struct {
		tenant  string
		key     string
		allowed bool
		reason  string
	}{
		{"t1", "academics", true, entitlement.ReasonEdition},
		{"t1", "hostel", true, entitlement.ReasonGrant},
		{"t1", "finance", false, entitlement.ReasonGrantDisabled},
		{"t1", "analytics", false, entitlement.ReasonNotInEdition},
		{"t1", "online_payments", true, entitlement.ReasonEdition},
		{"t1", "teleportation", false, entitlement.ReasonUnknownKey},
		{"t2", "academics", false, entitlement.ReasonRequiresSelection},
	}

	for _, tt := range tests {
		t.Run(tt.tenant+"/"+tt.key, func(t *testing.T) {
			res, err := h.b.Entitled(ctx, tt.tenant, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, res.Allowed)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}

	_, err = h.b.SetGrant(ctx, "t1", "teleportation", true)
	require.ErrorIs(t, err, bursar.ErrUnknownModule)
}
