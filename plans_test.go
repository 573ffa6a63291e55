package bursar_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar"
	audithook "github.com/xraph/bursar/audit_hook"
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/store/memory"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/types"
)

func grants(t *testing.T, h *harness, tenantID string) map[catalog.ModuleKey]*entitlement.Grant {
	t.Helper()
	list, err := h.b.ListGrants(context.Background(), tenantID)
	require.NoError(t, err)

	out := make(map[catalog.ModuleKey]*entitlement.Grant, len(list))
	for _, g := range list {
		out[g.ModuleKey] = g
	}
	return out
}

func modules(keys ...catalog.ModuleKey) []plan.ModuleGrant {
	out := make([]plan.ModuleGrant, len(keys))
	for i, k := range keys {
		out[i] = plan.ModuleGrant{ModuleKey: k, Enabled: true}
	}
	return out
}

func TestUpdatePlanRecomputesOnlyEntitledSubscribers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{
		Name: "Campus", Currency: "usd", Price: 9900,
		Modules: modules(catalog.ModuleFinance),
	})
	require.NoError(t, err)

	h.subscribe(t, "active-school", p.ID, subscription.StatusActive)
	h.subscribe(t, "trial-school", p.ID, subscription.StatusTrialing)
	h.subscribe(t, "gone-school", p.ID, subscription.StatusCanceled)

	newModules := modules(catalog.ModuleFinance, catalog.ModuleTransport)
	_, err = h.b.UpdatePlan(ctx, bursar.UpdatePlanInput{PlanID: p.ID, Modules: &newModules})
	require.NoError(t, err)

	for _, tenantID := range []string{"active-school", "trial-school"} {
		g := grants(t, h, tenantID)
		require.Contains(t, g, catalog.ModuleTransport, tenantID)
		assert.True(t, g[catalog.ModuleTransport].Enabled)
		assert.Equal(t, p.ID.String(), g[catalog.ModuleTransport].SourcePlanID.String())
		assert.True(t, g[catalog.ModuleFinance].Enabled)
	}
	assert.Empty(t, grants(t, h, "gone-school"))

	recomputed := h.rec.byAction(audithook.ActionEntitlementsRecomputed)
	require.Len(t, recomputed, 1)
	assert.ElementsMatch(t, []string{"active-school", "trial-school"}, recomputed[0].Metadata["updated_tenants"])
}

func TestRecomputeDisablesDroppedModules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{
		Name: "Campus", Currency: "usd",
		Modules: modules(catalog.ModuleFinance, catalog.ModuleLibrary),
	})
	require.NoError(t, err)
	other, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Transport add-on", Currency: "usd"})
	require.NoError(t, err)

	h.subscribe(t, "school", p.ID, subscription.StatusActive)
	h.subscribe(t, "school", other.ID, subscription.StatusActive)

	_, err = h.b.RecomputePlanEntitlements(ctx, p.ID, p.Modules)
	require.NoError(t, err)
	_, err = h.b.RecomputePlanEntitlements(ctx, other.ID, modules(catalog.ModuleTransport))
	require.NoError(t, err)
	_, err = h.b.SetGrant(ctx, "school", catalog.ModuleHostel, true)
	require.NoError(t, err)

	// Library is dropped; finance stays.
	_, err = h.b.RecomputePlanEntitlements(ctx, p.ID, modules(catalog.ModuleFinance))
	require.NoError(t, err)

	g := grants(t, h, "school")
	require.Len(t, g, 4, "grants are disabled, never deleted")
	assert.True(t, g[catalog.ModuleFinance].Enabled)
	assert.False(t, g[catalog.ModuleLibrary].Enabled)
	assert.True(t, g[catalog.ModuleTransport].Enabled, "other plan's grant untouched")
	assert.True(t, g[catalog.ModuleHostel].Enabled, "direct override untouched")
	assert.True(t, g[catalog.ModuleHostel].SourcePlanID.IsNil())
}

func TestRecomputeKeepsDirectOverrideOnListedModule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{
		Name: "Campus", Currency: "usd",
		Modules: modules(catalog.ModuleFinance),
	})
	require.NoError(t, err)
	h.subscribe(t, "school", p.ID, subscription.StatusActive)

	_, err = h.b.RecomputePlanEntitlements(ctx, p.ID, p.Modules)
	require.NoError(t, err)
	require.Equal(t, p.ID.String(), grants(t, h, "school")[catalog.ModuleFinance].SourcePlanID.String())

	// The school turns finance off directly, then the plan gains library.
	_, err = h.b.SetGrant(ctx, "school", catalog.ModuleFinance, false)
	require.NoError(t, err)

	updated := modules(catalog.ModuleFinance, catalog.ModuleLibrary)
	_, err = h.b.UpdatePlan(ctx, bursar.UpdatePlanInput{PlanID: p.ID, Modules: &updated})
	require.NoError(t, err)

	g := grants(t, h, "school")
	assert.False(t, g[catalog.ModuleFinance].Enabled, "direct override kept")
	assert.True(t, g[catalog.ModuleFinance].SourcePlanID.IsNil())
	assert.True(t, g[catalog.ModuleLibrary].Enabled)
	assert.Equal(t, p.ID.String(), g[catalog.ModuleLibrary].SourcePlanID.String())

	res, err := h.b.Entitled(ctx, "school", string(catalog.ModuleFinance))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, entitlement.ReasonGrantDisabled, res.Reason)
}

func TestRecomputeDuplicateModulesLastWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Campus", Currency: "usd"})
	require.NoError(t, err)
	h.subscribe(t, "school", p.ID, subscription.StatusActive)

	_, err = h.b.RecomputePlanEntitlements(ctx, p.ID, []plan.ModuleGrant{
		{ModuleKey: catalog.ModuleLMS, Enabled: true},
		{ModuleKey: catalog.ModuleLMS, Enabled: false},
	})
	require.NoError(t, err)

	g := grants(t, h, "school")
	require.Len(t, g, 1)
	assert.False(t, g[catalog.ModuleLMS].Enabled)
}

func TestRecomputeWithoutSubscribersIsNoop(t *testing.T) {
	h := newHarness(t)

	p, err := h.b.CreatePlan(context.Background(), bursar.CreatePlanInput{
		Name: "Campus", Currency: "usd", Modules: modules(catalog.ModuleFinance),
	})
	require.NoError(t, err)

	updated, err := h.b.RecomputePlanEntitlements(context.Background(), p.ID, p.Modules)
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.Empty(t, h.rec.byAction(audithook.ActionEntitlementsRecomputed))
}

// flakyGrants fails grant writes for one tenant.
type flakyGrants struct {
	*memory.Store
	tenantID string
}

var errGrantWrite = errors.New("grant write failed")

func (f *flakyGrants) UpsertGrant(ctx context.Context, g *entitlement.Grant) error {
	if g.TenantID == f.tenantID {
		return errGrantWrite
	}
	return f.Store.UpsertGrant(ctx, g)
}

func TestRecomputeIsolatesTenantFailures(t *testing.T) {
	mem := memory.New()
	h := newHarnessWithStore(t, &flakyGrants{Store: mem, tenantID: "broken"})
	ctx := context.Background()

	p, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Campus", Currency: "usd"})
	require.NoError(t, err)
	h.subscribe(t, "ok-1", p.ID, subscription.StatusActive)
	h.subscribe(t, "broken", p.ID, subscription.StatusActive)
	h.subscribe(t, "ok-2", p.ID, subscription.StatusTrialing)

	updated, err := h.b.RecomputePlanEntitlements(ctx, p.ID, modules(catalog.ModuleHR))
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"ok-1", "ok-2"}, updated)

	var multi bursar.MultiError
	require.ErrorAs(t, err, &multi)
	require.Len(t, multi.Errors, 1)

	var te *bursar.TenantError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "broken", te.TenantID)
	assert.ErrorIs(t, err, errGrantWrite)

	for _, tenantID := range []string{"ok-1", "ok-2"} {
		g, err := mem.GetGrant(ctx, tenantID, catalog.ModuleHR)
		require.NoError(t, err)
		assert.True(t, g.Enabled)
	}
}

func TestCreatePlanValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Campus", Currency: "KES", Price: 250000})
	require.NoError(t, err)
	assert.Equal(t, plan.StatusActive, p.Status)
	assert.Equal(t, plan.IntervalMonthly, p.Interval)
	assert.True(t, p.Price.Equal(types.New(250000, "kes")))

	_, err = h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Campus", Currency: "usd"})
	require.ErrorIs(t, err, bursar.ErrDuplicatePlanName)

	_, err = h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Other", Currency: "usd", Modules: modules("teleportation")})
	require.ErrorIs(t, err, bursar.ErrUnknownModule)

	_, err = h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Negative", Currency: "usd", Price: -1})
	assert.True(t, bursar.IsValidation(err))

	renamed := "Campus"
	second, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Village", Currency: "usd"})
	require.NoError(t, err)
	_, err = h.b.UpdatePlan(ctx, bursar.UpdatePlanInput{PlanID: second.ID, Name: &renamed})
	require.ErrorIs(t, err, bursar.ErrDuplicatePlanName)
}

func TestChangePlan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	basic, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Basic", Currency: "usd", Price: 4900, Modules: modules(catalog.ModuleFinance)})
	require.NoError(t, err)
	pro, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Pro", Currency: "usd", Price: 9900})
	require.NoError(t, err)

	sub, err := h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "t1", PlanID: basic.ID, PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, h.clock.Now(), sub.CurrentPeriodStart)
	assert.Equal(t, h.clock.Now().Add(bursar.BillingPeriod), sub.CurrentPeriodEnd)
	require.Len(t, sub.Charges, 1)
	assert.True(t, sub.Charges[0].Amount.Equal(types.USD(4900)))
	assert.Equal(t, "card", sub.Charges[0].PaymentMethod)

	_, err = h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "t1", PlanID: basic.ID})
	require.ErrorIs(t, err, bursar.ErrAlreadyOnPlan)

	sub, err = h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "t1", PlanID: pro.ID})
	require.NoError(t, err)
	assert.Equal(t, pro.ID.String(), sub.PlanID.String())
	require.Len(t, sub.Charges, 2)
	assert.True(t, sub.Charges[1].Amount.Equal(types.USD(9900)))

	// Changing plans does not push module grants.
	assert.Empty(t, grants(t, h, "t1"))

	changes := h.rec.byAction(audithook.ActionSubscriptionPlanChanged)
	require.Len(t, changes, 2)

	stored, err := h.b.GetSubscription(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID.String(), stored.ID.String())
}

func TestChangePlanGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Legacy", Currency: "usd", Status: plan.StatusInactive})
	require.NoError(t, err)

	_, err = h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "t1", PlanID: p.ID})
	require.ErrorIs(t, err, bursar.ErrPlanInactive)

	_, err = h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "ghost", PlanID: p.ID})
	require.ErrorIs(t, err, bursar.ErrTenantNotFound)

	_, err = h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "t1"})
	assert.True(t, bursar.IsValidation(err))
}

func TestChangePlanAfterCancelAllowsSamePlan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Basic", Currency: "usd", Price: 100})
	require.NoError(t, err)
	_, err = h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "t1", PlanID: p.ID})
	require.NoError(t, err)

	sub, err := h.b.CancelSubscription(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)

	sub, err = h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "t1", PlanID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Nil(t, sub.CanceledAt)
}

func TestStaticPriceBook(t *testing.T) {
	prices := bursar.StaticPriceBook{}
	h := newHarness(t, bursar.WithPriceBook(prices))
	ctx := context.Background()

	p, err := h.b.CreatePlan(ctx, bursar.CreatePlanInput{Name: "Basic", Currency: "usd", Price: 100})
	require.NoError(t, err)

	_, err = h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "t1", PlanID: p.ID})
	require.ErrorIs(t, err, bursar.ErrPlanNotFound)

	prices[p.ID.String()] = types.USD(75)
	sub, err := h.b.ChangePlan(ctx, bursar.ChangePlanInput{TenantID: "t1", PlanID: p.ID})
	require.NoError(t, err)
	assert.True(t, sub.Charges[0].Amount.Equal(types.USD(75)))
}
