// Package storetest is a behavioural suite every store.Store backend must
// pass. Backends call Run from their own tests with a factory returning an
// empty, migrated store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/store"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/tenant"
	"github.com/xraph/bursar/types"
)

// Factory returns a fresh, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

var base = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

// Run executes the suite against the stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Tenants", func(t *testing.T) { testTenants(t, newStore(t)) })
	t.Run("Plans", func(t *testing.T) { testPlans(t, newStore(t)) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, newStore(t)) })
	t.Run("Grants", func(t *testing.T) { testGrants(t, newStore(t)) })
	t.Run("Invoices", func(t *testing.T) { testInvoices(t, newStore(t)) })
	t.Run("InvoicePeriodLock", func(t *testing.T) { testInvoicePeriodLock(t, newStore(t)) })
	t.Run("InvoiceCompareAndSet", func(t *testing.T) { testInvoiceCompareAndSet(t, newStore(t)) })
	t.Run("InvoicesDue", func(t *testing.T) { testInvoicesDue(t, newStore(t)) })
	t.Run("Payments", func(t *testing.T) { testPayments(t, newStore(t)) })
	t.Run("PaymentUniqueExternalID", func(t *testing.T) { testPaymentUniqueExternalID(t, newStore(t)) })
	t.Run("PaymentLinkSetOnce", func(t *testing.T) { testPaymentLinkSetOnce(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func ts(d time.Duration) types.Entity {
	return types.NewEntityAt(base.Add(d))
}

func testTenants(t *testing.T, s store.Store) {
	ctx := context.Background()

	t1 := &tenant.Tenant{Entity: ts(0), ID: "t1", Name: "Greenfield Academy", EditionID: "edn_standard",
		Metadata: map[string]string{tenant.MetadataEditionCode: "standard"}}
	require.NoError(t, s.CreateTenant(ctx, t1))
	require.NoError(t, s.CreateTenant(ctx, &tenant.Tenant{Entity: ts(time.Minute), ID: "t2", Name: "Hillside"}))

	err := s.CreateTenant(ctx, &tenant.Tenant{Entity: ts(0), ID: "t1", Name: "dup"})
	assert.ErrorIs(t, err, bursar.ErrAlreadyExists)

	got, err := s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Greenfield Academy", got.Name)
	assert.Equal(t, "standard", got.EditionCode())

	got.EditionID = "edn_premium"
	got.Touch(base.Add(time.Hour))
	require.NoError(t, s.UpdateTenant(ctx, got))

	again, err := s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "edn_premium", again.EditionID)

	_, err = s.GetTenant(ctx, "missing")
	assert.ErrorIs(t, err, bursar.ErrTenantNotFound)
	assert.ErrorIs(t, s.UpdateTenant(ctx, &tenant.Tenant{ID: "missing"}), bursar.ErrTenantNotFound)

	premium, err := s.ListTenants(ctx, tenant.ListOpts{EditionID: "edn_premium"})
	require.NoError(t, err)
	require.Len(t, premium, 1)
	assert.Equal(t, "t1", premium[0].ID)

	all, err := s.ListTenants(ctx, tenant.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "t2", all[0].ID)
}

func newPlan(name string, modules ...plan.ModuleGrant) *plan.Plan {
	return &plan.Plan{
		Entity:   ts(0),
		ID:       id.NewPlanID(),
		Name:     name,
		Status:   plan.StatusActive,
		Currency: "usd",
		Price:    types.USD(4900),
		Interval: plan.IntervalMonthly,
		Modules:  modules,
	}
}

func testPlans(t *testing.T, s store.Store) {
	ctx := context.Background()

	p := newPlan("Growth", plan.ModuleGrant{ModuleKey: catalog.ModuleFinance, Enabled: true})
	require.NoError(t, s.CreatePlan(ctx, p))

	err := s.CreatePlan(ctx, newPlan("growth"))
	assert.ErrorIs(t, err, bursar.ErrDuplicatePlanName, "names are unique regardless of case")

	got, err := s.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID.String(), got.ID.String())
	assert.True(t, got.Price.Equal(types.USD(4900)))
	require.Len(t, got.Modules, 1)
	assert.Equal(t, catalog.ModuleFinance, got.Modules[0].ModuleKey)

	byName, err := s.GetPlanByName(ctx, "GROWTH")
	require.NoError(t, err)
	assert.Equal(t, p.ID.String(), byName.ID.String())

	other := newPlan("Basic")
	other.Status = plan.StatusInactive
	require.NoError(t, s.CreatePlan(ctx, other))

	other.Name = "Growth"
	assert.ErrorIs(t, s.UpdatePlan(ctx, other), bursar.ErrDuplicatePlanName)

	other.Name = "Basic Plus"
	other.Modules = []plan.ModuleGrant{{ModuleKey: catalog.ModuleHR, Enabled: false}}
	require.NoError(t, s.UpdatePlan(ctx, other))

	active, err := s.ListPlans(ctx, plan.ListOpts{Status: plan.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Growth", active[0].Name)

	_, err = s.GetPlan(ctx, id.NewPlanID())
	assert.ErrorIs(t, err, bursar.ErrPlanNotFound)
}

func testSubscriptions(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPlan("Growth")
	require.NoError(t, s.CreatePlan(ctx, p))

	older := &subscription.Subscription{
		Entity: ts(0), ID: id.NewSubscriptionID(), TenantID: "t1", PlanID: p.ID,
		Status: subscription.StatusCanceled, CurrentPeriodStart: base, CurrentPeriodEnd: base.AddDate(0, 1, 0),
	}
	newer := &subscription.Subscription{
		Entity: ts(time.Hour), ID: id.NewSubscriptionID(), TenantID: "t1", PlanID: p.ID,
		Status: subscription.StatusActive, BillingEmail: "fees@school.test",
		CurrentPeriodStart: base, CurrentPeriodEnd: base.AddDate(0, 1, 0),
		Charges: []subscription.Charge{{
			ID: id.NewChargeID(), Description: "Plan change to Growth", PlanID: p.ID,
			Amount: types.USD(4900), RecordedAt: base,
		}},
	}
	require.NoError(t, s.CreateSubscription(ctx, older))
	require.NoError(t, s.CreateSubscription(ctx, newer))

	got, err := s.GetSubscriptionByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID.String(), got.ID.String(), "most recent subscription wins")
	require.Len(t, got.Charges, 1)
	assert.True(t, got.Charges[0].Amount.Equal(types.USD(4900)))

	now := base.Add(2 * time.Hour)
	got.Status = subscription.StatusCanceled
	got.CanceledAt = &now
	require.NoError(t, s.UpdateSubscription(ctx, got))

	reread, err := s.GetSubscription(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, reread.Status)
	require.NotNil(t, reread.CanceledAt)
	assert.True(t, reread.CanceledAt.Equal(now))

	byPlan, err := s.ListSubscriptions(ctx, subscription.ListOpts{PlanID: p.ID})
	require.NoError(t, err)
	assert.Len(t, byPlan, 2)

	_, err = s.GetSubscriptionByTenant(ctx, "nobody")
	assert.ErrorIs(t, err, bursar.ErrSubscriptionNotFound)
}

func testGrants(t *testing.T, s store.Store) {
	ctx := context.Background()
	planID := id.NewPlanID()

	g := &entitlement.Grant{
		ID: id.NewGrantID(), TenantID: "t1", ModuleKey: catalog.ModuleHostel, Enabled: true,
		SourcePlanID: planID, CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, s.UpsertGrant(ctx, g))
	require.NoError(t, s.UpsertGrant(ctx, &entitlement.Grant{
		ID: id.NewGrantID(), TenantID: "t1", ModuleKey: catalog.ModuleLMS, Enabled: true,
		CreatedAt: base, UpdatedAt: base,
	}))

	// A second upsert for the same key replaces the row in place.
	require.NoError(t, s.UpsertGrant(ctx, &entitlement.Grant{
		ID: id.NewGrantID(), TenantID: "t1", ModuleKey: catalog.ModuleHostel, Enabled: false,
		SourcePlanID: planID, CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour),
	}))

	got, err := s.GetGrant(ctx, "t1", catalog.ModuleHostel)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, g.ID.String(), got.ID.String())

	all, err := s.ListGrants(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bySource, err := s.ListGrantsBySource(ctx, "t1", planID)
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, catalog.ModuleHostel, bySource[0].ModuleKey)

	_, err = s.GetGrant(ctx, "t2", catalog.ModuleHostel)
	assert.True(t, errors.Is(err, bursar.ErrNotFound), "got %v", err)
}

func newInvoice(tenantID, editionID string, start time.Time, total int64) *invoice.Invoice {
	invID := id.NewInvoiceID()
	inv := &invoice.Invoice{
		Entity:      types.NewEntityAt(start),
		ID:          invID,
		TenantID:    tenantID,
		EditionID:   editionID,
		Status:      invoice.StatusDraft,
		Currency:    "usd",
		Subtotal:    types.USD(total),
		Tax:         types.USD(0),
		Discount:    types.USD(0),
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 1, 0),
		LineItems: []invoice.LineItem{{
			ID: id.NewLineItemID(), Description: "Subscription", Quantity: 1,
			UnitAmount: types.USD(total), Amount: types.USD(total),
		}},
	}
	inv.Recalculate()
	inv.InvoiceNumber = invoice.NewNumber(invID, start)
	return inv
}

func testInvoices(t *testing.T, s store.Store) {
	ctx := context.Background()

	march := newInvoice("t1", "edn_standard", base, 12000)
	april := newInvoice("t1", "edn_standard", base.AddDate(0, 1, 0), 12000)
	foreign := newInvoice("t2", "edn_standard", base, 5000)
	for _, inv := range []*invoice.Invoice{march, april, foreign} {
		require.NoError(t, s.CreateInvoice(ctx, inv))
	}

	got, err := s.GetInvoice(ctx, "t1", march.ID)
	require.NoError(t, err)
	assert.Equal(t, march.InvoiceNumber, got.InvoiceNumber)
	assert.True(t, got.Total.Equal(types.USD(12000)))
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, "Subscription", got.LineItems[0].Description)

	_, err = s.GetInvoice(ctx, "t2", march.ID)
	assert.ErrorIs(t, err, bursar.ErrInvoiceNotFound, "invoices are invisible across tenants")

	owner, err := s.InvoiceTenant(ctx, march.ID)
	require.NoError(t, err)
	assert.Equal(t, "t1", owner)

	list, err := s.ListInvoices(ctx, "t1", invoice.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, april.ID.String(), list[0].ID.String(), "newest period first")

	drafts, err := s.ListInvoices(ctx, "t1", invoice.ListOpts{Status: invoice.StatusDraft, Start: base.AddDate(0, 0, 15)})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, april.ID.String(), drafts[0].ID.String())

	found, err := s.FindActiveInvoiceForPeriod(ctx, "t1", "edn_standard", march.PeriodStart, march.PeriodEnd)
	require.NoError(t, err)
	assert.Equal(t, march.ID.String(), found.ID.String())

	_, err = s.FindActiveInvoiceForPeriod(ctx, "t1", "edn_premium", march.PeriodStart, march.PeriodEnd)
	assert.ErrorIs(t, err, bursar.ErrInvoiceNotFound)
}

func testInvoicePeriodLock(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := newInvoice("t1", "edn_standard", base, 100)
	require.NoError(t, s.CreateInvoice(ctx, first))

	err := s.CreateInvoice(ctx, newInvoice("t1", "edn_standard", base, 100))
	assert.ErrorIs(t, err, bursar.ErrDuplicatePeriod)

	// Other tenants and other editions are unaffected.
	require.NoError(t, s.CreateInvoice(ctx, newInvoice("t2", "edn_standard", base, 100)))
	require.NoError(t, s.CreateInvoice(ctx, newInvoice("t1", "edn_premium", base, 100)))

	// Voiding releases the period.
	from := first.Status
	first.Status = invoice.StatusVoid
	voided := base.Add(time.Hour)
	first.VoidedAt = &voided
	require.NoError(t, s.UpdateInvoice(ctx, first, from))
	require.NoError(t, s.CreateInvoice(ctx, newInvoice("t1", "edn_standard", base, 100)))
}

func testInvoiceCompareAndSet(t *testing.T, s store.Store) {
	ctx := context.Background()

	inv := newInvoice("t1", "edn_standard", base, 100)
	require.NoError(t, s.CreateInvoice(ctx, inv))

	issued := inv
	issued.Status = invoice.StatusIssued
	require.NoError(t, s.UpdateInvoice(ctx, issued, invoice.StatusDraft))

	stale := *issued
	stale.Status = invoice.StatusVoid
	err := s.UpdateInvoice(ctx, &stale, invoice.StatusDraft)
	assert.ErrorIs(t, err, bursar.ErrConcurrentModification)

	got, err := s.GetInvoice(ctx, "t1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusIssued, got.Status)

	// Concurrent transitions from the same state: exactly one wins.
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, next := range []invoice.Status{invoice.StatusPaid, invoice.StatusVoid, invoice.StatusOverdue, invoice.StatusPaid} {
		wg.Add(1)
		go func(next invoice.Status) {
			defer wg.Done()
			cp := *got
			cp.Status = next
			if err := s.UpdateInvoice(ctx, &cp, invoice.StatusIssued); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(next)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	wrongTenant := *got
	wrongTenant.TenantID = "t2"
	assert.Error(t, s.UpdateInvoice(ctx, &wrongTenant, got.Status))
}

func testInvoicesDue(t *testing.T, s store.Store) {
	ctx := context.Background()

	due := func(tenantID string, start time.Time, status invoice.Status, dueIn time.Duration) *invoice.Invoice {
		inv := newInvoice(tenantID, "edn_standard", start, 100)
		d := start.Add(dueIn)
		inv.DueDate = &d
		require.NoError(t, s.CreateInvoice(ctx, inv))
		if status != invoice.StatusDraft {
			inv.Status = status
			require.NoError(t, s.UpdateInvoice(ctx, inv, invoice.StatusDraft))
		}
		return inv
	}

	late := due("t1", base, invoice.StatusIssued, 24*time.Hour)
	due("t2", base, invoice.StatusIssued, 60*24*time.Hour)
	due("t1", base.AddDate(0, 1, 0), invoice.StatusDraft, time.Hour)

	got, err := s.ListInvoicesDue(ctx, base.AddDate(0, 0, 7), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, late.ID.String(), got[0].ID.String())
}

func newPayment(tenantID, gateway, extID string, invID id.InvoiceID, at time.Duration) *payment.Payment {
	return &payment.Payment{
		Entity:     ts(at),
		ID:         id.NewPaymentID(),
		TenantID:   tenantID,
		InvoiceID:  invID,
		Amount:     types.USD(4900),
		Gateway:    gateway,
		ExternalID: extID,
		Status:     payment.StatusPending,
		Metadata:   map[string]string{"source": "webhook"},
	}
}

func testPayments(t *testing.T, s store.Store) {
	ctx := context.Background()
	invID := id.NewInvoiceID()

	linked := newPayment("t1", "stripe", "pi_1", invID, 0)
	unlinked := newPayment("t1", "stripe", "pi_2", id.Nil, time.Minute)
	require.NoError(t, s.CreatePayment(ctx, linked))
	require.NoError(t, s.CreatePayment(ctx, unlinked))
	require.NoError(t, s.CreatePayment(ctx, newPayment("t2", "stripe", "pi_3", id.Nil, 2*time.Minute)))

	got, err := s.GetPaymentByExternalID(ctx, "stripe", "pi_2")
	require.NoError(t, err)
	assert.Equal(t, unlinked.ID.String(), got.ID.String())
	assert.False(t, got.IsLinked())

	got.InvoiceID = invID
	got.Status = payment.StatusSucceeded
	got.Metadata["charge_id"] = "ch_1"
	require.NoError(t, s.UpdatePayment(ctx, got))

	reread, err := s.GetPayment(ctx, "t1", unlinked.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, reread.Status)
	assert.Equal(t, "ch_1", reread.Metadata["charge_id"])
	assert.Equal(t, "webhook", reread.Metadata["source"])

	byInvoice, err := s.ListPaymentsByInvoice(ctx, "t1", invID)
	require.NoError(t, err)
	assert.Len(t, byInvoice, 2)

	none, err := s.ListPaymentsByInvoice(ctx, "t2", invID)
	require.NoError(t, err)
	assert.Empty(t, none)

	succeeded, err := s.ListPayments(ctx, "t1", payment.ListOpts{Status: payment.StatusSucceeded})
	require.NoError(t, err)
	require.Len(t, succeeded, 1)

	_, err = s.GetPayment(ctx, "t2", linked.ID)
	assert.ErrorIs(t, err, bursar.ErrPaymentNotFound)

	_, err = s.GetPaymentByExternalID(ctx, "paystack", "pi_1")
	assert.ErrorIs(t, err, bursar.ErrPaymentNotFound)
}

// testPaymentLinkSetOnce writes a stale unlinked copy of a payment after the
// stored row was linked. Status and metadata follow the last write; the link
// stays.
func testPaymentLinkSetOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	invID := id.NewInvoiceID()

	p := newPayment("t1", "stripe", "pi_1", id.Nil, 0)
	require.NoError(t, s.CreatePayment(ctx, p))

	stale, err := s.GetPayment(ctx, "t1", p.ID)
	require.NoError(t, err)

	linking, err := s.GetPayment(ctx, "t1", p.ID)
	require.NoError(t, err)
	linking.InvoiceID = invID
	require.NoError(t, s.UpdatePayment(ctx, linking))

	stale.Status = payment.StatusSucceeded
	stale.Metadata["attempt"] = "2"
	require.NoError(t, s.UpdatePayment(ctx, stale))
	assert.Equal(t, invID.String(), stale.InvoiceID.String(), "caller sees the stored link")

	got, err := s.GetPayment(ctx, "t1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, invID.String(), got.InvoiceID.String())
	assert.Equal(t, payment.StatusSucceeded, got.Status)
	assert.Equal(t, "2", got.Metadata["attempt"])

	// A different invoice never replaces the link.
	got.InvoiceID = id.NewInvoiceID()
	require.NoError(t, s.UpdatePayment(ctx, got))
	reread, err := s.GetPayment(ctx, "t1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, invID.String(), reread.InvoiceID.String())

	missing := newPayment("t1", "stripe", "pi_missing", id.Nil, 0)
	assert.ErrorIs(t, s.UpdatePayment(ctx, missing), bursar.ErrPaymentNotFound)
}

func testPaymentUniqueExternalID(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.CreatePayment(ctx, newPayment("t1", "stripe", "pi_1", id.Nil, 0)))
	err := s.CreatePayment(ctx, newPayment("t1", "stripe", "pi_1", id.Nil, 0))
	assert.ErrorIs(t, err, bursar.ErrAlreadyExists)

	// Same external id on another gateway is a different payment.
	require.NoError(t, s.CreatePayment(ctx, newPayment("t1", "paystack", "pi_1", id.Nil, 0)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreatePayment(ctx, newPayment("t1", "stripe", "pi_race", id.Nil, 0))
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, bursar.ErrAlreadyExists)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}
